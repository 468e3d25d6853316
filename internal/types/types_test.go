package types

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	t.Run("lowercases a checksummed address", func(t *testing.T) {
		got, err := NormalizeAddress("0xDE0B295669a9FD93d5F28D9Ec85E40f4cb697BAe")
		require.NoError(t, err)
		assert.Equal(t, "0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae", got)
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		got, err := NormalizeAddress("  0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae\n")
		require.NoError(t, err)
		assert.Equal(t, "0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae", got)
	})

	t.Run("rejects malformed addresses", func(t *testing.T) {
		for _, addr := range []string{"", "0x123", "not-an-address", "0xZZ0b295669a9fd93d5f28d9ec85e40f4cb697bae"} {
			_, err := NormalizeAddress(addr)
			assert.Error(t, err, "address %q should be rejected", addr)
		}
	})

	t.Run("returns a structured service error", func(t *testing.T) {
		_, err := NormalizeAddress("bogus")
		svcErr, ok := err.(*ServiceError)
		require.True(t, ok)
		assert.Equal(t, "INVALID_ADDRESS_FORMAT", svcErr.Code)
	})
}

func TestWalletConfigClone(t *testing.T) {
	orig := &WalletConfig{
		Address:             "0xde0b295669a9fd93d5f28d9ec85e40f4cb697bae",
		ThresholdWei:        big.NewInt(1000),
		CheckInterval:       time.Minute,
		Enabled:             true,
		LastKnownBalanceWei: big.NewInt(42),
	}

	clone := orig.Clone()
	clone.ThresholdWei.SetInt64(9999)
	clone.LastKnownBalanceWei.SetInt64(-1)

	assert.Equal(t, int64(1000), orig.ThresholdWei.Int64(), "clone must not alias threshold")
	assert.Equal(t, int64(42), orig.LastKnownBalanceWei.Int64(), "clone must not alias balance")
}

func TestWalletConfigNextDueAt(t *testing.T) {
	t.Run("never-checked wallet is due immediately", func(t *testing.T) {
		w := &WalletConfig{CheckInterval: 5 * time.Minute}
		assert.True(t, w.NextDueAt().IsZero())
	})

	t.Run("checked wallet is due one interval later", func(t *testing.T) {
		checked := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		w := &WalletConfig{CheckInterval: 5 * time.Minute, LastCheckedAt: checked}
		assert.Equal(t, checked.Add(5*time.Minute), w.NextDueAt())
	})
}

func TestParseWei(t *testing.T) {
	t.Run("parses values beyond uint64", func(t *testing.T) {
		v, err := ParseWei("123456789012345678901234567890")
		require.NoError(t, err)
		assert.Equal(t, "123456789012345678901234567890", v.String())
	})

	t.Run("rejects non-decimal input", func(t *testing.T) {
		for _, s := range []string{"", "abc", "1.5", "0x10"} {
			_, err := ParseWei(s)
			assert.Error(t, err, "input %q", s)
		}
	})
}

func TestEtherToWei(t *testing.T) {
	t.Run("converts fractional ether", func(t *testing.T) {
		v, err := EtherToWei("0.015")
		require.NoError(t, err)
		assert.Equal(t, "15000000000000000", v.String())
	})

	t.Run("converts whole ether", func(t *testing.T) {
		v, err := EtherToWei("2")
		require.NoError(t, err)
		assert.Equal(t, "2000000000000000000", v.String())
	})

	t.Run("rejects sub-wei precision", func(t *testing.T) {
		_, err := EtherToWei("0.0000000000000000001")
		assert.Error(t, err)
	})

	t.Run("rejects negative values", func(t *testing.T) {
		_, err := EtherToWei("-1")
		assert.Error(t, err)
	})
}

func TestFormatEther(t *testing.T) {
	assert.Equal(t, "1.015000", FormatEther(big.NewInt(1015000000000000000)))
	assert.Equal(t, "0.000000", FormatEther(nil))
	assert.Equal(t, "+0.015000", FormatEtherSigned(big.NewInt(15000000000000000)))
	assert.Equal(t, "-0.015000", FormatEtherSigned(big.NewInt(-15000000000000000)))
}
