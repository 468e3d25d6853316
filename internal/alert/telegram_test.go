package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/types"
)

func testPayload() *types.AlertPayload {
	return &types.AlertPayload{
		Address:            "0x742d35cc6634c0532925a3b844bc454e4438f44e",
		PreviousBalanceWei: big.NewInt(1000000000000000000),
		NewBalanceWei:      big.NewInt(1015000000000000000),
		DeltaWei:           big.NewInt(15000000000000000),
		ThresholdWei:       big.NewInt(10000000000000000),
		TriggeredAt:        time.Now(),
	}
}

func newTelegramFixture(t *testing.T, handler http.Handler) *TelegramSink {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sink, err := NewTelegramSink(TelegramConfig{
		BotToken: "123:abc",
		ChatID:   "42",
		BaseURL:  srv.URL,
	}, nil)
	require.NoError(t, err)
	return sink
}

func TestTelegramSink_Deliver(t *testing.T) {
	var got map[string]interface{}
	sink := newTelegramFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"ok":true}`)
	}))

	require.NoError(t, sink.Deliver(context.Background(), testPayload()))

	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "Markdown", got["parse_mode"])
	text, _ := got["text"].(string)
	assert.Contains(t, text, "0x742d35cc6634c0532925a3b844bc454e4438f44e")
	assert.Contains(t, text, "1.000000 ETH")
	assert.Contains(t, text, "1.015000 ETH")
	assert.Contains(t, text, "+0.015000 ETH")
	assert.Contains(t, text, "etherscan.io/address/")
}

func TestTelegramSink_DeliverFailure(t *testing.T) {
	sink := newTelegramFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"description":"chat not found"}`)
	}))

	err := sink.Deliver(context.Background(), testPayload())
	require.Error(t, err)
	assert.Equal(t, errors.CategorySinkFailure, errors.CategoryOf(err))
	assert.Contains(t, err.Error(), "telegram")
}

func TestTelegramSink_TestConnection(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		sink := newTelegramFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bot123:abc/getMe", r.URL.Path)
			fmt.Fprint(w, `{"ok":true}`)
		}))
		assert.NoError(t, sink.TestConnection(context.Background()))
	})

	t.Run("rejected token", func(t *testing.T) {
		sink := newTelegramFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"ok":false,"description":"Unauthorized"}`)
		}))
		err := sink.TestConnection(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telegram")
	})
}

func TestNewTelegramSink_Validation(t *testing.T) {
	_, err := NewTelegramSink(TelegramConfig{ChatID: "42"}, nil)
	require.Error(t, err)

	_, err = NewTelegramSink(TelegramConfig{BotToken: "123:abc"}, nil)
	require.Error(t, err)
}

func TestFormatAlertMessage_Decrease(t *testing.T) {
	p := testPayload()
	p.NewBalanceWei = big.NewInt(900000000000000000)
	p.DeltaWei = big.NewInt(-100000000000000000)

	text := FormatAlertMessage(p)
	assert.Contains(t, text, "Balance decreased")
	assert.Contains(t, text, "-0.100000 ETH")
}

func TestMultiSink(t *testing.T) {
	log := NewLogSink(nil)
	failing := &failSink{}
	var recorded []*types.AlertPayload
	recorder := sinkFunc(func(ctx context.Context, p *types.AlertPayload) error {
		recorded = append(recorded, p)
		return nil
	})

	multi := NewMultiSink(log, failing, recorder)
	err := multi.Deliver(context.Background(), testPayload())

	require.Error(t, err, "first sink error surfaces")
	assert.Len(t, recorded, 1, "later sinks still attempted")
}

type failSink struct{}

func (failSink) Deliver(ctx context.Context, p *types.AlertPayload) error {
	return errors.NewSinkFailureError("fail", nil)
}

type sinkFunc func(ctx context.Context, p *types.AlertPayload) error

func (f sinkFunc) Deliver(ctx context.Context, p *types.AlertPayload) error {
	return f(ctx, p)
}
