// Package adapter talks to external balance providers. The only provider
// implemented today is the Etherscan account API.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/wallet-monitor/internal/circuitbreaker"
	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/logging"
	"github.com/wallet-monitor/internal/ratelimit"
	"github.com/wallet-monitor/internal/retry"
	"github.com/wallet-monitor/internal/types"
)

const (
	// DefaultBaseURL is the Etherscan mainnet API endpoint
	DefaultBaseURL = "https://api.etherscan.io/api"

	// maxBatchSize is the Etherscan balancemulti address limit per call
	maxBatchSize = 20
)

// EtherscanClient fetches wallet balances from the Etherscan account API.
// All calls go through a shared rate limiter sized for the free tier and a
// circuit breaker that trips on sustained provider failures.
type EtherscanClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.RetryConfig
	logger  *logging.Logger
}

// EtherscanClientConfig configures an EtherscanClient
type EtherscanClientConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond int
	RequestTimeout    time.Duration
}

// etherscanResponse is the envelope every account API call returns. Result
// is raw because it is a string on success and an error message on failure.
type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type multiBalanceEntry struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// NewEtherscanClient creates a new Etherscan balance client
func NewEtherscanClient(cfg EtherscanClientConfig, logger *logging.Logger) (*EtherscanClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewValidationError("api_key", "etherscan API key not configured")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = ratelimit.DefaultRequestsPerSecond
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	limiter, err := ratelimit.NewLimiter(&ratelimit.LimiterConfig{
		RequestsPerSecond: rps,
	})
	if err != nil {
		return nil, err
	}

	retryCfg := retry.DefaultRetryConfig()
	retryCfg.RetryIf = errors.IsTransient

	return &EtherscanClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("etherscan")),
		retry:   retryCfg,
		logger:  logger.WithField("component", "etherscan"),
	}, nil
}

// FetchBalance returns the current balance of a single address in wei.
func (c *EtherscanClient) FetchBalance(ctx context.Context, address string) (*big.Int, error) {
	url := fmt.Sprintf("%s?module=account&action=balance&address=%s&tag=latest&apikey=%s",
		c.baseURL, address, c.apiKey)

	var balance *big.Int
	err := c.execute(ctx, func() error {
		resp, err := c.call(ctx, url)
		if err != nil {
			return err
		}

		var raw string
		if err := json.Unmarshal(resp.Result, &raw); err != nil {
			return errors.NewTransientError("etherscan", fmt.Errorf("malformed balance result: %w", err))
		}
		balance, err = types.ParseWei(raw)
		if err != nil {
			return errors.NewTransientError("etherscan", fmt.Errorf("unparseable balance %q: %w", raw, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"address": address,
		"wei":     balance.String(),
	}).Debug("Fetched balance")

	return balance, nil
}

// FetchBalances returns balances for up to 20 addresses in a single call
// using the balancemulti action. The result map is keyed by the addresses
// exactly as the provider echoes them back, lowercased.
func (c *EtherscanClient) FetchBalances(ctx context.Context, addresses []string) (map[string]*big.Int, error) {
	if len(addresses) == 0 {
		return map[string]*big.Int{}, nil
	}
	if len(addresses) > maxBatchSize {
		return nil, errors.NewValidationError("addresses",
			fmt.Sprintf("at most %d addresses per batch, got %d", maxBatchSize, len(addresses)))
	}

	url := fmt.Sprintf("%s?module=account&action=balancemulti&address=%s&tag=latest&apikey=%s",
		c.baseURL, strings.Join(addresses, ","), c.apiKey)

	balances := make(map[string]*big.Int, len(addresses))
	err := c.execute(ctx, func() error {
		resp, err := c.call(ctx, url)
		if err != nil {
			return err
		}

		var entries []multiBalanceEntry
		if err := json.Unmarshal(resp.Result, &entries); err != nil {
			return errors.NewTransientError("etherscan", fmt.Errorf("malformed balancemulti result: %w", err))
		}
		for _, e := range entries {
			wei, err := types.ParseWei(e.Balance)
			if err != nil {
				return errors.NewTransientError("etherscan",
					fmt.Errorf("unparseable balance %q for %s: %w", e.Balance, e.Account, err))
			}
			balances[strings.ToLower(e.Account)] = wei
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// execute wraps fn with circuit breaker protection and transient retry.
func (c *EtherscanClient) execute(ctx context.Context, fn func() error) error {
	return c.breaker.Execute(ctx, func() error {
		result := retry.WithExponentialBackoff(ctx, c.retry, func(ctx context.Context, attempt int) error {
			return fn()
		})
		if result.Success {
			return nil
		}
		return result.LastError
	})
}

// call performs one rate-limited HTTP round trip and decodes the envelope.
func (c *EtherscanClient) call(ctx context.Context, url string) (*etherscanResponse, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewValidationError("url", err.Error())
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewTransientError("etherscan", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransientError("etherscan", fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.NewRateLimitedError("etherscan")
	}
	if resp.StatusCode >= 500 {
		return nil, errors.NewTransientError("etherscan",
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, 200)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewValidationError("request",
			fmt.Sprintf("etherscan HTTP %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	var envelope etherscanResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.NewTransientError("etherscan", fmt.Errorf("parsing response: %w", err))
	}

	if envelope.Status != "1" {
		return nil, classifyAPIError(&envelope)
	}
	return &envelope, nil
}

// classifyAPIError maps a status "0" envelope onto the error taxonomy.
// Etherscan reports most failures as message NOTOK with the detail in result.
func classifyAPIError(resp *etherscanResponse) error {
	detail := string(resp.Result)
	lower := strings.ToLower(detail)

	switch {
	case strings.Contains(lower, "invalid address"):
		return errors.NewInvalidAddressError(strings.Trim(detail, `"`))
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "max calls"):
		return errors.NewRateLimitedError("etherscan")
	case strings.Contains(lower, "invalid api key"):
		return errors.NewValidationError("api_key", "rejected by etherscan")
	default:
		return errors.NewTransientError("etherscan",
			fmt.Errorf("API error: %s %s", resp.Message, truncate([]byte(detail), 200)))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
