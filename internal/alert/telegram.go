package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/logging"
	"github.com/wallet-monitor/internal/types"
)

// DefaultTelegramBaseURL is the Telegram Bot API endpoint.
const DefaultTelegramBaseURL = "https://api.telegram.org"

// TelegramSink posts alerts to a Telegram chat through the Bot API.
type TelegramSink struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   *logging.Logger
}

// TelegramConfig configures a TelegramSink.
type TelegramConfig struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Timeout  time.Duration
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// NewTelegramSink creates a Telegram alert sink.
func NewTelegramSink(cfg TelegramConfig, logger *logging.Logger) (*TelegramSink, error) {
	if cfg.BotToken == "" {
		return nil, errors.NewValidationError("bot_token", "telegram bot token not configured")
	}
	if cfg.ChatID == "" {
		return nil, errors.NewValidationError("chat_id", "telegram chat ID not configured")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TelegramSink{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.WithField("component", "telegram"),
	}, nil
}

// Deliver formats the alert as Markdown and posts it via sendMessage.
func (s *TelegramSink) Deliver(ctx context.Context, payload *types.AlertPayload) error {
	if err := s.sendMessage(ctx, FormatAlertMessage(payload)); err != nil {
		return err
	}
	s.logger.WithField("address", payload.Address).Info("Alert delivered to Telegram")
	return nil
}

// TestConnection verifies the bot token against the getMe endpoint.
func (s *TelegramSink) TestConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getMe", s.baseURL, s.botToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.NewSinkFailureError("telegram", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewSinkFailureError("telegram", err)
	}
	defer resp.Body.Close()

	return s.checkResponse(resp)
}

func (s *TelegramSink) sendMessage(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)

	body, err := json.Marshal(map[string]interface{}{
		"chat_id":                  s.chatID,
		"text":                     text,
		"parse_mode":               "Markdown",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return errors.NewSinkFailureError("telegram", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.NewSinkFailureError("telegram", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewSinkFailureError("telegram", err)
	}
	defer resp.Body.Close()

	return s.checkResponse(resp)
}

func (s *TelegramSink) checkResponse(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return errors.NewSinkFailureError("telegram", err)
	}

	var tr telegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return errors.NewSinkFailureError("telegram",
			fmt.Errorf("HTTP %d: unparseable response", resp.StatusCode))
	}
	if !tr.OK {
		return errors.NewSinkFailureError("telegram",
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, tr.Description))
	}
	return nil
}

// FormatAlertMessage renders an alert as Telegram Markdown with balances in
// ETH and a link to the address on Etherscan.
func FormatAlertMessage(payload *types.AlertPayload) string {
	direction := "increased"
	if payload.DeltaWei.Sign() < 0 {
		direction = "decreased"
	}
	return fmt.Sprintf(
		"*Balance %s*\n\n"+
			"Wallet: `%s`\n"+
			"Previous: %s ETH\n"+
			"Current: %s ETH\n"+
			"Change: %s ETH\n\n"+
			"[View on Etherscan](https://etherscan.io/address/%s)",
		direction,
		payload.Address,
		types.FormatEther(payload.PreviousBalanceWei),
		types.FormatEther(payload.NewBalanceWei),
		types.FormatEtherSigned(payload.DeltaWei),
		payload.Address,
	)
}
