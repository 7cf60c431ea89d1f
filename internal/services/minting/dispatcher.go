package minting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/thirdweb-example/unity-iap-server/internal/domain/model"
)

type Config struct {
	BaseURL       string
	ChainID       string
	BackendWallet string
	AccessToken   string
}

// Dispatcher issues ERC-20 mint authorizations against the minting engine.
// A dispatch is attempted exactly once; failures are reported, never retried.
type Dispatcher struct {
	cfg        Config
	httpClient *http.Client
}

func NewDispatcher(cfg Config, httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{cfg: cfg, httpClient: httpClient}
}

type mintRequest struct {
	ToAddress string `json:"toAddress"`
	Amount    string `json:"amount"`
}

// DispatchMint posts the mint-to request for the reward contract and returns
// the engine's response body verbatim.
func (d *Dispatcher) DispatchMint(ctx context.Context, toAddress string, reward model.Reward) ([]byte, error) {
	if d.cfg.BaseURL == "" {
		return nil, fmt.Errorf("minting engine url is not configured")
	}
	if strings.TrimSpace(toAddress) == "" {
		return nil, fmt.Errorf("destination address is required")
	}

	payload, err := json.Marshal(mintRequest{ToAddress: toAddress, Amount: reward.Amount})
	if err != nil {
		return nil, fmt.Errorf("marshal mint request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/contract/%s/%s/erc20/mint-to",
		strings.TrimRight(d.cfg.BaseURL, "/"),
		url.PathEscape(d.cfg.ChainID),
		url.PathEscape(reward.ContractAddress),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.cfg.AccessToken)
	req.Header.Set("x-backend-wallet-address", d.cfg.BackendWallet)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dispatch mint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mint response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("mint endpoint returned status %d", resp.StatusCode)
	}

	return body, nil
}
