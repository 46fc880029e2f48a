package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/config"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
)

// Client talks to the remote access panel. The panel owns the VPN credentials;
// this service only fetches the user's subscription URL after activation.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zerolog.Logger
}

var _ adapter.PanelClient = (*Client)(nil)

func NewClient(cfg config.PanelConfig, timeout time.Duration, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		log:     logger,
	}
}

func (c *Client) AccessLink(ctx context.Context, userID int64) (string, error) {
	url := c.baseURL + "/api/users/by-telegram-id/" + strconv.FormatInt(userID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", domain.ErrNotFound
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("panel: status %d: %s", resp.StatusCode, b)
	}

	var body struct {
		Response struct {
			SubscriptionURL string `json:"subscriptionUrl"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("panel: decode response: %w", err)
	}
	if body.Response.SubscriptionURL == "" {
		return "", domain.ErrNotFound
	}
	return body.Response.SubscriptionURL, nil
}

// NoopClient is used when no panel is configured; activations proceed without
// an access link.
type NoopClient struct{}

var _ adapter.PanelClient = (*NoopClient)(nil)

func (NoopClient) AccessLink(ctx context.Context, userID int64) (string, error) {
	return "", domain.ErrNotFound
}
