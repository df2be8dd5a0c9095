// Package tmclient is the collaborator adapter for the upstream Transaction
// Management (TM) service. The TM service itself is out of scope; this
// package only speaks its HTTP interface, caches the M2M token, and guards
// every call with a circuit breaker.
package tmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/ops-agent/fraud-investigator/pkg/fraud/apierr"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/config"
	"github.com/ops-agent/fraud-investigator/pkg/fraud/types"
)

// Client talks to the TM service's overview/card-history/merchant-history
// endpoints. One Client is created at startup and shared across investigations.
type Client struct {
	httpClient *http.Client
	baseURL    string
	m2m        *tokenCache
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// New builds a Client from cfg, wiring a circuit breaker that opens after
// CircuitBreakerThreshold consecutive failures and stays open for
// CircuitBreakerCooldown before probing again. redisClient is the optional
// shared M2M-token cache backing store; pass nil to use an in-process-only
// token cache.
func New(cfg config.TMConfig, redisClient *redis.Client) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tm_api",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.CircuitBreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.CircuitBreakerThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("tm_api circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		m2m:        newTokenCache(cfg, redisClient),
		breaker:    breaker,
		logger:     slog.Default(),
	}
}

// wireOverview is the TM API's wire shape for the transaction overview
// endpoint, field-named the way TM's own service names them — translated
// into types.TransactionContext by fieldMap below.
type wireOverview struct {
	Transaction  wireTransaction   `json:"txn"`
	MatchedRules []wireMatchedRule `json:"rules_fired"`
	Review       *wireReview       `json:"review_case"`
}

// wirePage is the TM API's paginated history envelope, shared by the
// card-history and merchant-history endpoints.
type wirePage struct {
	Items      []wireTransaction `json:"items"`
	NextCursor string            `json:"next_cursor"`
}

type wireTransaction struct {
	ID              string  `json:"txn_id"`
	Card            string  `json:"card_token"`
	Merchant        string  `json:"merchant_id"`
	MerchantName    string  `json:"merchant_dba_name"`
	MCC             string  `json:"mcc_code"`
	Amount          int64   `json:"amount_minor_units"`
	Currency        string  `json:"ccy"`
	Timestamp       string  `json:"txn_ts"`
	Declined        bool    `json:"is_declined"`
	DeclineReason   string  `json:"decline_reason_code"`
	ThreeDSVerified bool    `json:"3ds_verified"`
	DeviceTrusted   bool    `json:"device_trust_flag"`
}

type wireMatchedRule struct {
	RuleID   string  `json:"rule_id"`
	RuleName string  `json:"rule_name"`
	Score    float64 `json:"rule_score"`
}

type wireReview struct {
	ReviewID string      `json:"review_id"`
	CaseID   string      `json:"case_ref"`
	Notes    []wireNote  `json:"analyst_notes"`
}

type wireNote struct {
	Author    string `json:"author"`
	Body      string `json:"text"`
	CreatedAt string `json:"ts"`
}

// GetOverview fetches transaction context for transactionID, translating the
// TM wire format into our internal types.TransactionContext.
func (c *Client) GetOverview(ctx context.Context, transactionID string) (*types.TransactionContext, error) {
	var wire wireOverview
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("/v1/transactions/%s/overview", transactionID), &wire); err != nil {
		return nil, err
	}
	return translateOverview(wire), nil
}

// maxHistoryPages and pageSize bound every paginated history fetch to a
// finite sequence: at most 3 pages of 500 items, never an open-ended
// cursor walk.
const (
	maxHistoryPages = 3
	pageSize        = 500
)

// CardHistory fetches up to maxHistoryPages pages of a card's transaction
// history over the trailing hoursBack window, auto-paginating via cursor.
func (c *Client) CardHistory(ctx context.Context, cardID string, hoursBack int) ([]types.Transaction, error) {
	return c.fetchHistory(ctx, fmt.Sprintf("/v1/cards/%s/transactions", cardID), hoursBack)
}

// MerchantHistory fetches up to maxHistoryPages pages of a merchant's
// transaction history over the trailing hoursBack window.
func (c *Client) MerchantHistory(ctx context.Context, merchantID string, hoursBack int) ([]types.Transaction, error) {
	return c.fetchHistory(ctx, fmt.Sprintf("/v1/merchants/%s/transactions", merchantID), hoursBack)
}

func (c *Client) fetchHistory(ctx context.Context, path string, hoursBack int) ([]types.Transaction, error) {
	var all []types.Transaction
	cursor := ""
	for page := 0; page < maxHistoryPages; page++ {
		query := fmt.Sprintf("%s?hours_back=%d&limit=%d", path, hoursBack, pageSize)
		if cursor != "" {
			query += "&cursor=" + cursor
		}
		var wire wirePage
		if err := c.doJSON(ctx, "GET", query, &wire); err != nil {
			return nil, err
		}
		all = append(all, translateTransactions(wire.Items)...)
		if wire.NextCursor == "" || len(wire.Items) < pageSize {
			break
		}
		cursor = wire.NextCursor
	}
	return all, nil
}

// Health checks TM service liveness without tripping the circuit breaker's
// failure accounting for ordinary investigation traffic.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierr.DependencyFailure("tm_api", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apierr.DependencyFailure("tm_api", fmt.Errorf("health check returned HTTP %d", resp.StatusCode))
	}
	return nil
}

// retryAttempts and retryBackoffBase bound the retry policy wrapped around
// every TM call: up to 3 attempts total, backing off exponentially (base,
// 2x, 4x) between them. Only 5xx responses and transport-level errors are
// retried; anything else (4xx, decode errors) fails on the first attempt.
const (
	retryAttempts    = 3
	retryBackoffBase = 200 * time.Millisecond
)

func (c *Client) doJSON(ctx context.Context, method, path string, out any) error {
	result, err := c.breaker.Execute(func() (any, error) {
		token, err := c.m2m.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire m2m token: %w", err)
		}

		var lastErr error
		for attempt := 0; attempt < retryAttempts; attempt++ {
			if attempt > 0 {
				backoff := retryBackoffBase * time.Duration(uint(1)<<uint(attempt-1))
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				c.logger.Warn("retrying tm api call", "path", path, "attempt", attempt+1, "previous_error", lastErr)
			}

			body, retryable, err := c.attemptRequest(ctx, method, path, token)
			if err == nil {
				return body, nil
			}
			lastErr = err
			if !retryable {
				return nil, err
			}
		}
		return nil, lastErr
	})
	if err != nil {
		return apierr.DependencyFailure("tm_api", err)
	}

	body, ok := result.([]byte)
	if !ok {
		return apierr.DependencyFailure("tm_api", fmt.Errorf("unexpected circuit breaker result type"))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apierr.DependencyFailure("tm_api", fmt.Errorf("decode tm api response: %w", err))
	}
	return nil
}

// attemptRequest performs one HTTP round trip and classifies the outcome:
// the bool return reports whether the error (if any) is retryable. Transport
// failures and 5xx responses are retryable; anything else is not.
func (c *Client) attemptRequest(ctx context.Context, method, path, token string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(resp.Body)
		return nil, true, fmt.Errorf("tm api returned HTTP %d for %s: %s", resp.StatusCode, path, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("tm api returned HTTP %d for %s: %s", resp.StatusCode, path, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	return body, false, err
}

func translateOverview(wire wireOverview) *types.TransactionContext {
	ctx := &types.TransactionContext{
		Transaction: translateTransaction(wire.Transaction),
	}
	for _, r := range wire.MatchedRules {
		ctx.MatchedRules = append(ctx.MatchedRules, types.MatchedRule{RuleID: r.RuleID, RuleName: r.RuleName, Score: r.Score})
	}
	if wire.Review != nil {
		review := &types.ReviewCase{ReviewID: wire.Review.ReviewID, CaseID: wire.Review.CaseID}
		for _, n := range wire.Review.Notes {
			ts, _ := time.Parse(time.RFC3339, n.CreatedAt)
			review.Notes = append(review.Notes, types.Note{Author: n.Author, Body: n.Body, CreatedAt: ts})
		}
		ctx.Review = review
		ctx.CaseID = wire.Review.CaseID
	}
	return ctx
}

func translateTransactions(wire []wireTransaction) []types.Transaction {
	out := make([]types.Transaction, 0, len(wire))
	for _, w := range wire {
		out = append(out, translateTransaction(w))
	}
	return out
}

func translateTransaction(w wireTransaction) types.Transaction {
	ts, _ := time.Parse(time.RFC3339, w.Timestamp)
	return types.Transaction{
		TransactionID:   w.ID,
		CardID:          w.Card,
		MerchantID:      w.Merchant,
		MerchantName:    w.MerchantName,
		MCC:             w.MCC,
		AmountCents:     w.Amount,
		Currency:        w.Currency,
		Timestamp:       ts,
		Declined:        w.Declined,
		DeclineReason:   w.DeclineReason,
		ThreeDSVerified: w.ThreeDSVerified,
		DeviceTrusted:   w.DeviceTrusted,
	}
}

// redisTokenKey is the shared cache key every ops-agent replica reads and
// writes the cached M2M token under, so a token fetched by one replica is
// reused by the others instead of each hammering the TM token endpoint.
const redisTokenKey = "ops_agent:tm_m2m_token"

// tokenCache caches the M2M bearer token, refreshing shortly before expiry,
// mirroring runbook.Cache's lazy-expiry TTL pattern. When redis is non-nil
// the token is also shared across replicas; redis failures fall back to the
// in-process value rather than failing the request.
type tokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	clientID     string
	clientSecret string
	audience     string
	tokenURL     string
	httpClient   *http.Client
	redis        *redis.Client
}

func newTokenCache(cfg config.TMConfig, redisClient *redis.Client) *tokenCache {
	return &tokenCache{
		clientID:     cfg.M2MClientID,
		clientSecret: cfg.M2MClientSecret,
		audience:     cfg.M2MAudience,
		tokenURL:     cfg.BaseURL + "/oauth/token",
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		redis:        redisClient,
	}
}

func (t *tokenCache) Token(ctx context.Context) (string, error) {
	t.mu.RLock()
	if t.token != "" && time.Now().Before(t.expiresAt) {
		token := t.token
		t.mu.RUnlock()
		return token, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check under write lock in case a concurrent caller already refreshed.
	if t.token != "" && time.Now().Before(t.expiresAt) {
		return t.token, nil
	}

	if t.redis != nil {
		if token, err := t.redis.Get(ctx, redisTokenKey).Result(); err == nil && token != "" {
			remaining, err := t.redis.TTL(ctx, redisTokenKey).Result()
			if err != nil || remaining <= 0 {
				remaining = 5 * time.Minute
			}
			t.token = token
			t.expiresAt = time.Now().Add(remaining)
			return token, nil
		}
	}

	token, ttl, err := t.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	t.token = token
	t.expiresAt = time.Now().Add(ttl - 30*time.Second)
	if t.redis != nil {
		if err := t.redis.Set(ctx, redisTokenKey, token, ttl-30*time.Second).Err(); err != nil {
			slog.Warn("tm_api failed to share m2m token via redis, continuing in-process only", "error", err)
		}
	}
	return token, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (t *tokenCache) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(t.clientID, t.clientSecret)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("m2m token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("m2m token endpoint returned HTTP %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("decode m2m token response: %w", err)
	}
	return tr.AccessToken, time.Duration(tr.ExpiresIn) * time.Second, nil
}
