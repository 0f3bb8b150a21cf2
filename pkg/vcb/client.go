// Package vcb fetches foreign-exchange rates from the Vietcombank public API
// and normalizes them into typed records.
package vcb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ratecollector/pkg/normalize"

	"go.uber.org/zap"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchRates pulls today's exchange rates. It returns the usable records and
// the batch source time as a canonical local string ("" when the provider's
// time field is missing or unparsable — not an error).
//
// A transport, status or decode failure fails the whole batch: (nil, "", err).
// A well-formed response with zero usable records returns an empty slice and
// the batch time, which is a distinct outcome.
func (c *Client) FetchRates(ctx context.Context) ([]Rate, string, error) {
	endpoint := fmt.Sprintf("%s?date=%s", c.baseURL, time.Now().Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, "", fmt.Errorf("vietcombank error: status %d: %s", resp.StatusCode, body)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}

	sh := detectShape(env)
	if sh == shapeUnknown {
		return nil, "", fmt.Errorf("unexpected envelope: no recognizable shape")
	}

	batchTime := c.batchTime(sh, env)

	rates := make([]Rate, 0, len(env.Data))
	for _, raw := range env.Data {
		rate, ok := c.extractRate(sh, raw)
		if ok {
			rates = append(rates, rate)
		}
	}

	return rates, batchTime, nil
}

// detectShape is the explicit branch between the two observed field mappings.
// The batch-time field discriminates when present; it is optional, so when
// both are absent the first record's key names decide. Only a response whose
// records carry neither mapping's natural key is unreadable.
func detectShape(env envelope) shape {
	switch {
	case env.UpdatedDate != "":
		return shapeCurrent
	case env.Time != "":
		return shapeLegacy
	}

	// An empty batch has nothing to misread; the current mapping applies.
	if len(env.Data) == 0 {
		return shapeCurrent
	}

	var probe struct {
		CurrencyCode string `json:"currencyCode"`
		Code         string `json:"code"`
	}
	if err := json.Unmarshal(env.Data[0], &probe); err != nil {
		return shapeUnknown
	}
	switch {
	case probe.CurrencyCode != "":
		return shapeCurrent
	case probe.Code != "":
		return shapeLegacy
	}
	return shapeUnknown
}

func (c *Client) batchTime(sh shape, env envelope) string {
	var raw string
	switch sh {
	case shapeCurrent:
		raw = env.UpdatedDate
	case shapeLegacy:
		raw = env.Time
	}

	// A missing time field is a null-valued attribute, not an error.
	if raw == "" {
		return ""
	}

	var (
		t   string
		err error
	)
	switch sh {
	case shapeCurrent:
		t, err = normalize.ParseISOTime(raw)
	case shapeLegacy:
		t, err = normalize.ParseDotNetTime(raw)
	}
	if err != nil {
		c.logger.Warn("unparsable batch source time", zap.Error(err))
		return ""
	}
	return t
}

// extractRate applies the shape's field mapping to one raw record. Records
// missing their natural key or the mandatory sell quote are dropped, logged
// and never fail the batch.
func (c *Client) extractRate(sh shape, raw json.RawMessage) (Rate, bool) {
	var code, name, cash, transfer, sell string

	switch sh {
	case shapeCurrent:
		var item currentItem
		if err := json.Unmarshal(raw, &item); err != nil {
			c.logger.Warn("skipping undecodable rate record", zap.Error(err))
			return Rate{}, false
		}
		code, name, cash, transfer, sell = item.CurrencyCode, item.CurrencyName, item.Cash, item.Transfer, item.Sell
	case shapeLegacy:
		var item legacyItem
		if err := json.Unmarshal(raw, &item); err != nil {
			c.logger.Warn("skipping undecodable rate record", zap.Error(err))
			return Rate{}, false
		}
		code, name, cash, transfer, sell = item.Code, item.Name, item.BuyCash, item.BuyTransfer, item.Sell
	}

	if code == "" || name == "" {
		c.logger.Warn("skipping rate record without currency identity",
			zap.String("code", code), zap.String("name", name))
		return Rate{}, false
	}

	buyCash, err := normalize.ParseAmount(cash)
	if err != nil {
		c.logger.Warn("malformed buy cash amount", zap.String("code", code), zap.Error(err))
	}
	buyTransfer, err := normalize.ParseAmount(transfer)
	if err != nil {
		c.logger.Warn("malformed buy transfer amount", zap.String("code", code), zap.Error(err))
	}
	sellAmount, err := normalize.ParseAmount(sell)
	if err != nil {
		c.logger.Warn("malformed sell amount", zap.String("code", code), zap.Error(err))
	}
	if !sellAmount.Valid {
		c.logger.Warn("skipping rate record without sell quote", zap.String("code", code))
		return Rate{}, false
	}

	return Rate{
		Code:        strings.ToUpper(code),
		Name:        name,
		BuyCash:     buyCash,
		BuyTransfer: buyTransfer,
		Sell:        sellAmount.Decimal,
	}, true
}

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
