// Package sjc fetches gold prices from the SJC price service and normalizes
// them into typed records.
package sjc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ratecollector/pkg/normalize"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Provider is the natural-key provider label attached to every SJC gold type.
const Provider = "SJC"

// Unit is the pricing unit SJC quotes in (VND per tael).
const Unit = "đồng/lượng"

// Price is one normalized gold price record.
type Price struct {
	TypeName     string // display name, branch-qualified when needed
	OriginalType string
	City         string
	Buy          decimal.NullDecimal
	Sell         decimal.Decimal
	Unit         string
}

type envelope struct {
	Success    bool       `json:"success"`
	LatestDate string     `json:"latestDate"`
	Data       []goldItem `json:"data"`
	Message    string     `json:"message"`
}

type goldItem struct {
	TypeName   string   `json:"TypeName"`
	BranchName string   `json:"BranchName"`
	BuyValue   *float64 `json:"BuyValue"`
	SellValue  *float64 `json:"SellValue"`
}

type Client struct {
	baseURL    string
	branchID   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, branchID string, timeout time.Duration, logger *zap.Logger) *Client {
	if branchID == "" {
		branchID = "1" // Ho Chi Minh City branch
	}
	return &Client{
		baseURL:    baseURL,
		branchID:   branchID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchPrices pulls the current gold prices for the configured branch. It
// returns the usable records and the batch source time as a canonical local
// string ("" when missing or unparsable).
//
// A provider-side failure (success=false) fails the whole batch, but the
// batch time is still recovered from the envelope when present — failure and
// timestamp extraction are independent.
func (c *Client) FetchPrices(ctx context.Context) ([]Price, string, error) {
	form := url.Values{
		"method":   {"GetCurrentGoldPricesByBranch"},
		"BranchId": {c.branchID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Referer", "https://sjc.com.vn/gia-vang-online")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, "", fmt.Errorf("sjc error: status %d: %s", resp.StatusCode, body)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}

	batchTime := c.batchTime(env)

	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "unspecified provider failure"
		}
		return nil, batchTime, fmt.Errorf("sjc service reported failure: %s", msg)
	}

	prices := make([]Price, 0, len(env.Data))
	for _, item := range env.Data {
		price, ok := c.extractPrice(item)
		if ok {
			prices = append(prices, price)
		}
	}

	return prices, batchTime, nil
}

func (c *Client) batchTime(env envelope) string {
	if env.LatestDate == "" {
		return ""
	}
	t, err := normalize.ParseClockDate(env.LatestDate)
	if err != nil {
		c.logger.Warn("unparsable batch source time", zap.Error(err))
		return ""
	}
	return t
}

// extractPrice normalizes one gold item. Records missing their type name or
// the mandatory sell value are dropped and logged, never fatal to the batch.
func (c *Client) extractPrice(item goldItem) (Price, bool) {
	if item.TypeName == "" {
		c.logger.Warn("skipping gold record without type name")
		return Price{}, false
	}
	if item.SellValue == nil {
		c.logger.Warn("skipping gold record without sell value", zap.String("type", item.TypeName))
		return Price{}, false
	}

	var buy decimal.NullDecimal
	if item.BuyValue != nil {
		buy = decimal.NullDecimal{Decimal: decimal.NewFromFloat(*item.BuyValue), Valid: true}
	}

	return Price{
		TypeName:     displayName(item.TypeName, item.BranchName),
		OriginalType: item.TypeName,
		City:         item.BranchName,
		Buy:          buy,
		Sell:         decimal.NewFromFloat(*item.SellValue),
		Unit:         Unit,
	}, true
}

// displayName qualifies the type name with the branch unless the branch is
// already embedded in it.
func displayName(typeName, branch string) string {
	if branch == "" || strings.Contains(typeName, branch) {
		return typeName
	}
	return typeName + " - " + branch
}

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
