package vcb

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Rate is one normalized exchange-rate record. BuyCash and BuyTransfer are
// absent when the bank publishes no quote for that channel; Sell is always
// present (records without it are dropped by the adapter).
type Rate struct {
	Code        string
	Name        string
	BuyCash     decimal.NullDecimal
	BuyTransfer decimal.NullDecimal
	Sell        decimal.Decimal
}

// envelope covers both response shapes the API has been observed to return.
// Record items stay raw until the shape is known.
type envelope struct {
	Data        []json.RawMessage `json:"Data"`
	UpdatedDate string            `json:"UpdatedDate"`
	Time        string            `json:"Time"`
}

// shape identifies which field mapping applies to a response.
type shape int

const (
	shapeUnknown shape = iota
	// shapeCurrent: batch time in "UpdatedDate" (ISO-8601), records carry
	// currencyCode/currencyName/cash/transfer/sell.
	shapeCurrent
	// shapeLegacy: batch time in "Time" ("/Date(<ms>+0700)/"), records carry
	// code/name/buyCash/buyTransfer/sell.
	shapeLegacy
)

type currentItem struct {
	CurrencyCode string `json:"currencyCode"`
	CurrencyName string `json:"currencyName"`
	Cash         string `json:"cash"`
	Transfer     string `json:"transfer"`
	Sell         string `json:"sell"`
}

type legacyItem struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	BuyCash     string `json:"buyCash"`
	BuyTransfer string `json:"buyTransfer"`
	Sell        string `json:"sell"`
}
