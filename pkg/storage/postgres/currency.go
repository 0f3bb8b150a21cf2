package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ResolveCurrency maps a currency code to its dimension id, creating the row
// on first sight. Correctness under concurrent resolvers rests on the unique
// constraint on code: a lost insert race surfaces as a duplicate-key error
// and is answered by re-reading the winner's row, exactly once.
func (c *Client) ResolveCurrency(ctx context.Context, code, name string) (uint, error) {
	var existing Currency
	err := c.DB.WithContext(ctx).Where("code = ?", code).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup currency %q: %w", code, err)
	}

	created := Currency{Code: code, Name: name}
	err = c.DB.WithContext(ctx).Create(&created).Error
	if err == nil {
		return created.ID, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return 0, fmt.Errorf("insert currency %q: %w", code, err)
	}

	// A concurrent resolver won the insert; its row must exist now.
	var winner Currency
	if err := c.DB.WithContext(ctx).Where("code = ?", code).First(&winner).Error; err != nil {
		return 0, fmt.Errorf("re-read currency %q after conflict: %w", code, err)
	}
	return winner.ID, nil
}

// InsertExchangeRate appends one observation in its own transaction.
// recorded_at is assigned by the database clock. sourceTime is the canonical
// local batch time string; "" or an unparsable value stores NULL.
func (c *Client) InsertExchangeRate(ctx context.Context, currencyID uint, buyCash, buyTransfer decimal.NullDecimal, sell decimal.Decimal, sourceTime string) error {
	sourceUpdateTime, err := sourceTimeToInstant(sourceTime)
	if err != nil {
		c.logger().Warn("storing NULL source update time",
			zap.Uint("currency_id", currencyID), zap.Error(err))
	}

	row := ExchangeRate{
		CurrencyID:       currencyID,
		BuyCash:          buyCash,
		BuyTransfer:      buyTransfer,
		Sell:             sell,
		SourceUpdateTime: sourceUpdateTime,
	}

	if err := c.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert exchange rate for currency %d: %w", currencyID, err)
	}
	return nil
}

// LatestRate is one currency joined with its most recent observation.
type LatestRate struct {
	CurrencyCode     string
	CurrencyName     string
	BuyCash          decimal.NullDecimal
	BuyTransfer      decimal.NullDecimal
	Sell             decimal.Decimal
	RecordedAt       time.Time
	SourceUpdateTime *time.Time
}

// LatestExchangeRates returns, per currency, the observation with the
// greatest (recorded_at, id). The id tiebreak keeps the winner deterministic
// when two rows share a recorded_at. An empty store yields an empty slice.
func (c *Client) LatestExchangeRates(ctx context.Context) ([]LatestRate, error) {
	var rows []LatestRate
	err := c.DB.WithContext(ctx).Raw(`
		SELECT c.code AS currency_code,
		       c.name AS currency_name,
		       er.buy_cash,
		       er.buy_transfer,
		       er.sell,
		       er.recorded_at,
		       er.source_update_time
		FROM exchange_rates er
		JOIN currencies c ON c.id = er.currency_id
		WHERE er.id = (
			SELECT er2.id
			FROM exchange_rates er2
			WHERE er2.currency_id = er.currency_id
			ORDER BY er2.recorded_at DESC, er2.id DESC
			LIMIT 1
		)
		ORDER BY c.code`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query latest exchange rates: %w", err)
	}
	return rows, nil
}
