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

// ResolveGoldType maps a (name, provider) natural key to its dimension id,
// creating the row on first sight. Same conflict protocol as
// ResolveCurrency: one retry read after a duplicate-key insert failure.
func (c *Client) ResolveGoldType(ctx context.Context, name, originalType, city, provider string) (uint, error) {
	var existing GoldType
	err := c.DB.WithContext(ctx).Where("name = ? AND provider = ?", name, provider).First(&existing).Error
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("lookup gold type %q/%s: %w", name, provider, err)
	}

	created := GoldType{Name: name, OriginalType: originalType, City: city, Provider: provider}
	err = c.DB.WithContext(ctx).Create(&created).Error
	if err == nil {
		return created.ID, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return 0, fmt.Errorf("insert gold type %q/%s: %w", name, provider, err)
	}

	var winner GoldType
	if err := c.DB.WithContext(ctx).Where("name = ? AND provider = ?", name, provider).First(&winner).Error; err != nil {
		return 0, fmt.Errorf("re-read gold type %q/%s after conflict: %w", name, provider, err)
	}
	return winner.ID, nil
}

// InsertGoldPrice appends one observation in its own transaction.
func (c *Client) InsertGoldPrice(ctx context.Context, goldTypeID uint, buy, sell decimal.NullDecimal, unit, sourceTime string) error {
	sourceUpdateTime, err := sourceTimeToInstant(sourceTime)
	if err != nil {
		c.logger().Warn("storing NULL source update time",
			zap.Uint("gold_type_id", goldTypeID), zap.Error(err))
	}

	row := GoldPrice{
		GoldTypeID:       goldTypeID,
		BuyPrice:         buy,
		SellPrice:        sell,
		Unit:             unit,
		SourceUpdateTime: sourceUpdateTime,
	}

	if err := c.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert gold price for gold type %d: %w", goldTypeID, err)
	}
	return nil
}

// LatestGoldPrice is one gold type joined with its most recent observation.
type LatestGoldPrice struct {
	GoldTypeName     string
	OriginalType     string
	City             string
	Provider         string
	BuyPrice         decimal.NullDecimal
	SellPrice        decimal.NullDecimal
	Unit             string
	RecordedAt       time.Time
	SourceUpdateTime *time.Time
}

// LatestGoldPrices returns, per gold type, the observation with the greatest
// (recorded_at, id).
func (c *Client) LatestGoldPrices(ctx context.Context) ([]LatestGoldPrice, error) {
	var rows []LatestGoldPrice
	err := c.DB.WithContext(ctx).Raw(`
		SELECT gt.name AS gold_type_name,
		       gt.original_type,
		       gt.city,
		       gt.provider,
		       gp.buy_price,
		       gp.sell_price,
		       gp.unit,
		       gp.recorded_at,
		       gp.source_update_time
		FROM gold_prices gp
		JOIN gold_types gt ON gt.id = gp.gold_type_id
		WHERE gp.id = (
			SELECT gp2.id
			FROM gold_prices gp2
			WHERE gp2.gold_type_id = gp.gold_type_id
			ORDER BY gp2.recorded_at DESC, gp2.id DESC
			LIMIT 1
		)
		ORDER BY gt.provider, gt.name`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query latest gold prices: %w", err)
	}
	return rows, nil
}
