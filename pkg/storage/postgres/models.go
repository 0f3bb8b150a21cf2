package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency is the dimension row for one tracked foreign currency.
// Rows are created lazily on first resolution and never updated.
type Currency struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"type:varchar(10);not null;uniqueIndex:idx_currencies_code"`
	Name string `gorm:"type:varchar(255);not null"`

	Rates []ExchangeRate `gorm:"foreignKey:CurrencyID;constraint:OnDelete:CASCADE"`
}

func (Currency) TableName() string {
	return "currencies"
}

// ExchangeRate is one immutable exchange-rate observation. RecordedAt is
// assigned by the database clock at insert time, never by the caller.
type ExchangeRate struct {
	ID         uint `gorm:"primaryKey"`
	CurrencyID uint `gorm:"not null;index:idx_exchange_rates_currency_id"`

	RecordedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_exchange_rates_recorded_at,sort:desc"`

	BuyCash     decimal.NullDecimal `gorm:"type:numeric(18,4)"`
	BuyTransfer decimal.NullDecimal `gorm:"type:numeric(18,4)"`
	Sell        decimal.Decimal     `gorm:"type:numeric(18,4);not null"`

	// SourceUpdateTime is the provider's self-reported publication time for
	// the whole batch; NULL when the provider's time field was unusable.
	SourceUpdateTime *time.Time `gorm:"index:idx_exchange_rates_source_update_time,sort:desc"`
}

func (ExchangeRate) TableName() string {
	return "exchange_rates"
}

// GoldType is the dimension row for one tracked gold instrument, unique per
// (name, provider).
type GoldType struct {
	ID           uint   `gorm:"primaryKey"`
	Name         string `gorm:"type:varchar(255);not null;uniqueIndex:idx_gold_types_name_provider"`
	OriginalType string `gorm:"type:varchar(255);not null"`
	City         string `gorm:"type:varchar(100)"`
	Provider     string `gorm:"type:varchar(50);not null;uniqueIndex:idx_gold_types_name_provider;index:idx_gold_types_provider"`

	Prices []GoldPrice `gorm:"foreignKey:GoldTypeID;constraint:OnDelete:CASCADE"`
}

func (GoldType) TableName() string {
	return "gold_types"
}

// GoldPrice is one immutable gold-price observation.
type GoldPrice struct {
	ID         uint `gorm:"primaryKey"`
	GoldTypeID uint `gorm:"not null;index:idx_gold_prices_gold_type_id"`

	RecordedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_gold_prices_recorded_at,sort:desc"`

	BuyPrice  decimal.NullDecimal `gorm:"type:numeric(18,4)"`
	SellPrice decimal.NullDecimal `gorm:"type:numeric(18,4)"`
	Unit      string              `gorm:"type:varchar(20);not null"`

	SourceUpdateTime *time.Time `gorm:"index:idx_gold_prices_source_update_time,sort:desc"`
}

func (GoldPrice) TableName() string {
	return "gold_prices"
}
