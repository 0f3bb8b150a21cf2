package pipeline

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// report logs the freshest observation per instrument after a run. Read-only;
// failures here are logged and never affect the run's outcome.
func (p *Pipeline) report(ctx context.Context) {
	rates, err := p.store.LatestExchangeRates(ctx)
	if err != nil {
		p.logger.Warn("failed to read latest exchange rates", zap.Error(err))
	} else {
		for _, r := range rates {
			p.logger.Info("latest exchange rate",
				zap.String("code", r.CurrencyCode),
				zap.String("name", r.CurrencyName),
				zap.String("buy_cash", formatNullDecimal(r.BuyCash)),
				zap.String("buy_transfer", formatNullDecimal(r.BuyTransfer)),
				zap.String("sell", r.Sell.StringFixed(2)),
				zap.Time("recorded_at", r.RecordedAt),
				zap.String("source_update_time", formatNullTime(r.SourceUpdateTime)))
		}
	}

	prices, err := p.store.LatestGoldPrices(ctx)
	if err != nil {
		p.logger.Warn("failed to read latest gold prices", zap.Error(err))
		return
	}
	for _, g := range prices {
		p.logger.Info("latest gold price",
			zap.String("type", g.GoldTypeName),
			zap.String("provider", g.Provider),
			zap.String("buy", formatNullDecimal(g.BuyPrice)),
			zap.String("sell", formatNullDecimal(g.SellPrice)),
			zap.String("unit", g.Unit),
			zap.Time("recorded_at", g.RecordedAt),
			zap.String("source_update_time", formatNullTime(g.SourceUpdateTime)))
	}
}

func formatNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}

func formatNullTime(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.Format(time.RFC3339)
}
