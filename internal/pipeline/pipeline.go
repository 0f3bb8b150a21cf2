// Package pipeline sequences the feed adapters, dimension resolution and
// fact writes for one collection run.
package pipeline

import (
	"context"

	"ratecollector/pkg/sjc"
	"ratecollector/pkg/storage/postgres"
	"ratecollector/pkg/vcb"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// State names the phase a run is in. Transitions are strictly sequential:
// Idle → FetchingFX → PersistingFX → FetchingGold → PersistingGold →
// Reporting → Idle. A total-batch fetch failure skips the matching
// persisting state.
type State string

const (
	StateIdle           State = "idle"
	StateFetchingFX     State = "fetching_fx"
	StatePersistingFX   State = "persisting_fx"
	StateFetchingGold   State = "fetching_gold"
	StatePersistingGold State = "persisting_gold"
	StateReporting      State = "reporting"
)

// FXFeed is the exchange-rate adapter contract.
type FXFeed interface {
	FetchRates(ctx context.Context) ([]vcb.Rate, string, error)
}

// GoldFeed is the gold-price adapter contract.
type GoldFeed interface {
	FetchPrices(ctx context.Context) ([]sjc.Price, string, error)
}

// Store is the slice of the storage client the pipeline needs.
type Store interface {
	ResolveCurrency(ctx context.Context, code, name string) (uint, error)
	InsertExchangeRate(ctx context.Context, currencyID uint, buyCash, buyTransfer decimal.NullDecimal, sell decimal.Decimal, sourceTime string) error
	ResolveGoldType(ctx context.Context, name, originalType, city, provider string) (uint, error)
	InsertGoldPrice(ctx context.Context, goldTypeID uint, buy, sell decimal.NullDecimal, unit, sourceTime string) error
	LatestExchangeRates(ctx context.Context) ([]postgres.LatestRate, error)
	LatestGoldPrices(ctx context.Context) ([]postgres.LatestGoldPrice, error)
}

// Summary reports what one run did.
type Summary struct {
	FXPersisted     int
	FXSkipped       int
	FXBatchFailed   bool
	GoldPersisted   int
	GoldSkipped     int
	GoldBatchFailed bool
}

type Pipeline struct {
	fx     FXFeed
	gold   GoldFeed
	store  Store
	logger *zap.Logger

	state State
}

func New(fx FXFeed, gold GoldFeed, store Store, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		fx:     fx,
		gold:   gold,
		store:  store,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current run phase.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.logger.Debug("pipeline state", zap.String("from", string(p.state)), zap.String("to", string(s)))
	p.state = s
}

// Run executes one synchronous collection pass. A failed fetch or a bad
// record never aborts the run: the failing feed or record is skipped and
// everything else proceeds.
func (p *Pipeline) Run(ctx context.Context) Summary {
	var sum Summary

	p.setState(StateFetchingFX)
	rates, fxTime, err := p.fx.FetchRates(ctx)
	if err != nil {
		p.logger.Warn("exchange rate batch failed, skipping persistence", zap.Error(err))
		sum.FXBatchFailed = true
	} else {
		p.setState(StatePersistingFX)
		sum.FXPersisted, sum.FXSkipped = p.persistRates(ctx, rates, fxTime)
		p.logger.Info("exchange rates persisted",
			zap.Int("persisted", sum.FXPersisted),
			zap.Int("skipped", sum.FXSkipped),
			zap.String("source_time", fxTime))
	}

	p.setState(StateFetchingGold)
	prices, goldTime, err := p.gold.FetchPrices(ctx)
	if err != nil {
		p.logger.Warn("gold price batch failed, skipping persistence",
			zap.Error(err), zap.String("source_time", goldTime))
		sum.GoldBatchFailed = true
	} else {
		p.setState(StatePersistingGold)
		sum.GoldPersisted, sum.GoldSkipped = p.persistGold(ctx, prices, goldTime)
		p.logger.Info("gold prices persisted",
			zap.Int("persisted", sum.GoldPersisted),
			zap.Int("skipped", sum.GoldSkipped),
			zap.String("source_time", goldTime))
	}

	p.setState(StateReporting)
	p.report(ctx)

	p.setState(StateIdle)
	return sum
}

// persistRates resolves and writes each record independently; a failure for
// one currency never blocks the next.
func (p *Pipeline) persistRates(ctx context.Context, rates []vcb.Rate, sourceTime string) (persisted, skipped int) {
	for _, rate := range rates {
		currencyID, err := p.store.ResolveCurrency(ctx, rate.Code, rate.Name)
		if err != nil {
			p.logger.Warn("failed to resolve currency", zap.String("code", rate.Code), zap.Error(err))
			skipped++
			continue
		}

		if err := p.store.InsertExchangeRate(ctx, currencyID, rate.BuyCash, rate.BuyTransfer, rate.Sell, sourceTime); err != nil {
			p.logger.Warn("failed to insert exchange rate", zap.String("code", rate.Code), zap.Error(err))
			skipped++
			continue
		}
		persisted++
	}
	return persisted, skipped
}

func (p *Pipeline) persistGold(ctx context.Context, prices []sjc.Price, sourceTime string) (persisted, skipped int) {
	for _, price := range prices {
		goldTypeID, err := p.store.ResolveGoldType(ctx, price.TypeName, price.OriginalType, price.City, sjc.Provider)
		if err != nil {
			p.logger.Warn("failed to resolve gold type", zap.String("name", price.TypeName), zap.Error(err))
			skipped++
			continue
		}

		sell := decimal.NullDecimal{Decimal: price.Sell, Valid: true}
		if err := p.store.InsertGoldPrice(ctx, goldTypeID, price.Buy, sell, price.Unit, sourceTime); err != nil {
			p.logger.Warn("failed to insert gold price", zap.String("name", price.TypeName), zap.Error(err))
			skipped++
			continue
		}
		persisted++
	}
	return persisted, skipped
}
