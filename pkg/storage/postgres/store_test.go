package postgres_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ratecollector/pkg/storage/postgres"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestClient runs the store against sqlite so the GORM layer and the
// resolver's conflict protocol are exercised without a live Postgres.
func newTestClient(t *testing.T) *postgres.Client {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "store.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	client := &postgres.Client{DB: db}
	require.NoError(t, client.AutoMigrate())

	t.Cleanup(func() { client.Close() })
	return client
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func nullDecimal(t *testing.T, s string) decimal.NullDecimal {
	t.Helper()
	return decimal.NullDecimal{Decimal: mustDecimal(t, s), Valid: true}
}

func TestResolveCurrencyIdempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	first, err := client.ResolveCurrency(ctx, "USD", "US DOLLAR")
	require.NoError(t, err)
	require.NotZero(t, first)

	second, err := client.ResolveCurrency(ctx, "USD", "US DOLLAR")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := client.ResolveCurrency(ctx, "EUR", "EURO")
	require.NoError(t, err)
	require.NotEqual(t, first, other)

	var count int64
	require.NoError(t, client.DB.Model(&postgres.Currency{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestResolveCurrencyConcurrent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	const callers = 8
	ids := make([]uint, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = client.ResolveCurrency(ctx, "JPY", "YEN")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}

	var count int64
	require.NoError(t, client.DB.Model(&postgres.Currency{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestResolveGoldTypeNaturalKey(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	sjcID, err := client.ResolveGoldType(ctx, "Vàng SJC 1L", "Vàng SJC 1L", "Hồ Chí Minh", "SJC")
	require.NoError(t, err)

	again, err := client.ResolveGoldType(ctx, "Vàng SJC 1L", "Vàng SJC 1L", "Hồ Chí Minh", "SJC")
	require.NoError(t, err)
	require.Equal(t, sjcID, again)

	// same name under a different provider is a different instrument
	otherProvider, err := client.ResolveGoldType(ctx, "Vàng SJC 1L", "Vàng SJC 1L", "Hà Nội", "DOJI")
	require.NoError(t, err)
	require.NotEqual(t, sjcID, otherProvider)
}

func TestExchangeRateRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.ResolveCurrency(ctx, "USD", "US DOLLAR")
	require.NoError(t, err)

	buyCash := nullDecimal(t, "12345.6789")
	err = client.InsertExchangeRate(ctx, id, buyCash, decimal.NullDecimal{}, mustDecimal(t, "25480.00"), "2025-05-08 08:30:00")
	require.NoError(t, err)

	latest, err := client.LatestExchangeRates(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)

	got := latest[0]
	require.Equal(t, "USD", got.CurrencyCode)
	require.True(t, got.BuyCash.Valid)
	require.True(t, got.BuyCash.Decimal.Equal(buyCash.Decimal), "got %s", got.BuyCash.Decimal)
	require.False(t, got.BuyTransfer.Valid)
	require.True(t, got.Sell.Equal(mustDecimal(t, "25480.00")))

	require.NotNil(t, got.SourceUpdateTime)
	want := time.Date(2025, 5, 8, 8, 30, 0, 0, time.FixedZone("+07", 7*60*60))
	require.Equal(t, want.Unix(), got.SourceUpdateTime.Unix())
}

func TestInsertExchangeRateUnknownSourceTimeIsNull(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.ResolveCurrency(ctx, "EUR", "EURO")
	require.NoError(t, err)

	err = client.InsertExchangeRate(ctx, id, decimal.NullDecimal{}, decimal.NullDecimal{}, mustDecimal(t, "28100.56"), "")
	require.NoError(t, err)

	latest, err := client.LatestExchangeRates(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Nil(t, latest[0].SourceUpdateTime)
}

func TestInsertExchangeRateUnparsableSourceTimeStoresNullAndWarns(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	core, observed := observer.New(zapcore.WarnLevel)
	client.Logger = zap.New(core)

	id, err := client.ResolveCurrency(ctx, "GBP", "POUND")
	require.NoError(t, err)

	// An unknown publication time is a null attribute, not a write failure,
	// but it must leave a trace in the log.
	err = client.InsertExchangeRate(ctx, id, decimal.NullDecimal{}, decimal.NullDecimal{}, mustDecimal(t, "32200.00"), "not a timestamp")
	require.NoError(t, err)

	latest, err := client.LatestExchangeRates(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Nil(t, latest[0].SourceUpdateTime)

	require.Equal(t, 1, observed.FilterMessage("storing NULL source update time").Len())
}

func TestLatestExchangeRateTiebreakOnID(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	id, err := client.ResolveCurrency(ctx, "USD", "US DOLLAR")
	require.NoError(t, err)

	// two facts sharing a recorded_at: the larger id must win
	at := time.Date(2025, 5, 8, 9, 0, 0, 0, time.UTC)
	first := postgres.ExchangeRate{CurrencyID: id, RecordedAt: at, Sell: mustDecimal(t, "25480.00")}
	second := postgres.ExchangeRate{CurrencyID: id, RecordedAt: at, Sell: mustDecimal(t, "25490.00")}
	require.NoError(t, client.DB.Create(&first).Error)
	require.NoError(t, client.DB.Create(&second).Error)
	require.Greater(t, second.ID, first.ID)

	latest, err := client.LatestExchangeRates(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.True(t, latest[0].Sell.Equal(mustDecimal(t, "25490.00")), "got %s", latest[0].Sell)
}

func TestLatestReadersOnEmptyStore(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	rates, err := client.LatestExchangeRates(ctx)
	require.NoError(t, err)
	require.Empty(t, rates)

	prices, err := client.LatestGoldPrices(ctx)
	require.NoError(t, err)
	require.Empty(t, prices)
}

func TestLatestGoldPricePerType(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	barID, err := client.ResolveGoldType(ctx, "Vàng SJC 1L", "Vàng SJC 1L", "Hồ Chí Minh", "SJC")
	require.NoError(t, err)
	ringID, err := client.ResolveGoldType(ctx, "Nhẫn SJC 99,99%", "Nhẫn SJC 99,99%", "Hồ Chí Minh", "SJC")
	require.NoError(t, err)

	// two observations for the bar, one for the ring
	earlier := time.Date(2025, 5, 8, 9, 0, 0, 0, time.UTC)
	later := time.Date(2025, 5, 8, 10, 0, 0, 0, time.UTC)
	require.NoError(t, client.DB.Create(&postgres.GoldPrice{
		GoldTypeID: barID, RecordedAt: earlier,
		BuyPrice: nullDecimal(t, "117000000"), SellPrice: nullDecimal(t, "119000000"), Unit: "đồng/lượng",
	}).Error)
	require.NoError(t, client.DB.Create(&postgres.GoldPrice{
		GoldTypeID: barID, RecordedAt: later,
		BuyPrice: nullDecimal(t, "117500000"), SellPrice: nullDecimal(t, "119500000"), Unit: "đồng/lượng",
	}).Error)
	require.NoError(t, client.InsertGoldPrice(ctx, ringID, nullDecimal(t, "111000000"), nullDecimal(t, "114000000"), "đồng/lượng", ""))

	latest, err := client.LatestGoldPrices(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	byName := map[string]decimal.NullDecimal{}
	for _, g := range latest {
		byName[g.GoldTypeName] = g.SellPrice
	}
	require.True(t, byName["Vàng SJC 1L"].Decimal.Equal(mustDecimal(t, "119500000")))
	require.True(t, byName["Nhẫn SJC 99,99%"].Decimal.Equal(mustDecimal(t, "114000000")))
}
