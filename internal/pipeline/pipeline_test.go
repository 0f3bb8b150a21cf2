package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"ratecollector/internal/pipeline"
	"ratecollector/pkg/sjc"
	"ratecollector/pkg/storage/postgres"
	"ratecollector/pkg/vcb"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *postgres.Client {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "pipeline.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	client := &postgres.Client{DB: db}
	require.NoError(t, client.AutoMigrate())

	t.Cleanup(func() { client.Close() })
	return client
}

const fxBody = `{
	"UpdatedDate": "2025-05-08T08:30:00",
	"Data": [
		{"currencyCode":"USD","currencyName":"US DOLLAR","cash":"25,120.00","transfer":"25,150.00","sell":"25,480.00"},
		{"currencyCode":"EUR","currencyName":"EURO","cash":"26,900.12","transfer":"27,000.34","sell":"28,100.56"},
		{"currencyCode":"JPY","currencyName":"YEN","cash":"158.11","transfer":"159.72","sell":"168.27"},
		{"currencyCode":"GBP","currencyName":"POUND","cash":"31,000.00","transfer":"31,300.00","sell":"32,200.00"},
		{"currencyCode":"AUD","currencyName":"AUS DOLLAR","cash":"16,100.00","transfer":"16,200.00","sell":"16,800.00"},
		{"currencyCode":"XXX","currencyName":"NO QUOTE","cash":"0.00","transfer":"0.00","sell":"0.00"}
	]
}`

const goldBody = `{
	"success": true,
	"latestDate": "13:48 08/05/2025",
	"data": [
		{"TypeName":"Vàng SJC 1L, 10L, 1KG","BranchName":"Hồ Chí Minh","BuyValue":117500000.0,"SellValue":119500000.0},
		{"TypeName":"Nhẫn SJC 99,99%","BranchName":"Hồ Chí Minh","BuyValue":111000000.0,"SellValue":114000000.0}
	]
}`

func staticServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func failingServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRunPersistsBothFeeds(t *testing.T) {
	store := newTestStore(t)
	log := zap.NewNop()

	fx := vcb.NewClient(staticServer(t, fxBody).URL, 5*time.Second, log)
	gold := sjc.NewClient(staticServer(t, goldBody).URL, "1", 5*time.Second, log)

	p := pipeline.New(fx, gold, store, log)
	sum := p.Run(context.Background())

	// six FX records, one dropped by the adapter for its sentinel sell
	require.Equal(t, 5, sum.FXPersisted)
	require.Equal(t, 0, sum.FXSkipped)
	require.False(t, sum.FXBatchFailed)
	require.Equal(t, 2, sum.GoldPersisted)
	require.False(t, sum.GoldBatchFailed)
	require.Equal(t, pipeline.StateIdle, p.State())

	var rateCount, goldCount int64
	require.NoError(t, store.DB.Model(&postgres.ExchangeRate{}).Count(&rateCount).Error)
	require.NoError(t, store.DB.Model(&postgres.GoldPrice{}).Count(&goldCount).Error)
	require.EqualValues(t, 5, rateCount)
	require.EqualValues(t, 2, goldCount)

	// the batch source time is attached identically to every FX fact
	var rates []postgres.ExchangeRate
	require.NoError(t, store.DB.Find(&rates).Error)
	for _, r := range rates {
		require.NotNil(t, r.SourceUpdateTime)
	}
}

func TestRunGoldFailureLeavesFXUnaffected(t *testing.T) {
	store := newTestStore(t)
	log := zap.NewNop()

	fx := vcb.NewClient(staticServer(t, fxBody).URL, 5*time.Second, log)
	gold := sjc.NewClient(failingServer(t).URL, "1", 5*time.Second, log)

	p := pipeline.New(fx, gold, store, log)
	sum := p.Run(context.Background())

	require.Equal(t, 5, sum.FXPersisted)
	require.True(t, sum.GoldBatchFailed)
	require.Equal(t, 0, sum.GoldPersisted)
	require.Equal(t, pipeline.StateIdle, p.State())

	var rateCount, goldCount int64
	require.NoError(t, store.DB.Model(&postgres.ExchangeRate{}).Count(&rateCount).Error)
	require.NoError(t, store.DB.Model(&postgres.GoldPrice{}).Count(&goldCount).Error)
	require.EqualValues(t, 5, rateCount)
	require.EqualValues(t, 0, goldCount)
}

func TestRunFXFailureStillProcessesGold(t *testing.T) {
	store := newTestStore(t)
	log := zap.NewNop()

	fx := vcb.NewClient(failingServer(t).URL, 5*time.Second, log)
	gold := sjc.NewClient(staticServer(t, goldBody).URL, "1", 5*time.Second, log)

	p := pipeline.New(fx, gold, store, log)
	sum := p.Run(context.Background())

	require.True(t, sum.FXBatchFailed)
	require.Equal(t, 2, sum.GoldPersisted)
	require.Equal(t, pipeline.StateIdle, p.State())
}

func TestRunSecondPassAppendsFactsNotDimensions(t *testing.T) {
	store := newTestStore(t)
	log := zap.NewNop()

	fx := vcb.NewClient(staticServer(t, fxBody).URL, 5*time.Second, log)
	gold := sjc.NewClient(staticServer(t, goldBody).URL, "1", 5*time.Second, log)

	p := pipeline.New(fx, gold, store, log)
	p.Run(context.Background())
	p.Run(context.Background())

	var currencyCount, rateCount int64
	require.NoError(t, store.DB.Model(&postgres.Currency{}).Count(&currencyCount).Error)
	require.NoError(t, store.DB.Model(&postgres.ExchangeRate{}).Count(&rateCount).Error)
	require.EqualValues(t, 5, currencyCount)
	require.EqualValues(t, 10, rateCount)
}
