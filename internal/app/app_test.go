package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"portfoliotracker/internal/app"
	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/config"
	"portfoliotracker/internal/httpx/httpxmock"
	"portfoliotracker/internal/models"
	"portfoliotracker/internal/repository/memory"
)

func names(t *testing.T, a *app.App) ([]string, []string) {
	t.Helper()
	return a.Quotes.Providers(), a.History.Providers()
}

func TestNewBuildsChainsInPriorityOrder(t *testing.T) {
	t.Parallel()

	// Arrange
	cfg := config.Default()
	cfg.Providers.Finnhub.APIKey = "fh"
	cfg.Providers.AlphaVantage.APIKey = "av"
	cfg.Providers.TwelveData.APIKey = "td"
	cfg.Providers.FMP.APIKey = "fmp"
	doer := httpxmock.NewMockDoer(gomock.NewController(t))

	// Act
	a, err := app.New(cfg,
		app.WithRepository(memory.New()),
		app.WithHTTPClient(doer),
		app.WithClock(clock.NewFake(time.Now())))
	require.NoError(t, err)

	// Assert
	quotes, history := names(t, a)
	require.Equal(t, []string{"finnhub", "yahoo", "twelvedata", "fmp", "alphavantage"}, quotes)
	require.Equal(t, []string{"yahoo", "twelvedata", "fmp", "alphavantage"}, history)
	require.Len(t, a.Adapters.History, 4)
	require.Equal(t, cfg.Providers.Yahoo.HistoryDelay, a.Adapters.History[0].Delay)
	require.Equal(t, cfg.Providers.TwelveData.HistoryDelay, a.Adapters.History[1].Delay)
	require.NoError(t, a.Close())
}

func TestNewSkipsProvidersWithoutKeys(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.DB.Driver = "memory"
	cfg.Providers.FMP.APIKey = "fmp"
	cfg.Providers.FMP.Enabled = false

	a, err := app.New(cfg)
	require.NoError(t, err)

	quotes, history := names(t, a)
	require.Equal(t, []string{"yahoo"}, quotes)
	require.Equal(t, []string{"yahoo"}, history)
	require.NoError(t, a.Repo.Ping(t.Context()))
}

func TestHeldSymbolsCoversActiveUsers(t *testing.T) {
	t.Parallel()

	// Arrange
	store := memory.New()
	store.PutUser(models.User{ID: "u1", Active: true})
	store.PutUser(models.User{ID: "u2", Active: false})
	store.PutUser(models.User{ID: "u3", Active: true})
	store.PutPortfolio(models.Portfolio{ID: "p1", UserID: "u1", Holdings: []models.Holding{{ID: "h1", Symbol: "AAPL"}, {ID: "h2", Symbol: "MSFT"}}})
	store.PutPortfolio(models.Portfolio{ID: "p2", UserID: "u2", Holdings: []models.Holding{{ID: "h3", Symbol: "TSLA"}}})
	store.PutPortfolio(models.Portfolio{ID: "p3", UserID: "u3", Holdings: []models.Holding{{ID: "h4", Symbol: "aapl"}, {ID: "h5", Symbol: "NVDA"}}})

	a, err := app.New(config.Default(), app.WithRepository(store))
	require.NoError(t, err)

	// Act
	got, err := a.HeldSymbols(t.Context())

	// Assert
	require.NoError(t, err)
	require.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, got)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.DB.Driver = "oracle"

	_, err := app.New(cfg)

	require.ErrorContains(t, err, "unsupported db driver")
}

func TestNewClockUsesSnapshotLocation(t *testing.T) {
	t.Parallel()

	// Arrange
	cfg := config.Default()
	cfg.Snapshot.Location = "America/New_York"

	// Act
	clk := app.NewClock(cfg, nil)

	// Assert
	require.Equal(t, "America/New_York", clk.Location.String())
	require.Equal(t, "America/New_York", clk.Now().Location().String())
}

func TestNewClockFallsBackToUTC(t *testing.T) {
	t.Parallel()

	// Arrange
	cfg := config.Default()
	cfg.Snapshot.Location = "Mars/Olympus_Mons"

	// Act
	clk := app.NewClock(cfg, nil)

	// Assert
	require.Equal(t, time.UTC, clk.Location)
}
