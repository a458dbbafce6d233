package aggregate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"portfoliotracker/internal/aggregate"
	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
	"portfoliotracker/internal/provider/providermock"
	"portfoliotracker/internal/repository/memory"
)

var now = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

func mockProvider(ctrl *gomock.Controller, name string) *providermock.MockProvider {
	p := providermock.NewMockProvider(ctrl)
	p.EXPECT().Name().Return(name).AnyTimes()
	return p
}

func noData(name string) error {
	return provider.Fail(name, provider.OpQuote, "AAPL", provider.KindNoData, nil)
}

// failingQuotes rejects every quote write.
type failingQuotes struct {
	*memory.Store
}

func (failingQuotes) UpsertQuote(context.Context, *models.Quote) error {
	return errors.New("disk full")
}

func TestGetQuoteFreshCacheSkipsProviders(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	p := providermock.NewMockProvider(ctrl)
	store := memory.New()
	require.NoError(t, store.UpsertQuote(t.Context(), &models.Quote{
		Symbol: "AAPL", Price: 170, Source: "yahoo", UpdatedAt: now.Add(-29 * time.Second),
	}))
	fake := clock.NewFake(now)
	agg := aggregate.NewQuotes(aggregate.QuoteConfig{}, store, []provider.Provider{p}, aggregate.WithClock(fake))

	// Act
	res, ok := agg.GetQuote(t.Context(), " aapl ")

	// Assert
	require.True(t, ok)
	require.Equal(t, aggregate.OriginCache, res.Origin)
	require.InDelta(t, 170, res.Quote.Price, 1e-9)
	require.Empty(t, fake.Sleeps())
}

func TestGetQuoteWalksProvidersInOrder(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	finnhub := mockProvider(ctrl, "finnhub")
	yahoo := mockProvider(ctrl, "yahoo")
	twelve := mockProvider(ctrl, "twelvedata")
	fmp := mockProvider(ctrl, "fmp")

	gomock.InOrder(
		finnhub.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(models.Quote{}, noData("finnhub")),
		yahoo.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(models.Quote{Price: 0}, nil),
		twelve.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(models.Quote{Name: "Apple Inc", Price: 160, PreviousClose: 155, ChangeAmount: 5}, nil),
	)
	fmp.EXPECT().FetchQuote(gomock.Any(), gomock.Any()).Times(0)

	store := memory.New()
	require.NoError(t, store.UpsertQuote(t.Context(), &models.Quote{
		Symbol: "AAPL", Price: 150, Source: "fmp", UpdatedAt: now.Add(-time.Minute),
	}))
	fake := clock.NewFake(now)
	agg := aggregate.NewQuotes(
		aggregate.QuoteConfig{ProviderDelay: 100 * time.Millisecond},
		store,
		[]provider.Provider{finnhub, yahoo, twelve, fmp},
		aggregate.WithClock(fake),
	)

	// Act
	res, ok := agg.GetQuote(t.Context(), "AAPL")

	// Assert
	require.True(t, ok)
	require.Equal(t, aggregate.OriginProvider, res.Origin)
	require.Equal(t, "twelvedata", res.Provider)
	require.True(t, res.Persisted)
	require.NoError(t, res.PersistErr)
	require.Equal(t, "AAPL", res.Quote.Symbol)
	require.Equal(t, "twelvedata", res.Quote.Source)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, fake.Sleeps())
	require.True(t, res.Quote.UpdatedAt.Equal(now.Add(200*time.Millisecond)))

	stored, err := store.GetQuote(t.Context(), "AAPL")
	require.NoError(t, err)
	require.InDelta(t, 160, stored.Price, 1e-9)
	require.Equal(t, "Apple Inc", stored.Name)
}

func TestGetQuoteAllFailWithoutCache(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	a := mockProvider(ctrl, "a")
	b := mockProvider(ctrl, "b")
	a.EXPECT().FetchQuote(gomock.Any(), "ZZZZ").Return(models.Quote{}, noData("a"))
	b.EXPECT().FetchQuote(gomock.Any(), "ZZZZ").Return(models.Quote{}, errors.New("boom"))

	agg := aggregate.NewQuotes(aggregate.QuoteConfig{}, memory.New(), []provider.Provider{a, b}, aggregate.WithClock(clock.NewFake(now)))

	res, ok := agg.GetQuote(t.Context(), "zzzz")

	require.False(t, ok)
	require.Equal(t, aggregate.QuoteResult{}, res)
}

func TestGetQuoteAllFailServesStaleCache(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	a := mockProvider(ctrl, "a")
	a.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(models.Quote{}, noData("a"))

	store := memory.New()
	old := now.Add(-72 * time.Hour)
	require.NoError(t, store.UpsertQuote(t.Context(), &models.Quote{Symbol: "AAPL", Price: 140, Source: "yahoo", UpdatedAt: old}))
	agg := aggregate.NewQuotes(aggregate.QuoteConfig{}, store, []provider.Provider{a}, aggregate.WithClock(clock.NewFake(now)))

	// Act
	res, ok := agg.GetQuote(t.Context(), "AAPL")

	// Assert
	require.True(t, ok)
	require.Equal(t, aggregate.OriginStale, res.Origin)
	require.InDelta(t, 140, res.Quote.Price, 1e-9)
	require.True(t, res.Quote.UpdatedAt.Equal(old))
}

func TestGetQuotePersistFailureStillReturnsValue(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	a := mockProvider(ctrl, "a")
	a.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(models.Quote{Price: 160}, nil)

	store := failingQuotes{memory.New()}
	agg := aggregate.NewQuotes(aggregate.QuoteConfig{}, store, []provider.Provider{a}, aggregate.WithClock(clock.NewFake(now)))

	// Act
	res, ok := agg.GetQuote(t.Context(), "AAPL")

	// Assert
	require.True(t, ok)
	require.Equal(t, aggregate.OriginProvider, res.Origin)
	require.False(t, res.Persisted)
	require.EqualError(t, res.PersistErr, "disk full")
	require.InDelta(t, 160, res.Quote.Price, 1e-9)
	require.Equal(t, "a", res.Quote.Source)
}

func TestGetQuotesOmitsFailuresAndPacesProviderCalls(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	p := mockProvider(ctrl, "p")
	p.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(models.Quote{Price: 160}, nil).Times(1)
	p.EXPECT().FetchQuote(gomock.Any(), "NOPE").Return(models.Quote{}, noData("p")).Times(1)

	store := memory.New()
	require.NoError(t, store.UpsertQuote(t.Context(), &models.Quote{Symbol: "MSFT", Price: 400, Source: "p", UpdatedAt: now}))
	fake := clock.NewFake(now)
	agg := aggregate.NewQuotes(
		aggregate.QuoteConfig{SymbolDelay: 200 * time.Millisecond, ProviderDelay: 100 * time.Millisecond},
		store,
		[]provider.Provider{p},
		aggregate.WithClock(fake),
	)

	// Act
	got := agg.GetQuotes(t.Context(), []string{"msft", "AAPL", "aapl", "NOPE", ""})

	// Assert
	require.Len(t, got, 2)
	require.Contains(t, got, "MSFT")
	require.Contains(t, got, "AAPL")
	require.NotContains(t, got, "NOPE")
	// MSFT is a cache hit, so only the AAPL -> NOPE transition is paced.
	require.Equal(t, []time.Duration{200 * time.Millisecond}, fake.Sleeps())
}

func TestGetQuotesStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	p := mockProvider(ctrl, "p")
	p.EXPECT().FetchQuote(gomock.Any(), gomock.Any()).Times(0)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	agg := aggregate.NewQuotes(aggregate.QuoteConfig{}, memory.New(), []provider.Provider{p}, aggregate.WithClock(clock.NewFake(now)))

	got := agg.GetQuotes(ctx, []string{"AAPL"})

	require.Empty(t, got)
}

func TestUniqueSymbols(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"AAPL", "BRK.B"}, aggregate.UniqueSymbols([]string{" aapl", "brk.b", "AAPL", " "}))
}

func TestGetQuoteCancelledSkipsProvidersAndServesStale(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	p := mockProvider(ctrl, "p")
	p.EXPECT().FetchQuote(gomock.Any(), gomock.Any()).Times(0)

	store := memory.New()
	require.NoError(t, store.UpsertQuote(t.Context(), &models.Quote{Symbol: "AAPL", Price: 140, Source: "p", UpdatedAt: now.Add(-time.Hour)}))
	agg := aggregate.NewQuotes(aggregate.QuoteConfig{}, store, []provider.Provider{p}, aggregate.WithClock(clock.NewFake(now)))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	// Act
	res, ok := agg.GetQuote(ctx, "AAPL")

	// Assert
	require.True(t, ok)
	require.Equal(t, aggregate.OriginStale, res.Origin)
}

func TestGetQuoteStopsChainWhenCancelledMidway(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	first := mockProvider(ctrl, "first")
	second := mockProvider(ctrl, "second")
	ctx, cancel := context.WithCancel(t.Context())
	first.EXPECT().FetchQuote(gomock.Any(), "AAPL").DoAndReturn(func(context.Context, string) (models.Quote, error) {
		cancel()
		return models.Quote{}, context.Canceled
	})
	second.EXPECT().FetchQuote(gomock.Any(), gomock.Any()).Times(0)

	agg := aggregate.NewQuotes(aggregate.QuoteConfig{}, memory.New(), []provider.Provider{first, second}, aggregate.WithClock(clock.NewFake(now)))

	// Act
	_, ok := agg.GetQuote(ctx, "AAPL")

	// Assert
	require.False(t, ok)
}
