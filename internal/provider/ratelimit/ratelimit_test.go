package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider/providermock"
	"portfoliotracker/internal/provider/ratelimit"
)

func TestTokenBucketAllowsBurstThenBlocks(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	p := providermock.NewMockProvider(ctrl)
	p.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(models.Quote{Symbol: "AAPL", Price: 1}, nil).Times(2)

	wrapped := ratelimit.Wrap(p, 1, 2, 0)

	// Act
	_, err1 := wrapped.FetchQuote(t.Context(), "AAPL")
	_, err2 := wrapped.FetchQuote(t.Context(), "AAPL")

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err3 := wrapped.FetchQuote(ctx, "AAPL")

	// Assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.ErrorIs(t, err3, context.DeadlineExceeded)
}

func TestMinIntervalSpacesCalls(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	p := providermock.NewMockProvider(ctrl)
	p.EXPECT().FetchHistory(gomock.Any(), "MSFT", 5).Return(nil, nil).Times(2)

	wrapped := ratelimit.Wrap(p, 0, 0, 30*time.Millisecond)
	_, ok := wrapped.(*ratelimit.MinInterval)
	require.True(t, ok)

	// Act
	start := time.Now()
	_, err := wrapped.FetchHistory(t.Context(), "MSFT", 5)
	require.NoError(t, err)
	_, err = wrapped.FetchHistory(t.Context(), "MSFT", 5)
	require.NoError(t, err)

	// Assert
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWrapWithoutLimitsReturnsProvider(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	p := providermock.NewMockProvider(ctrl)

	require.Same(t, p, ratelimit.Wrap(p, 0, 0, 0))
}
