package alphavantage_test

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/httpx/httpxmock"
	"portfoliotracker/internal/provider"
	"portfoliotracker/internal/provider/alphavantage"
)

func respond(body string) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString(body))}, nil
	}
}

func TestFetchQuoteParsesStringFields(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			require.Equal(t, "GLOBAL_QUOTE", q.Get("function"))
			require.Equal(t, "IBM", q.Get("symbol"))
			require.Equal(t, "demo", q.Get("apikey"))
			return respond(`{"Global Quote":{"01. symbol":"IBM","02. open":"168.80","03. high":"170.12","04. low":"168.12",
"05. price":"169.90","06. volume":"3520045","07. latest trading day":"2024-03-12","08. previous close":"168.11",
"09. change":"1.79","10. change percent":"1.0648%"}}`)(req)
		}).
		Times(1)

	// Act
	q, err := alphavantage.New("demo", provider.WithHTTPClient(doer)).FetchQuote(t.Context(), "IBM")

	// Assert
	require.NoError(t, err)
	require.InDelta(t, 169.90, q.Price, 1e-9)
	require.InDelta(t, 168.11, q.PreviousClose, 1e-9)
	require.InDelta(t, 1.79, q.ChangeAmount, 1e-9)
	require.InDelta(t, 1.0648, q.ChangePercent, 1e-9)
	require.Equal(t, int64(3520045), *q.Volume)
	require.Equal(t, "alphavantage", q.Source)
}

func TestFetchQuoteEnvelopes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want error
	}{
		{"rate limit note", `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, provider.ErrRateLimited},
		{"information", `{"Information":"daily limit"}`, provider.ErrRateLimited},
		{"error message", `{"Error Message":"Invalid API call."}`, provider.ErrNoData},
		{"empty quote", `{"Global Quote":{}}`, provider.ErrNoData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			doer := httpxmock.NewMockDoer(ctrl)
			doer.EXPECT().Do(gomock.Any()).DoAndReturn(respond(tc.body)).Times(1)

			_, err := alphavantage.New("demo", provider.WithHTTPClient(doer)).FetchQuote(t.Context(), "IBM")

			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFetchHistoryOrdersOldestFirstAndTrimsWindow(t *testing.T) {
	t.Parallel()

	// Arrange
	now := time.Date(2024, 3, 13, 18, 0, 0, 0, time.UTC)
	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "TIME_SERIES_DAILY", req.URL.Query().Get("function"))
			require.Equal(t, "compact", req.URL.Query().Get("outputsize"))
			return respond(`{"Meta Data":{"2. Symbol":"IBM"},"Time Series (Daily)":{
"2024-03-12":{"1. open":"191.0","2. high":"193.0","3. low":"190.5","4. close":"192.5","5. volume":"4000"},
"2024-03-11":{"1. open":"190.0","2. high":"192.0","3. low":"189.5","4. close":"191.0","5. volume":"3000"},
"2024-03-01":{"1. open":"180.0","2. high":"181.0","3. low":"179.0","4. close":"180.5","5. volume":"2000"}}}`)(req)
		}).
		Times(1)

	client := alphavantage.New("demo", provider.WithHTTPClient(doer), provider.WithClock(clock.NewFake(now)))

	// Act
	points, err := client.FetchHistory(t.Context(), "IBM", 5)

	// Assert
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "2024-03-11", clock.DayKey(points[0].Date))
	require.Equal(t, "2024-03-12", clock.DayKey(points[1].Date))
	require.InDelta(t, 192.5, points[1].Close, 1e-9)
	require.InDelta(t, 192.5, points[1].AdjClose, 1e-9)
	require.Equal(t, int64(4000), points[1].Volume)
}

func TestFetchHistoryFullOutputForLongWindows(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "full", req.URL.Query().Get("outputsize"))
			return respond(`{"Time Series (Daily)":{}}`)(req)
		}).
		Times(1)

	_, err := alphavantage.New("demo", provider.WithHTTPClient(doer)).FetchHistory(t.Context(), "IBM", 365)

	require.ErrorIs(t, err, provider.ErrNoData)
}
