package twelvedata_test

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
	"portfoliotracker/internal/provider/twelvedata"
)

func respond(body string) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString(body))}, nil
	}
}

func TestFetchQuote(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/quote", req.URL.Path)
			require.Equal(t, "AAPL", req.URL.Query().Get("symbol"))
			return respond(`{"symbol":"AAPL","name":"Apple Inc","exchange":"NASDAQ","currency":"USD","datetime":"2024-03-12",
"open":"173.15","high":"174.03","low":"171.01","close":"173.23","volume":"59825400","previous_close":"172.75",
"change":"0.48","percent_change":"0.27786","is_market_open":false}`)(req)
		}).
		Times(1)

	client := twelvedata.New("key", provider.WithHTTPClient(doer), provider.WithBaseURL("http://td.test"))

	// Act
	q, err := client.FetchQuote(t.Context(), "AAPL")

	// Assert
	require.NoError(t, err)
	require.Equal(t, "Apple Inc", q.Name)
	require.InDelta(t, 173.23, q.Price, 1e-9)
	require.InDelta(t, 173.15, q.Open, 1e-9)
	require.InDelta(t, 172.75, q.PreviousClose, 1e-9)
	require.InDelta(t, 0.48, q.ChangeAmount, 1e-9)
	require.InDelta(t, 0.27786, q.ChangePercent, 1e-9)
	require.Equal(t, int64(59825400), *q.Volume)
}

func TestFetchQuoteErrorStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want error
	}{
		{"rate limited", `{"code":429,"message":"You have run out of API credits","status":"error"}`, provider.ErrRateLimited},
		{"unknown symbol", `{"code":400,"message":"symbol not found","status":"error"}`, provider.ErrNoData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			doer := httpxmock.NewMockDoer(ctrl)
			doer.EXPECT().Do(gomock.Any()).DoAndReturn(respond(tc.body)).Times(1)

			_, err := twelvedata.New("key", provider.WithHTTPClient(doer)).FetchQuote(t.Context(), "AAPL")

			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestFetchHistoryReversesNewestFirst(t *testing.T) {
	t.Parallel()

	// Arrange
	now := time.Date(2024, 3, 13, 18, 0, 0, 0, time.UTC)
	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/time_series", req.URL.Path)
			require.Equal(t, "1day", req.URL.Query().Get("interval"))
			require.Equal(t, "30", req.URL.Query().Get("outputsize"))
			return respond(`{"meta":{"symbol":"AAPL"},"values":[
{"datetime":"2024-03-12","open":"173.15","high":"174.03","low":"171.01","close":"173.23","volume":"59825400"},
{"datetime":"2024-03-11","open":"172.94","high":"174.38","low":"172.05","close":"172.75","volume":"60139500"}],"status":"ok"}`)(req)
		}).
		Times(1)

	client := twelvedata.New("key", provider.WithHTTPClient(doer), provider.WithClock(clock.NewFake(now)))

	// Act
	points, err := client.FetchHistory(t.Context(), "AAPL", 30)

	// Assert
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "2024-03-11", clock.DayKey(points[0].Date))
	require.InDelta(t, 172.75, points[0].Close, 1e-9)
	require.InDelta(t, 174.38, points[0].High, 1e-9)
	require.Equal(t, "2024-03-12", clock.DayKey(points[1].Date))
	require.Equal(t, "AAPL", points[1].Symbol)
}

func TestFetchHistoryMalformedNumber(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(respond(`{"values":[{"datetime":"2024-03-12","open":"x","high":"1","low":"1","close":"1","volume":"1"}],"status":"ok"}`)).
		Times(1)

	_, err := twelvedata.New("key", provider.WithHTTPClient(doer)).FetchHistory(t.Context(), "AAPL", 30)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, provider.KindMalformed, perr.Kind)
}
