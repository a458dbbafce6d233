package yahoo_test

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/httpx/httpxmock"
	"portfoliotracker/internal/provider"
	"portfoliotracker/internal/provider/yahoo"
)

func respond(body string) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString(body))}, nil
	}
}

const quoteBody = `{"chart":{"result":[{"meta":{"currency":"USD","symbol":"AAPL","regularMarketPrice":189.5,
"previousClose":187.5,"chartPreviousClose":180,"regularMarketDayHigh":190,"regularMarketDayLow":186.25,
"regularMarketVolume":51000000,"longName":"Apple Inc.","shortName":"Apple","gmtoffset":-18000},
"timestamp":[1710250200],"indicators":{"quote":[{"open":[188],"high":[190],"low":[186.25],"close":[189.5],"volume":[51000000]}]}}],"error":null}}`

func TestFetchQuote(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/v8/finance/chart/AAPL", req.URL.Path)
			require.Equal(t, "1d", req.URL.Query().Get("range"))
			return respond(quoteBody)(req)
		}).
		Times(1)

	client := yahoo.New(provider.WithHTTPClient(doer), provider.WithBaseURL("http://yahoo.test"))

	// Act
	q, err := client.FetchQuote(t.Context(), "AAPL")

	// Assert
	require.NoError(t, err)
	require.Equal(t, "Apple Inc.", q.Name)
	require.Equal(t, "yahoo", q.Source)
	require.InDelta(t, 189.5, q.Price, 1e-9)
	require.InDelta(t, 187.5, q.PreviousClose, 1e-9)
	require.InDelta(t, 2.0, q.ChangeAmount, 1e-9)
	require.InDelta(t, 2.0/187.5*100, q.ChangePercent, 1e-9)
	require.InDelta(t, 188, q.Open, 1e-9)
	require.InDelta(t, 190, q.High, 1e-9)
	require.NotNil(t, q.Volume)
	require.Equal(t, int64(51000000), *q.Volume)
}

func TestFetchQuoteErrorDescription(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(respond(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)).
		Times(1)

	_, err := yahoo.New(provider.WithHTTPClient(doer)).FetchQuote(t.Context(), "GONE")

	require.ErrorIs(t, err, provider.ErrNoData)
}

func TestFetchHistorySkipsNullBarsAndSorts(t *testing.T) {
	t.Parallel()

	// Arrange
	now := time.Date(2024, 3, 14, 20, 0, 0, 0, time.UTC)
	// 14:30 UTC opens for 2024-03-11, 03-12, 03-13.
	d11 := time.Date(2024, 3, 11, 13, 30, 0, 0, time.UTC).Unix()
	d12 := time.Date(2024, 3, 12, 13, 30, 0, 0, time.UTC).Unix()
	d13 := time.Date(2024, 3, 13, 13, 30, 0, 0, time.UTC).Unix()
	body := `{"chart":{"result":[{"meta":{"symbol":"MSFT","gmtoffset":-14400},
"timestamp":[` + strconv.FormatInt(d11, 10) + `,` + strconv.FormatInt(d12, 10) + `,` + strconv.FormatInt(d13, 10) + `],
"indicators":{"quote":[{"open":[400,null,405],"high":[410,null,409],"low":[399,null,401],"close":[404.5,null,407.25],"volume":[100,null,300]}],
"adjclose":[{"adjclose":[404,null,407]}]}}],"error":null}}`

	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			require.Equal(t, "1d", q.Get("interval"))
			require.Equal(t, strconv.FormatInt(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC).Unix(), 10), q.Get("period1"))
			require.Equal(t, strconv.FormatInt(now.Unix(), 10), q.Get("period2"))
			return respond(body)(req)
		}).
		Times(1)

	client := yahoo.New(provider.WithHTTPClient(doer), provider.WithClock(clock.NewFake(now)))

	// Act
	points, err := client.FetchHistory(t.Context(), "MSFT", 10)

	// Assert
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, "2024-03-11", clock.DayKey(points[0].Date))
	require.Equal(t, "2024-03-13", clock.DayKey(points[1].Date))
	require.Equal(t, "MSFT", points[0].Symbol)
	require.InDelta(t, 404.5, points[0].Close, 1e-9)
	require.InDelta(t, 404, points[0].AdjClose, 1e-9)
	require.Equal(t, int64(300), points[1].Volume)
}

func TestFetchHistoryEmptyIsNoData(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	doer := httpxmock.NewMockDoer(ctrl)
	doer.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(respond(`{"chart":{"result":[{"meta":{"symbol":"X"},"indicators":{"quote":[{}]}}],"error":null}}`)).
		Times(1)

	_, err := yahoo.New(provider.WithHTTPClient(doer)).FetchHistory(t.Context(), "X", 5)

	require.ErrorIs(t, err, provider.ErrNoData)
}
