package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
	"portfoliotracker/internal/provider/providermock"
)

func TestProbeWritesOneRecordPerCall(t *testing.T) {
	t.Parallel()

	// Arrange
	ctrl := gomock.NewController(t)
	yahoo := providermock.NewMockProvider(ctrl)
	yahoo.EXPECT().Name().Return("yahoo").AnyTimes()
	yahoo.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(models.Quote{Symbol: "AAPL", Price: 170}, nil)
	yahoo.EXPECT().FetchHistory(gomock.Any(), "AAPL", 7).Return([]models.HistoryPoint{
		{Date: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), Close: 172},
		{Date: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), Close: 171},
	}, nil)

	finnhub := providermock.NewMockProvider(ctrl)
	finnhub.EXPECT().Name().Return("finnhub").AnyTimes()
	finnhub.EXPECT().FetchQuote(gomock.Any(), "AAPL").
		Return(models.Quote{}, provider.Fail("finnhub", provider.OpQuote, "AAPL", provider.KindRateLimited, nil))
	finnhub.EXPECT().FetchHistory(gomock.Any(), "AAPL", 7).
		Return(nil, provider.Fail("finnhub", provider.OpHistory, "AAPL", provider.KindUnsupported, nil))

	var buf bytes.Buffer

	// Act
	n, err := probe(t.Context(), []provider.Provider{yahoo, finnhub}, []string{"AAPL"}, options{days: 7, history: true, concurrency: 1}, &buf)

	// Assert
	require.NoError(t, err)
	require.Equal(t, 4, n)

	var doc struct {
		Results []result `json:"results"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Results, 4)

	byKey := map[string]result{}
	for _, r := range doc.Results {
		byKey[r.Provider+"/"+r.Op] = r
	}
	require.True(t, byKey["yahoo/quote"].OK)
	require.Equal(t, 2, byKey["yahoo/history"].Points)
	require.Equal(t, "2024-03-11", byKey["yahoo/history"].First)
	require.Equal(t, "2024-03-12", byKey["yahoo/history"].Last)
	require.False(t, byKey["finnhub/quote"].OK)
	require.Equal(t, provider.KindRateLimited.String(), byKey["finnhub/quote"].Kind)
	require.Equal(t, provider.KindUnsupported.String(), byKey["finnhub/history"].Kind)
}

func TestProbeFiltersProviders(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fmp := providermock.NewMockProvider(ctrl)
	fmp.EXPECT().Name().Return("fmp").AnyTimes()
	fmp.EXPECT().FetchQuote(gomock.Any(), gomock.Any()).Times(0)

	var buf bytes.Buffer
	n, err := probe(t.Context(), []provider.Provider{fmp}, []string{"AAPL"}, options{only: nameSet("yahoo, twelvedata")}, &buf)

	require.NoError(t, err)
	require.Zero(t, n)
	require.JSONEq(t, `{"results":[]}`, buf.String())
}
