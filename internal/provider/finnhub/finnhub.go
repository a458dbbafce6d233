// Package finnhub adapts the Finnhub quote endpoint.
// https://finnhub.io/docs/api/quote
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
)

const (
	Name           = "finnhub"
	DefaultBaseURL = "https://finnhub.io/api/v1"
)

// Client is a Finnhub adapter. Finnhub's daily candles are a paid feature,
// so only quotes are served.
type Client struct {
	apiKey string
	opts   provider.Options
}

func New(apiKey string, opts ...provider.Option) *Client {
	return &Client{apiKey: apiKey, opts: provider.NewOptions(DefaultBaseURL, opts...)}
}

func (c *Client) Name() string { return Name }

type quoteResponse struct {
	Current       float64  `json:"c"`
	Change        *float64 `json:"d"`
	ChangePercent *float64 `json:"dp"`
	High          float64  `json:"h"`
	Low           float64  `json:"l"`
	Open          float64  `json:"o"`
	PreviousClose float64  `json:"pc"`
	Timestamp     int64    `json:"t"`
	Error         string   `json:"error"`
}

func (c *Client) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	ctx, cancel := c.opts.QuoteContext(ctx)
	defer cancel()

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("token", c.apiKey)
	u := fmt.Sprintf("%s/quote?%s", c.opts.BaseURL, query.Encode())

	body, err := provider.Get(ctx, c.opts.HTTPClient, Name, provider.OpQuote, symbol, u, c.opts.Header)
	if err != nil {
		return models.Quote{}, err
	}

	var res quoteResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, provider.KindMalformed, err)
	}
	if res.Error != "" {
		kind := provider.KindNoData
		if strings.Contains(strings.ToLower(res.Error), "limit") {
			kind = provider.KindRateLimited
		}
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, kind, fmt.Errorf("%s", res.Error))
	}
	// Unknown symbols come back as an all-zero object.
	if res.Current <= 0 {
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, provider.KindNoData, nil)
	}

	q := models.Quote{
		Symbol:        symbol,
		Price:         res.Current,
		PreviousClose: res.PreviousClose,
		Open:          res.Open,
		High:          res.High,
		Low:           res.Low,
		Source:        Name,
	}
	if res.Change != nil {
		q.ChangeAmount = *res.Change
	} else if res.PreviousClose > 0 {
		q.ChangeAmount = res.Current - res.PreviousClose
	}
	if res.ChangePercent != nil {
		q.ChangePercent = *res.ChangePercent
	} else if res.PreviousClose > 0 {
		q.ChangePercent = q.ChangeAmount / res.PreviousClose * 100
	}
	return q, nil
}

func (c *Client) FetchHistory(_ context.Context, symbol string, _ int) ([]models.HistoryPoint, error) {
	return nil, provider.Fail(Name, provider.OpHistory, symbol, provider.KindUnsupported, nil)
}
