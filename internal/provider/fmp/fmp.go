// Package fmp adapts the Financial Modeling Prep v3 quote and daily price
// endpoints.
package fmp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
)

const (
	Name           = "fmp"
	DefaultBaseURL = "https://financialmodelingprep.com/api/v3"
)

type Client struct {
	apiKey string
	opts   provider.Options
}

func New(apiKey string, opts ...provider.Option) *Client {
	return &Client{apiKey: apiKey, opts: provider.NewOptions(DefaultBaseURL, opts...)}
}

func (c *Client) Name() string { return Name }

type quote struct {
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	Price             float64  `json:"price"`
	ChangesPercentage float64  `json:"changesPercentage"`
	Change            float64  `json:"change"`
	DayLow            float64  `json:"dayLow"`
	DayHigh           float64  `json:"dayHigh"`
	MarketCap         *float64 `json:"marketCap"`
	Volume            *float64 `json:"volume"`
	Open              float64  `json:"open"`
	PreviousClose     float64  `json:"previousClose"`
}

type historical struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
	Volume   float64 `json:"volume"`
}

type historyResponse struct {
	Symbol     string       `json:"symbol"`
	Historical []historical `json:"historical"`
}

// get fetches path and decodes it into out. FMP reports failures as a JSON
// object {"Error Message": "..."} with a 200 status, even on endpoints that
// otherwise return arrays.
func (c *Client) get(ctx context.Context, op, symbol, path string, query url.Values, out any) error {
	query.Set("apikey", c.apiKey)
	u := fmt.Sprintf("%s/%s/%s?%s", c.opts.BaseURL, path, url.PathEscape(symbol), query.Encode())
	body, err := provider.Get(ctx, c.opts.HTTPClient, Name, op, symbol, u, c.opts.Header)
	if err != nil {
		return err
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			ErrorMessage string `json:"Error Message"`
		}
		if err := json.Unmarshal(trimmed, &env); err == nil && env.ErrorMessage != "" {
			kind := provider.KindNoData
			msg := strings.ToLower(env.ErrorMessage)
			switch {
			case strings.Contains(msg, "limit"):
				kind = provider.KindRateLimited
			case strings.Contains(msg, "api key"):
				kind = provider.KindUnauthorized
			}
			return provider.Fail(Name, op, symbol, kind, errors.New(env.ErrorMessage))
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return provider.Fail(Name, op, symbol, provider.KindMalformed, err)
	}
	return nil
}

func (c *Client) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	ctx, cancel := c.opts.QuoteContext(ctx)
	defer cancel()

	var res []quote
	if err := c.get(ctx, provider.OpQuote, symbol, "quote", url.Values{}, &res); err != nil {
		return models.Quote{}, err
	}
	if len(res) == 0 || res[0].Price <= 0 {
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, provider.KindNoData, nil)
	}

	r := res[0]
	q := models.Quote{
		Symbol:        symbol,
		Name:          r.Name,
		Price:         r.Price,
		PreviousClose: r.PreviousClose,
		Open:          r.Open,
		High:          r.DayHigh,
		Low:           r.DayLow,
		MarketCap:     r.MarketCap,
		ChangeAmount:  r.Change,
		ChangePercent: r.ChangesPercentage,
		Source:        Name,
	}
	if r.Volume != nil {
		v := int64(*r.Volume)
		q.Volume = &v
	}
	return q, nil
}

func (c *Client) FetchHistory(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	ctx, cancel := c.opts.HistoryContext(ctx)
	defer cancel()

	query := url.Values{"timeseries": {strconv.Itoa(max(days, 1))}}
	var res historyResponse
	if err := c.get(ctx, provider.OpHistory, symbol, "historical-price-full", query, &res); err != nil {
		return nil, err
	}

	points := make([]models.HistoryPoint, 0, len(res.Historical))
	for _, h := range res.Historical {
		day, err := provider.ParseDay(h.Date)
		if err != nil {
			return nil, provider.Fail(Name, provider.OpHistory, symbol, provider.KindMalformed, err)
		}
		adj := h.AdjClose
		if adj <= 0 {
			adj = h.Close
		}
		points = append(points, models.HistoryPoint{
			Date:     day,
			Open:     h.Open,
			High:     h.High,
			Low:      h.Low,
			Close:    h.Close,
			AdjClose: adj,
			Volume:   int64(h.Volume),
		})
	}
	points = provider.Normalize(symbol, points, provider.Window(c.opts.Clock.Now(), days))
	if len(points) == 0 {
		return nil, provider.Fail(Name, provider.OpHistory, symbol, provider.KindNoData, nil)
	}
	return points, nil
}
