// Package twelvedata adapts the Twelve Data /quote and /time_series endpoints.
package twelvedata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
)

const (
	Name           = "twelvedata"
	DefaultBaseURL = "https://api.twelvedata.com"
)

type Client struct {
	apiKey string
	opts   provider.Options
}

func New(apiKey string, opts ...provider.Option) *Client {
	return &Client{apiKey: apiKey, opts: provider.NewOptions(DefaultBaseURL, opts...)}
}

func (c *Client) Name() string { return Name }

// status is the error envelope: {"code":429,"message":"...","status":"error"}.
type status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (s status) check(op, symbol string) error {
	if s.Status != "error" {
		return nil
	}
	kind := provider.KindNoData
	switch s.Code {
	case 429:
		kind = provider.KindRateLimited
	case 401, 403:
		kind = provider.KindUnauthorized
	}
	return provider.Fail(Name, op, symbol, kind, errors.New(s.Message))
}

type quoteResponse struct {
	status
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	Open          string `json:"open"`
	High          string `json:"high"`
	Low           string `json:"low"`
	Close         string `json:"close"`
	Volume        string `json:"volume"`
	PreviousClose string `json:"previous_close"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`
}

type bar struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type timeSeriesResponse struct {
	status
	Values []bar `json:"values"`
}

func (c *Client) get(ctx context.Context, op, symbol, path string, query url.Values, out any) error {
	query.Set("symbol", symbol)
	query.Set("apikey", c.apiKey)
	u := fmt.Sprintf("%s/%s?%s", c.opts.BaseURL, path, query.Encode())
	body, err := provider.Get(ctx, c.opts.HTTPClient, Name, op, symbol, u, c.opts.Header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return provider.Fail(Name, op, symbol, provider.KindMalformed, err)
	}
	return nil
}

func (c *Client) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	ctx, cancel := c.opts.QuoteContext(ctx)
	defer cancel()

	var res quoteResponse
	if err := c.get(ctx, provider.OpQuote, symbol, "quote", url.Values{}, &res); err != nil {
		return models.Quote{}, err
	}
	if err := res.check(provider.OpQuote, symbol); err != nil {
		return models.Quote{}, err
	}

	q := models.Quote{Symbol: symbol, Name: res.Name, Source: Name}
	errs := parseAll([]field{
		{res.Close, &q.Price},
		{res.Open, &q.Open},
		{res.High, &q.High},
		{res.Low, &q.Low},
		{res.PreviousClose, &q.PreviousClose},
		{res.Change, &q.ChangeAmount},
	})
	pct, err := provider.ParsePercent(res.PercentChange)
	if err != nil {
		errs = append(errs, err)
	}
	q.ChangePercent = pct
	if err := errors.Join(errs...); err != nil {
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, provider.KindMalformed, err)
	}
	if vol, err := provider.ParseVolume(res.Volume); err == nil && res.Volume != "" {
		q.Volume = &vol
	}
	if q.Price <= 0 {
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, provider.KindNoData, nil)
	}
	return q, nil
}

func (c *Client) FetchHistory(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	ctx, cancel := c.opts.HistoryContext(ctx)
	defer cancel()

	outputSize := max(days, 1)
	query := url.Values{"interval": {"1day"}, "outputsize": {strconv.Itoa(outputSize)}}
	var res timeSeriesResponse
	if err := c.get(ctx, provider.OpHistory, symbol, "time_series", query, &res); err != nil {
		return nil, err
	}
	if err := res.check(provider.OpHistory, symbol); err != nil {
		return nil, err
	}

	points := make([]models.HistoryPoint, 0, len(res.Values))
	for _, b := range res.Values {
		p, err := b.point()
		if err != nil {
			return nil, provider.Fail(Name, provider.OpHistory, symbol, provider.KindMalformed, err)
		}
		points = append(points, p)
	}
	points = provider.Normalize(symbol, points, provider.Window(c.opts.Clock.Now(), days))
	if len(points) == 0 {
		return nil, provider.Fail(Name, provider.OpHistory, symbol, provider.KindNoData, nil)
	}
	return points, nil
}

func (b bar) point() (models.HistoryPoint, error) {
	day, err := provider.ParseDay(b.Datetime)
	if err != nil {
		return models.HistoryPoint{}, err
	}
	p := models.HistoryPoint{Date: day}
	errs := parseAll([]field{{b.Open, &p.Open}, {b.High, &p.High}, {b.Low, &p.Low}, {b.Close, &p.Close}})
	if p.Volume, err = provider.ParseVolume(b.Volume); err != nil {
		errs = append(errs, err)
	}
	p.AdjClose = p.Close
	return p, errors.Join(errs...)
}

type field struct {
	src string
	dst *float64
}

func parseAll(fields []field) []error {
	var errs []error
	for _, f := range fields {
		v, err := provider.ParseNumber(f.src)
		if err != nil {
			errs = append(errs, err)
		}
		*f.dst = v
	}
	return errs
}
