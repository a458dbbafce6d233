// Package alphavantage adapts the Alpha Vantage GLOBAL_QUOTE and
// TIME_SERIES_DAILY functions. All numbers arrive as strings.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
)

const (
	Name           = "alphavantage"
	DefaultBaseURL = "https://www.alphavantage.co"

	// compactSize is the number of bars returned with outputsize=compact.
	compactSize = 100
)

type Client struct {
	apiKey string
	opts   provider.Options
}

func New(apiKey string, opts ...provider.Option) *Client {
	return &Client{apiKey: apiKey, opts: provider.NewOptions(DefaultBaseURL, opts...)}
}

func (c *Client) Name() string { return Name }

// envelope carries the fields Alpha Vantage uses to signal failures with a
// 200 status.
type envelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (e envelope) check(op, symbol string) error {
	switch {
	case e.ErrorMessage != "":
		return provider.Fail(Name, op, symbol, provider.KindNoData, errors.New(e.ErrorMessage))
	case e.Note != "":
		return provider.Fail(Name, op, symbol, provider.KindRateLimited, errors.New(e.Note))
	case e.Information != "":
		return provider.Fail(Name, op, symbol, provider.KindRateLimited, errors.New(e.Information))
	}
	return nil
}

type globalQuoteResponse struct {
	envelope
	GlobalQuote map[string]string `json:"Global Quote"`
}

type dailyResponse struct {
	envelope
	TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
}

func (c *Client) get(ctx context.Context, op, symbol string, query url.Values, out any) error {
	query.Set("symbol", symbol)
	query.Set("apikey", c.apiKey)
	u := fmt.Sprintf("%s/query?%s", c.opts.BaseURL, query.Encode())
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

	var res globalQuoteResponse
	if err := c.get(ctx, provider.OpQuote, symbol, url.Values{"function": {"GLOBAL_QUOTE"}}, &res); err != nil {
		return models.Quote{}, err
	}
	if err := res.check(provider.OpQuote, symbol); err != nil {
		return models.Quote{}, err
	}
	if len(res.GlobalQuote) == 0 {
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, provider.KindNoData, nil)
	}

	// {
	//   "01. symbol": "IBM", "02. open": "168.80", "03. high": "170.12",
	//   "04. low": "168.12", "05. price": "169.90", "06. volume": "3520045",
	//   "07. latest trading day": "2024-03-12", "08. previous close": "168.11",
	//   "09. change": "1.79", "10. change percent": "1.0648%"
	// }
	g := res.GlobalQuote
	var (
		q    = models.Quote{Symbol: symbol, Source: Name}
		errs []error
	)
	parse := func(key string, dst *float64) {
		v, err := provider.ParseNumber(g[key])
		if err != nil {
			errs = append(errs, err)
		}
		*dst = v
	}
	parse("05. price", &q.Price)
	parse("02. open", &q.Open)
	parse("03. high", &q.High)
	parse("04. low", &q.Low)
	parse("08. previous close", &q.PreviousClose)
	parse("09. change", &q.ChangeAmount)
	pct, err := provider.ParsePercent(g["10. change percent"])
	if err != nil {
		errs = append(errs, err)
	}
	q.ChangePercent = pct
	if vol, err := provider.ParseVolume(g["06. volume"]); err == nil {
		q.Volume = &vol
	}
	if err := errors.Join(errs...); err != nil {
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, provider.KindMalformed, err)
	}
	if q.Price <= 0 {
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, provider.KindNoData, nil)
	}
	return q, nil
}

func (c *Client) FetchHistory(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	ctx, cancel := c.opts.HistoryContext(ctx)
	defer cancel()

	size := "compact"
	if days > compactSize {
		size = "full"
	}
	var res dailyResponse
	query := url.Values{"function": {"TIME_SERIES_DAILY"}, "outputsize": {size}}
	if err := c.get(ctx, provider.OpHistory, symbol, query, &res); err != nil {
		return nil, err
	}
	if err := res.check(provider.OpHistory, symbol); err != nil {
		return nil, err
	}

	// The series is a newest-first object keyed by date.
	points := make([]models.HistoryPoint, 0, len(res.TimeSeries))
	for date, bar := range res.TimeSeries {
		day, err := provider.ParseDay(date)
		if err != nil {
			return nil, provider.Fail(Name, provider.OpHistory, symbol, provider.KindMalformed, err)
		}
		p := models.HistoryPoint{Date: day}
		var errs []error
		for key, dst := range map[string]*float64{"1. open": &p.Open, "2. high": &p.High, "3. low": &p.Low, "4. close": &p.Close} {
			v, err := provider.ParseNumber(bar[key])
			if err != nil {
				errs = append(errs, err)
			}
			*dst = v
		}
		vol, err := provider.ParseVolume(bar["5. volume"])
		if err != nil {
			errs = append(errs, err)
		}
		if err := errors.Join(errs...); err != nil {
			return nil, provider.Fail(Name, provider.OpHistory, symbol, provider.KindMalformed, err)
		}
		p.Volume = vol
		p.AdjClose = p.Close
		points = append(points, p)
	}

	points = provider.Normalize(symbol, points, provider.Window(c.opts.Clock.Now(), days))
	if len(points) == 0 {
		return nil, provider.Fail(Name, provider.OpHistory, symbol, provider.KindNoData, nil)
	}
	return points, nil
}
