// Package yahoo adapts the Yahoo Finance chart endpoint, which serves both
// the latest quote (chart meta) and daily bars.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
)

const (
	Name           = "yahoo"
	DefaultBaseURL = "https://query1.finance.yahoo.com"
)

const (
	pathResult    = "$.chart.result[0]"
	pathError     = "$.chart.error.description"
	pathMeta      = pathResult + ".meta"
	pathTimestamp = pathResult + ".timestamp"
	pathQuote     = pathResult + ".indicators.quote[0]"
	pathAdjClose  = pathResult + ".indicators.adjclose[0].adjclose"
)

// Client is a Yahoo Finance adapter. It needs no key; the endpoint rejects
// requests without a browser User-Agent, so it should be given an
// httpx.Client with a rotation pool.
type Client struct {
	opts provider.Options
}

func New(opts ...provider.Option) *Client {
	return &Client{opts: provider.NewOptions(DefaultBaseURL, opts...)}
}

func (c *Client) Name() string { return Name }

func (c *Client) chart(ctx context.Context, op, symbol string, query url.Values) (any, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.opts.BaseURL, url.PathEscape(symbol), query.Encode())
	body, err := provider.Get(ctx, c.opts.HTTPClient, Name, op, symbol, u, c.opts.Header)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, provider.Fail(Name, op, symbol, provider.KindMalformed, err)
	}
	if desc, err := jsonpath.Get(pathError, doc); err == nil {
		if s, ok := desc.(string); ok && s != "" {
			return nil, provider.Fail(Name, op, symbol, provider.KindNoData, errors.New(s))
		}
	}
	if _, err := jsonpath.Get(pathMeta, doc); err != nil {
		return nil, provider.Fail(Name, op, symbol, provider.KindNoData, err)
	}
	return doc, nil
}

func (c *Client) FetchQuote(ctx context.Context, symbol string) (models.Quote, error) {
	ctx, cancel := c.opts.QuoteContext(ctx)
	defer cancel()

	query := url.Values{}
	query.Set("range", "1d")
	query.Set("interval", "1d")
	doc, err := c.chart(ctx, provider.OpQuote, symbol, query)
	if err != nil {
		return models.Quote{}, err
	}

	price, ok := number(doc, pathMeta+".regularMarketPrice")
	if !ok || price <= 0 {
		return models.Quote{}, provider.Fail(Name, provider.OpQuote, symbol, provider.KindNoData, nil)
	}
	prev, ok := number(doc, pathMeta+".previousClose")
	if !ok {
		prev, _ = number(doc, pathMeta+".chartPreviousClose")
	}

	q := models.Quote{
		Symbol:        symbol,
		Name:          firstString(doc, pathMeta+".longName", pathMeta+".shortName"),
		Price:         price,
		PreviousClose: prev,
		Source:        Name,
	}
	q.High, _ = number(doc, pathMeta+".regularMarketDayHigh")
	q.Low, _ = number(doc, pathMeta+".regularMarketDayLow")
	if opens := series(doc, pathQuote+".open"); len(opens) > 0 {
		q.Open, _ = opens[len(opens)-1].(float64)
	}
	if v, ok := number(doc, pathMeta+".regularMarketVolume"); ok {
		vol := int64(v)
		q.Volume = &vol
	}
	if prev > 0 {
		q.ChangeAmount = price - prev
		q.ChangePercent = q.ChangeAmount / prev * 100
	}
	return q, nil
}

func (c *Client) FetchHistory(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error) {
	ctx, cancel := c.opts.HistoryContext(ctx)
	defer cancel()

	now := c.opts.Clock.Now()
	since := provider.Window(now, days)

	query := url.Values{}
	query.Set("interval", "1d")
	query.Set("period1", strconv.FormatInt(since.Unix(), 10))
	query.Set("period2", strconv.FormatInt(now.Unix(), 10))
	query.Set("includeAdjustedClose", "true")
	doc, err := c.chart(ctx, provider.OpHistory, symbol, query)
	if err != nil {
		return nil, err
	}

	// Bars are stamped at the exchange open; shifting by the exchange offset
	// keeps them on their trading day.
	offset, _ := number(doc, pathMeta+".gmtoffset")
	stamps := series(doc, pathTimestamp)
	opens := series(doc, pathQuote+".open")
	highs := series(doc, pathQuote+".high")
	lows := series(doc, pathQuote+".low")
	closes := series(doc, pathQuote+".close")
	volumes := series(doc, pathQuote+".volume")
	adj := series(doc, pathAdjClose)

	points := make([]models.HistoryPoint, 0, len(stamps))
	for i, raw := range stamps {
		ts, ok := raw.(float64)
		if !ok {
			continue
		}
		closeVal, ok := at(closes, i)
		if !ok || closeVal <= 0 {
			continue
		}
		p := models.HistoryPoint{
			Date:     clock.Day(time.Unix(int64(ts)+int64(offset), 0).UTC()),
			Close:    closeVal,
			AdjClose: closeVal,
		}
		p.Open, _ = at(opens, i)
		p.High, _ = at(highs, i)
		p.Low, _ = at(lows, i)
		if v, ok := at(volumes, i); ok {
			p.Volume = int64(v)
		}
		if v, ok := at(adj, i); ok && v > 0 {
			p.AdjClose = v
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, provider.Fail(Name, provider.OpHistory, symbol, provider.KindNoData, nil)
	}
	return provider.Normalize(symbol, points, since), nil
}

func number(doc any, path string) (float64, bool) {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func firstString(doc any, paths ...string) string {
	for _, path := range paths {
		if v, err := jsonpath.Get(path, doc); err == nil {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func series(doc any, path string) []any {
	v, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil
	}
	s, _ := v.([]any)
	return s
}

func at(s []any, i int) (float64, bool) {
	if i >= len(s) {
		return 0, false
	}
	f, ok := s[i].(float64)
	return f, ok
}
