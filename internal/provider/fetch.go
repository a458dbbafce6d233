package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"portfoliotracker/internal/httpx"
)

// maxBody caps how much of a response is read. Full daily series from the
// largest providers stay well below it.
const maxBody = 16 << 20

// Get performs a GET and returns the body of a 2xx response. Status codes and
// transport failures are mapped onto an *Error for the given provider.
func Get(ctx context.Context, doer httpx.Doer, name, op, symbol, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, Fail(name, op, symbol, KindTransport, fmt.Errorf("creating request: %w", err))
	}
	if header != nil {
		req.Header = header.Clone()
	}

	res, err := doer.Do(req)
	if err != nil {
		return nil, Fail(name, op, symbol, KindTransport, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		return nil, Fail(name, op, symbol, KindRateLimited, nil)
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusForbidden:
		return nil, Fail(name, op, symbol, KindUnauthorized, fmt.Errorf("status %d", res.StatusCode))
	case res.StatusCode == http.StatusNotFound:
		return nil, Fail(name, op, symbol, KindNoData, fmt.Errorf("status %d", res.StatusCode))
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, Fail(name, op, symbol, KindTransport, fmt.Errorf("unexpected status code: %d", res.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, Fail(name, op, symbol, KindTransport, fmt.Errorf("reading body: %w", err))
	}
	return body, nil
}
