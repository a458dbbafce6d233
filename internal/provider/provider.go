package provider

import (
	"context"
	"errors"
	"fmt"

	"portfoliotracker/internal/models"
)

// Provider is one external market-data source. Implementations return
// normalized values or an error; they never panic on bad payloads.
// History is ordered oldest first.
//
//go:generate mockgen -source=provider.go -destination=providermock/mock_provider.go -package=providermock
type Provider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (models.Quote, error)
	FetchHistory(ctx context.Context, symbol string, days int) ([]models.HistoryPoint, error)
}

// Kind classifies a provider failure.
type Kind int

const (
	KindTransport Kind = iota
	KindNoData
	KindRateLimited
	KindMalformed
	KindUnsupported
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindNoData:
		return "no data"
	case KindRateLimited:
		return "rate limited"
	case KindMalformed:
		return "malformed payload"
	case KindUnsupported:
		return "unsupported"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "transport"
	}
}

var (
	ErrNoData      = errors.New("no data")
	ErrRateLimited = errors.New("rate limited")
	ErrUnsupported = errors.New("unsupported")
)

// Error is returned by every adapter.
type Error struct {
	Provider string
	Op       string
	Symbol   string
	Kind     Kind
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s %s: %s", e.Provider, e.Op, e.Symbol, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets callers match on the sentinel for the failure kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNoData:
		return e.Kind == KindNoData
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrUnsupported:
		return e.Kind == KindUnsupported
	}
	return false
}

// Fail builds an *Error.
func Fail(name, op, symbol string, kind Kind, err error) error {
	return &Error{Provider: name, Op: op, Symbol: symbol, Kind: kind, Err: err}
}

const (
	OpQuote   = "quote"
	OpHistory = "history"
)
