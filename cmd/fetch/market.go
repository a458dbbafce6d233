package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"portfoliotracker/internal/aggregate"
	"portfoliotracker/internal/app"
	"portfoliotracker/internal/models"
)

type quoteCmd struct{}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "show the latest quote of one or more symbols" }
func (*quoteCmd) Usage() string {
	return `fetch quote <symbol>...

  Serves each quote from the store while fresh, otherwise walks the quote
  providers in priority order and stores the first valid answer.
`
}

func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (c *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return usageError(f, "at least one symbol is required")
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		if f.NArg() == 1 {
			res, ok := a.Quotes.GetQuote(ctx, f.Arg(0))
			if !ok {
				return fmt.Errorf("no quote available for %s", aggregate.NormalizeSymbol(f.Arg(0)))
			}
			title := fmt.Sprintf("%s (%s", res.Quote.Symbol, res.Origin)
			if res.Provider != "" {
				title += " via " + res.Provider
			}
			title += ")"
			if res.PersistErr != nil {
				fmt.Fprintf(os.Stderr, "warning: quote not stored: %v\n", res.PersistErr)
			}
			printMarkdown(quotesMarkdown(title, []models.Quote{res.Quote}, *currency))
			return nil
		}

		symbols := aggregate.UniqueSymbols(f.Args())
		got := a.Quotes.GetQuotes(ctx, symbols)
		quotes := make([]models.Quote, 0, len(got))
		var missing []string
		for _, s := range symbols {
			if q, ok := got[s]; ok {
				quotes = append(quotes, q)
			} else {
				missing = append(missing, s)
			}
		}
		printMarkdown(quotesMarkdown("Quotes", quotes, *currency))
		if len(missing) > 0 {
			fmt.Fprintf(os.Stderr, "no quote for %v\n", missing)
		}
		return nil
	})
}

type historyCmd struct {
	days  int
	force bool
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "show the daily history of a symbol" }
func (*historyCmd) Usage() string {
	return `fetch history [-days n] [-force] <symbol>

  Serves stored bars while they were fetched within the freshness window,
  otherwise refetches the whole set and replaces it.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "days", aggregate.DefaultHistoryDays, "number of calendar days to return")
	f.BoolVar(&c.force, "force", false, "refetch even when stored history is fresh")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usageError(f, "exactly one symbol is required")
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		symbol := aggregate.NormalizeSymbol(f.Arg(0))
		points, err := a.History.GetHistoricalData(ctx, symbol, aggregate.HistoryOptions{Days: c.days, ForceRefresh: c.force})
		if err != nil {
			return err
		}
		printMarkdown(historyMarkdown(symbol, points, *currency))
		return nil
	})
}

type metadataCmd struct{}

func (*metadataCmd) Name() string     { return "metadata" }
func (*metadataCmd) Synopsis() string { return "show what is known about a symbol" }
func (*metadataCmd) Usage() string {
	return `fetch metadata <symbol>
`
}

func (*metadataCmd) SetFlags(*flag.FlagSet) {}

func (c *metadataCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usageError(f, "exactly one symbol is required")
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		symbol := aggregate.NormalizeSymbol(f.Arg(0))
		meta, err := a.History.GetStockMetadata(ctx, symbol)
		if err != nil {
			return err
		}
		if meta == nil {
			return errors.New("unknown symbol " + symbol)
		}
		printMarkdown(metadataMarkdown(meta, a.History.HasRecentData(ctx, symbol)))
		return nil
	})
}
