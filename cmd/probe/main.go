// Command probe calls every configured adapter directly, bypassing the
// store, and writes one JSON record per call. It is meant for checking keys
// and payload shapes against the live providers.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"portfoliotracker/internal/aggregate"
	"portfoliotracker/internal/app"
	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/config"
	"portfoliotracker/internal/logger"
	"portfoliotracker/internal/models"
	"portfoliotracker/internal/provider"
)

type result struct {
	Provider string                `json:"provider"`
	Op       string                `json:"op"`
	Symbol   string                `json:"symbol"`
	OK       bool                  `json:"ok"`
	Kind     string                `json:"kind,omitempty"`
	Error    string                `json:"error,omitempty"`
	TookMS   int64                 `json:"took_ms"`
	Quote    *models.Quote         `json:"quote,omitempty"`
	Points   int                   `json:"points,omitempty"`
	First    string                `json:"first,omitempty"`
	Last     string                `json:"last,omitempty"`
	Sample   []models.HistoryPoint `json:"sample,omitempty"`
}

type options struct {
	days        int
	history     bool
	concurrency int
	only        map[string]bool
}

func main() {
	var (
		symbolsCSV  string
		outPath     string
		cfgPath     string
		only        string
		days        int
		concurrency int
		history     bool
	)
	flag.StringVar(&symbolsCSV, "symbols", "AAPL,MSFT", "comma-separated symbols")
	flag.StringVar(&outPath, "out", "-", "output JSON file path, - for stdout")
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML or JSON config file")
	flag.StringVar(&only, "providers", "", "comma-separated provider names to probe (default all usable)")
	flag.IntVar(&days, "days", 30, "history window in days")
	flag.IntVar(&concurrency, "concurrency", 2, "providers probed in parallel")
	flag.BoolVar(&history, "history", true, "probe history as well as quotes")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	symbols := aggregate.UniqueSymbols(strings.Split(symbolsCSV, ","))
	if len(symbols) == 0 {
		zl.Fatal("no symbols given")
	}
	adapters := app.BuildAdapters(cfg, app.NewClock(cfg, zl), nil, zl).All
	if len(adapters) == 0 {
		zl.Fatal("no usable provider; set the api keys")
	}

	out := io.Writer(os.Stdout)
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			zl.Fatal("create output", zap.Error(err))
		}
		defer f.Close()
		out = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{days: days, history: history, concurrency: concurrency, only: nameSet(only)}
	n, err := probe(ctx, adapters, symbols, opts, out)
	if err != nil {
		zl.Fatal("probe failed", zap.Error(err))
	}
	zl.Info("probe done", zap.Int("calls", n), zap.String("out", outPath))
}

func nameSet(csv string) map[string]bool {
	set := map[string]bool{}
	for _, s := range strings.Split(csv, ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			set[s] = true
		}
	}
	return set
}

// probe writes {"results":[...]} to w and returns the number of calls made.
// Adapters run in parallel up to opts.concurrency; calls on one adapter are
// sequential so its limiter is honoured.
func probe(ctx context.Context, adapters []provider.Provider, symbols []string, opts options, w io.Writer) (int, error) {
	bw := bufio.NewWriterSize(w, 1<<16)
	if _, err := bw.WriteString(`{"results":[`); err != nil {
		return 0, err
	}

	var (
		mu    sync.Mutex
		first = true
		count int
	)
	emit := func(r result) error {
		b, err := json.Marshal(r)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if !first {
			_ = bw.WriteByte(',')
		}
		first = false
		count++
		_, err = bw.Write(b)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.concurrency > 0 {
		g.SetLimit(opts.concurrency)
	}
	for _, p := range adapters {
		if len(opts.only) > 0 && !opts.only[p.Name()] {
			continue
		}
		g.Go(func() error {
			for _, symbol := range symbols {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := emit(probeQuote(gctx, p, symbol)); err != nil {
					return err
				}
				if !opts.history {
					continue
				}
				if err := emit(probeHistory(gctx, p, symbol, opts.days)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return count, err
	}

	if _, err := bw.WriteString("]}\n"); err != nil {
		return count, err
	}
	return count, bw.Flush()
}

func probeQuote(ctx context.Context, p provider.Provider, symbol string) result {
	start := time.Now()
	q, err := p.FetchQuote(ctx, symbol)
	r := result{Provider: p.Name(), Op: provider.OpQuote, Symbol: symbol, TookMS: time.Since(start).Milliseconds()}
	if err != nil {
		r.fail(err)
		return r
	}
	r.OK = q.Valid()
	r.Quote = &q
	return r
}

func probeHistory(ctx context.Context, p provider.Provider, symbol string, days int) result {
	start := time.Now()
	points, err := p.FetchHistory(ctx, symbol, days)
	r := result{Provider: p.Name(), Op: provider.OpHistory, Symbol: symbol, TookMS: time.Since(start).Milliseconds()}
	if err != nil {
		r.fail(err)
		return r
	}
	points = provider.Normalize(symbol, points, time.Time{})
	r.OK = len(points) > 0
	r.Points = len(points)
	if len(points) > 0 {
		r.First = clock.DayKey(points[0].Date)
		r.Last = clock.DayKey(points[len(points)-1].Date)
		r.Sample = points[max(0, len(points)-3):]
	}
	return r
}

func (r *result) fail(err error) {
	r.Error = err.Error()
	var pe *provider.Error
	if errors.As(err, &pe) {
		r.Kind = pe.Kind.String()
	}
}
