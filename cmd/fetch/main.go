// Command fetch exposes the market data and snapshot operations on the
// command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/google/subcommands"

	"portfoliotracker/internal/app"
	"portfoliotracker/internal/config"
	"portfoliotracker/internal/logger"
)

var (
	configPath = flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML or JSON config file")
	raw        = flag.Bool("raw", false, "print markdown without terminal styling")
	currency   = flag.String("currency", "USD", "ISO currency used to format amounts")
)

var commands = []subcommands.Command{
	&quoteCmd{},
	&historyCmd{},
	&metadataCmd{},
	&recordCmd{},
	&recordAllCmd{},
	&backfillCmd{},
	&performanceCmd{},
}

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range commands {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// openApp loads the configuration and builds the components. Logs go to
// stderr so that stdout only carries the rendered result.
func openApp() (*app.App, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Cron.Enabled = false
	zl, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return app.New(cfg, app.WithLogger(zl))
}

// withApp runs fn against a freshly built app and maps its error to an
// exit status.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer func() {
		_ = a.Close()
		_ = a.Logger.Sync()
	}()
	if err := fn(ctx, a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func usageError(f *flag.FlagSet, msg string) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	f.Usage()
	return subcommands.ExitUsageError
}
