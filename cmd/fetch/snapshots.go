package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"portfoliotracker/internal/app"
	"portfoliotracker/internal/models"
)

type recordCmd struct{}

func (*recordCmd) Name() string     { return "record" }
func (*recordCmd) Synopsis() string { return "record today's snapshot of a user" }
func (*recordCmd) Usage() string {
	return `fetch record <user-id>
`
}

func (*recordCmd) SetFlags(*flag.FlagSet) {}

func (c *recordCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usageError(f, "exactly one user id is required")
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		snap, err := a.Snapshots.RecordDailySnapshot(ctx, f.Arg(0))
		if err != nil {
			return err
		}
		if snap == nil {
			fmt.Println("user has no holdings, nothing recorded")
			return nil
		}
		printMarkdown(snapshotsMarkdown("Snapshot of "+f.Arg(0), []models.PortfolioSnapshot{*snap}, *currency))
		return nil
	})
}

type recordAllCmd struct{}

func (*recordAllCmd) Name() string     { return "record-all" }
func (*recordAllCmd) Synopsis() string { return "record today's snapshot of every active user" }
func (*recordAllCmd) Usage() string {
	return `fetch record-all
`
}

func (*recordAllCmd) SetFlags(*flag.FlagSet) {}

func (c *recordAllCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		summary, err := a.Snapshots.RecordAllUserSnapshots(ctx)
		if err != nil {
			return err
		}
		printMarkdown(summaryMarkdown(summary))
		return nil
	})
}

type backfillCmd struct {
	days int
}

func (*backfillCmd) Name() string     { return "backfill" }
func (*backfillCmd) Synopsis() string { return "rebuild past snapshots of a user from stored history" }
func (*backfillCmd) Usage() string {
	return `fetch backfill [-days n] <user-id>

  Days without a close for any holding are skipped; today is always written.
`
}

func (c *backfillCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "days", 0, "number of days to rebuild (defaults to snapshot.backfill_days)")
}

func (c *backfillCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usageError(f, "exactly one user id is required")
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		days := c.days
		if days <= 0 {
			days = a.Config.Snapshot.BackfillDays
		}
		rows, err := a.Snapshots.GenerateHistoricalSnapshots(ctx, f.Arg(0), days)
		if err != nil {
			return err
		}
		printMarkdown(snapshotsMarkdown("Backfill of "+f.Arg(0), rows, *currency))
		return nil
	})
}

type performanceCmd struct {
	days int
}

func (*performanceCmd) Name() string     { return "performance" }
func (*performanceCmd) Synopsis() string { return "show recorded snapshots of a user" }
func (*performanceCmd) Usage() string {
	return `fetch performance [-days n] <user-id>
`
}

func (c *performanceCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.days, "days", 30, "number of days to show")
}

func (c *performanceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usageError(f, "exactly one user id is required")
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		rows, err := a.Snapshots.GetPerformanceHistory(ctx, f.Arg(0), c.days)
		if err != nil {
			return err
		}
		printMarkdown(snapshotsMarkdown(fmt.Sprintf("Performance of %s over %d days", f.Arg(0), c.days), rows, *currency))
		return nil
	})
}
