package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"portfoliotracker/internal/clock"
	"portfoliotracker/internal/models"
	"portfoliotracker/internal/snapshot"
)

// formatMoney formats value in the minor units of the currency code.
func formatMoney(value decimal.Decimal, code string) string {
	cur := money.New(0, code).Currency()
	minor := value.Shift(int32(cur.Fraction)).Round(0)
	return cur.Formatter().Format(minor.IntPart())
}

func formatPrice(v float64, code string) string {
	return formatMoney(decimal.NewFromFloat(v), code)
}

func formatSigned(value decimal.Decimal, code string) string {
	if value.IsZero() {
		return "-"
	}
	s := formatMoney(value, code)
	if value.IsPositive() {
		return "+" + s
	}
	return s
}

type table struct {
	sb strings.Builder
}

func newTable(headers ...string) *table {
	t := &table{}
	t.row(headers...)
	seps := make([]string, len(headers))
	for i := range seps {
		seps[i] = "---"
	}
	t.row(seps...)
	return t
}

func (t *table) row(cells ...string) {
	t.sb.WriteString("| ")
	t.sb.WriteString(strings.Join(cells, " | "))
	t.sb.WriteString(" |\n")
}

func (t *table) String() string { return t.sb.String() }

func quotesMarkdown(title string, quotes []models.Quote, code string) string {
	t := newTable("Symbol", "Name", "Price", "Change", "Change %", "Source", "Updated")
	for _, q := range quotes {
		t.row(
			q.Symbol,
			q.Name,
			formatPrice(q.Price, code),
			formatSigned(decimal.NewFromFloat(q.ChangeAmount), code),
			fmt.Sprintf("%+.2f%%", q.ChangePercent),
			q.Source,
			q.UpdatedAt.UTC().Format("2006-01-02 15:04:05Z"),
		)
	}
	return "# " + title + "\n\n" + t.String()
}

func historyMarkdown(symbol string, points []models.HistoryPoint, code string) string {
	t := newTable("Date", "Open", "High", "Low", "Close", "Adj close", "Volume")
	for _, p := range points {
		t.row(
			clock.DayKey(p.Date),
			formatPrice(p.Open, code),
			formatPrice(p.High, code),
			formatPrice(p.Low, code),
			formatPrice(p.Close, code),
			formatPrice(p.AdjClose, code),
			fmt.Sprintf("%d", p.Volume),
		)
	}
	return fmt.Sprintf("# %s history\n\n%d daily bars\n\n%s", symbol, len(points), t.String())
}

func metadataMarkdown(meta *models.SymbolMetadata, recent bool) string {
	t := newTable("Field", "Value")
	t.row("Symbol", meta.Symbol)
	t.row("Name", meta.Name)
	if meta.HistoryStartDate != nil {
		t.row("History start", clock.DayKey(*meta.HistoryStartDate))
	}
	if meta.HistoryEndDate != nil {
		t.row("History end", clock.DayKey(*meta.HistoryEndDate))
	}
	if meta.LastFetchedAt != nil {
		t.row("Last fetched", meta.LastFetchedAt.UTC().Format("2006-01-02 15:04:05Z"))
	}
	t.row("Recent data", fmt.Sprintf("%t", recent))
	return "# " + meta.Symbol + "\n\n" + t.String()
}

func snapshotsMarkdown(title string, rows []models.PortfolioSnapshot, code string) string {
	t := newTable("Date", "Value", "Cost", "Gain", "Day gain")
	for _, s := range rows {
		t.row(
			clock.DayKey(s.Date),
			formatMoney(s.TotalValue, code),
			formatMoney(s.TotalCost, code),
			formatSigned(s.TotalValue.Sub(s.TotalCost), code),
			formatSigned(s.DayGain, code),
		)
	}
	return fmt.Sprintf("# %s\n\n%d snapshots\n\n%s", title, len(rows), t.String())
}

func summaryMarkdown(s snapshot.RunSummary) string {
	t := newTable("Run", "Users", "Recorded", "Skipped", "Failed")
	t.row(s.RunID, fmt.Sprint(s.Users), fmt.Sprint(s.Recorded), fmt.Sprint(s.Skipped), fmt.Sprint(s.Failed))
	return "# Daily snapshots\n\n" + t.String()
}

// printMarkdown renders md for the terminal unless -raw was given.
func printMarkdown(md string) {
	if *raw {
		fmt.Print(md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "render: %v\n", err)
	fmt.Print(md)
}
