package notify

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
)

// Console implements ports.Notifier, writing pass reports to stdout.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintAllocation renders the batch table.
func (c *Console) PrintAllocation(batch domain.Batch, orders []domain.Order, skipped, remainder int) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "\n[%s] batch %s — %d orders, %d skipped, cost $%.2f, payout $%.2f, remainder $%.2f\n",
		now, batch.AllocationKey, len(orders), skipped,
		cents(batch.TotalCost), cents(batch.TotalPotentialPayout), cents(remainder))

	if len(orders) == 0 {
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Event", "Side", "Price", "Units", "Cost", "Payout")
	for i, o := range orders {
		table.Append(
			fmt.Sprintf("%d", i+1),
			o.MarketID,
			o.EventID,
			string(o.Side),
			fmt.Sprintf("%d¢", o.LimitPrice),
			fmt.Sprintf("%d", o.Units),
			fmt.Sprintf("$%.2f", cents(o.Units*o.LimitPrice)),
			fmt.Sprintf("$%.2f", cents(o.PotentialPayout)),
		)
	}
	table.Render()
}

// PrintPassSummary renders one pass's counts, alerts, and errors.
func (c *Console) PrintPassSummary(name string, counts map[string]int, alerts, errs []string) {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "[%s] %s:", now, name)

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(c.out, " %s=%d", k, counts[k])
	}
	fmt.Fprintln(c.out)

	for _, a := range alerts {
		fmt.Fprintf(c.out, "  ALERT: %s\n", a)
	}
	for _, e := range errs {
		fmt.Fprintf(c.out, "  ERROR: %s\n", e)
	}
}

func cents(c int) float64 {
	return float64(c) / 100
}
