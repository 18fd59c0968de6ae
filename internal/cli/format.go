package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/nzvengeance/launch-shelf/internal/ledger"
	"github.com/nzvengeance/launch-shelf/internal/models"
)

// formatMoney renders 50000000 as "$50,000,000".
func formatMoney(v int64) string {
	digits := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// formatCost renders a launch's cost cell.
func formatCost(c models.Cost) string {
	switch c.Status {
	case models.StatusIdle, models.StatusPending:
		return color.New(color.FgYellow).Sprint("loading...")
	case models.StatusRejected:
		return color.New(color.FgRed).Sprintf("error: %s", c.Error)
	}
	if c.Missing {
		return color.New(color.FgYellow).Sprint("unknown")
	}
	return formatMoney(c.Value)
}

// formatDate renders an ISO-8601 launch date as MM.dd.yyyy in UTC. A date
// that does not parse is shown as stored.
func formatDate(iso string) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	return t.UTC().Format("01.02.2006")
}

func formatHours(h *int) string {
	if h == nil {
		return "-"
	}
	return fmt.Sprintf("%dh", *h)
}

func formatPayloads(ps []models.Payload) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = fmt.Sprintf("%s (%s)", p.PayloadID, p.PayloadType)
	}
	return strings.Join(parts, ", ")
}

func printSummary(w io.Writer, s ledger.Summary) {
	switch s.LaunchStatus {
	case models.StatusIdle, models.StatusPending:
		fmt.Fprintln(w, "Loading launches...")
		return
	case models.StatusRejected:
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed).Sprint("Error:"), s.LaunchError)
		return
	}

	for _, v := range s.Launches {
		fmt.Fprintf(w, "%s  %s\n", color.New(color.FgCyan).Sprint(v.ID), v.MissionName)
		fmt.Fprintf(w, "    flight:     %d\n", v.FlightNumber)
		fmt.Fprintf(w, "    date:       %s\n", formatDate(v.LaunchDateUTC))
		fmt.Fprintf(w, "    rocket:     %s\n", v.Rocket.RocketID)
		fmt.Fprintf(w, "    cost:       %s\n", formatCost(v.Cost))
		fmt.Fprintf(w, "    satellites: %d\n", v.SatelliteCount)
		fmt.Fprintf(w, "    since last: %s\n", formatHours(v.HoursSinceLastLaunch))
		if len(v.Rocket.SecondStage.Payloads) > 0 {
			fmt.Fprintf(w, "    payloads:   %s\n", formatPayloads(v.Rocket.SecondStage.Payloads))
		}
	}
	fmt.Fprintln(w)
	printTotal(w, s)
}

func printTotal(w io.Writer, s ledger.Summary) {
	fmt.Fprintf(w, "Total cost: %s\n", color.New(color.Bold).Sprint(formatMoney(s.TotalCost)))
	if s.CostError != "" {
		fmt.Fprintf(w, "%s %s\n", color.New(color.FgYellow).Sprint("Warning:"), s.CostError)
	}
}

func printOutcome(w io.Writer, out ledger.Outcome) {
	switch {
	case out.Applied:
		fmt.Fprintln(w, color.New(color.FgGreen).Sprint("Saved."))
	case out.RolledBack:
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("Rolled back."))
	case out.Superseded:
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("Not rolled back: the value was changed elsewhere in the meantime."))
	default:
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("Kept the local change."))
	}
}
