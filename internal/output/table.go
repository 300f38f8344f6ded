// Package output renders cratebot results for the terminal.
//
// Tables use box-drawing rules and, when stdout is a terminal and NO_COLOR is
// unset, ANSI colors. Times are shown relative to now.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/cratebot/internal/cycle"
	"github.com/blackwell-systems/cratebot/internal/store"
)

const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorGray  = "\033[90m"
)

// IsColorEnabled reports whether stdout should receive ANSI colors.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderRecordTable renders one row per crate record, in the given order.
func RenderRecordTable(records []*store.Record) string {
	if len(records) == 0 {
		return "No crates found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-32s %-10s %s\n", "Crate", "Status", "Announced"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")

	for _, r := range records {
		status := colorize(colorGray, fmt.Sprintf("%-10s", "pending"))
		if r.Visited {
			status = colorize(colorGreen, fmt.Sprintf("%-10s", "announced"))
		}
		sb.WriteString(fmt.Sprintf("%-32s %s %s\n",
			truncate(r.Name, 32),
			status,
			formatRelativeTime(r.AnnouncedAt)))
	}

	return sb.String()
}

// RenderStats renders the store summary shown by the status command.
func RenderStats(dbPath string, stats *store.Stats, daemon string) string {
	var sb strings.Builder
	row := func(label, value string) {
		sb.WriteString(fmt.Sprintf("%-16s %s\n", label+":", value))
	}

	row("Database", dbPath)
	row("Known crates", humanize.Comma(int64(stats.Total)))
	row("Announced", humanize.Comma(int64(stats.Visited)))
	row("Pending", humanize.Comma(int64(stats.Unvisited)))
	if stats.LastName != "" {
		row("Last announced", fmt.Sprintf("%s (%s)", stats.LastName, formatRelativeTime(stats.LastAnnounced)))
	} else {
		row("Last announced", "never")
	}
	if daemon != "" {
		row("Daemon", daemon)
	}

	return sb.String()
}

// RenderCycleResult summarizes a completed cycle.
func RenderCycleResult(res *cycle.Result) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Fetched %s crates from page %d (%s new).\n",
		humanize.Comma(int64(res.Fetched)), res.ResumePage, humanize.Comma(int64(res.Inserted))))
	if res.Announced != "" {
		sb.WriteString(fmt.Sprintf("Announced %s. %s crates still pending.\n",
			res.Announced, humanize.Comma(int64(res.Unvisited-1))))
	}
	return sb.String()
}

func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
