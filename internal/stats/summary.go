package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
	ruleWidth = 79
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Duration is the total session duration
	Duration time.Duration

	// MetricsAddr is the Prometheus endpoint, if one was served
	MetricsAddr string

	// ShowPerLanguage adds a table row per language
	ShowPerLanguage bool

	// Exit codes and lifecycle counts from metrics.Collector
	ExitCodes     map[int]int64
	TotalStarts   int64
	TotalRestarts int64
}

// FormatExitSummary formats aggregated stats for display at program exit.
func FormatExitSummary(stats *AggregatedStats, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString(center("go-interp-driver Session Summary"))
	b.WriteString(ruleHeavy + "\n")

	fmt.Fprintf(&b, "Session Duration:       %s\n", FormatDuration(cfg.Duration))

	if stats == nil || stats.TotalRuns == 0 {
		b.WriteString("Runs:                   0\n\n")
		writeLifecycle(&b, cfg)
		writeFooter(&b, cfg)
		return b.String()
	}

	fmt.Fprintf(&b, "Runs:                   %s\n", FormatNumber(stats.TotalRuns))
	fmt.Fprintf(&b, "Success Rate:           %.1f%%\n", stats.SuccessRate*100)
	fmt.Fprintf(&b, "Events Yielded:         %s\n\n", FormatNumber(stats.TotalEvents))

	section(&b, "Outcomes")
	outcomes := make([]string, 0, len(stats.Outcomes))
	for k := range stats.Outcomes {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	for _, k := range outcomes {
		fmt.Fprintf(&b, "  %-22s %d\n", k+":", stats.Outcomes[k])
	}
	b.WriteString("\n")

	section(&b, "Run Duration")
	fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(stats.DurationP50))
	fmt.Fprintf(&b, "  P95:                  %s\n", FormatMs(stats.DurationP95))
	fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(stats.DurationP99))
	fmt.Fprintf(&b, "  Max:                  %s\n\n", FormatMs(stats.DurationMax))

	if cfg.ShowPerLanguage && len(stats.PerLanguage) > 0 {
		section(&b, "Languages")
		fmt.Fprintf(&b, "  %-14s %8s %8s %8s %10s %10s\n", "Language", "Runs", "OK", "Failed", "P50", "Restarts")
		b.WriteString("  " + strings.Repeat("─", 63) + "\n")
		for _, s := range stats.PerLanguage {
			fmt.Fprintf(&b, "  %-14s %8d %8d %8d %10s %10d\n",
				s.Language, s.Runs, s.Completed, s.Failed, FormatMs(s.P50), s.Restarts)
		}
		b.WriteString("\n")
	}

	if stats.TotalWriteFailures > 0 {
		section(&b, "Errors")
		fmt.Fprintf(&b, "  Stdin write failures: %d\n\n", stats.TotalWriteFailures)
	}

	writeLifecycle(&b, cfg)
	writeFooter(&b, cfg)
	return b.String()
}

func writeLifecycle(b *strings.Builder, cfg SummaryConfig) {
	if cfg.TotalStarts > 0 || cfg.TotalRestarts > 0 {
		section(b, "Lifecycle")
		fmt.Fprintf(b, "  Interpreter Starts:   %d\n", cfg.TotalStarts)
		fmt.Fprintf(b, "  Forced Restarts:      %d\n\n", cfg.TotalRestarts)
	}

	if len(cfg.ExitCodes) > 0 {
		section(b, "Exit Codes")
		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Fprintf(b, "  %3d %-16s %d\n", code, exitCodeLabel(code), cfg.ExitCodes[code])
		}
		b.WriteString("\n")
	}
}

func writeFooter(b *strings.Builder, cfg SummaryConfig) {
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(ruleHeavy)
}

func section(b *strings.Builder, title string) {
	b.WriteString(ruleLight)
	b.WriteString(center(title))
	b.WriteString(ruleLight + "\n")
}

func center(title string) string {
	pad := (ruleWidth - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + title + "\n"
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatMs formats a duration as milliseconds, or microseconds below 1ms.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
