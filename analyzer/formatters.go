package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
)

// Output formats understood by every Analyze* function.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

func checkFormat(format string) error {
	switch format {
	case FormatText, FormatMarkdown, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// renderJSON marshals v with indentation. A marshalling failure is reported
// inside the JSON payload, not as an error.
func renderJSON(v interface{}, topN int) string {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logrus.Errorf("Error marshaling analysis to JSON: %v", err)
		errorResult := ErrorResult{Error: fmt.Sprintf("Failed to marshal result to JSON: %v", err), TopN: topN}
		errJSONBytes, _ := json.Marshal(errorResult)
		return string(errJSONBytes)
	}
	return string(jsonBytes)
}

// wrapText puts plain text output in a fenced block for markdown clients.
func wrapText(format, body string) string {
	if format != FormatMarkdown {
		return body
	}
	return "```text\n" + body + "```\n"
}

// renderTable draws rows under header as a plain ASCII table.
func renderTable(header []string, rows [][]string) string {
	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
	return b.String()
}

// FormatDistance renders meters as "850 m" or "1.2 km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// FormatCount renders an integer with thousands separators.
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatRating renders a star rating, or "-" when unrated.
func FormatRating(r float64) string {
	if r <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f", r)
}

// FormatMillis renders a duration in milliseconds as "350 ms" or "2.4 s".
func FormatMillis(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.0f ms", ms)
	}
	return fmt.Sprintf("%.1f s", ms/1000)
}

// FormatAge renders a unix timestamp relative to now ("3 months ago").
func FormatAge(unix int64, now time.Time) string {
	if unix <= 0 {
		return "unknown"
	}
	return humanize.RelTime(time.Unix(unix, 0), now, "ago", "from now")
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
