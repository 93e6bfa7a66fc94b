// File: estimator/table.go

package estimator

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
)

var colourMap = []string{
	"#ff0000", // red
	"#00ff00", // green
}

// DefaultSweepLengths are the context sizes a sweep covers unless told otherwise
var DefaultSweepLengths = []int{2048, 8192, 16384, 32768, 65536}

// DefaultSweepPrecisions are the KV cache precisions a sweep covers unless told otherwise
var DefaultSweepPrecisions = []DataType{Float16, Int8, Int4}

// SweepResult holds the inference totals for one KV cache precision
type SweepResult struct {
	KVCachePrecision DataType      `json:"kv_cache_precision"`
	Totals           map[int]Total `json:"totals"`
}

// SweepTable is a grid of inference estimates over sequence lengths and KV cache precisions
type SweepTable struct {
	Model           string        `json:"model"`
	SequenceLengths []int         `json:"sequence_lengths"`
	Results         []SweepResult `json:"results"`
}

// GenerateSweep runs the inference estimate for every combination of sequence length and
// KV cache precision, keeping every other runtime choice from cfg.
func (e *Estimator) GenerateSweep(model string, shape ModelShape, cfg RuntimeConfig, lengths []int, kvPrecisions []DataType) SweepTable {
	if len(lengths) == 0 {
		lengths = DefaultSweepLengths
	}
	if len(kvPrecisions) == 0 {
		kvPrecisions = DefaultSweepPrecisions
	}
	lengths = unique(lengths)
	kvPrecisions = unique(kvPrecisions)

	table := SweepTable{Model: model, SequenceLengths: lengths}
	for _, precision := range kvPrecisions {
		result := SweepResult{KVCachePrecision: precision, Totals: make(map[int]Total, len(lengths))}
		for _, length := range lengths {
			c := cfg
			c.KVCachePrecision = precision
			c.SequenceLength = length
			result.Totals[length] = e.Inference(shape, c).Total
		}
		table.Results = append(table.Results, result)
	}
	return table
}

// unique drops repeated values, keeping the first occurrence of each.
func unique[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// PrintSweepTable renders a sweep, colouring cells by magnitude when colour is set.
func PrintSweepTable(table SweepTable, colour bool) string {
	var buf bytes.Buffer
	tw := tablewriter.NewWriter(&buf)

	header := []string{"KV|Ctx"}
	for _, length := range table.SequenceLengths {
		header = append(header, contextLabel(length))
	}
	tw.SetHeader(header)
	tw.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	tw.SetCenterSeparator("|")
	tw.SetColumnSeparator("|")
	tw.SetRowSeparator("-")

	if colour {
		headerColours := make([]tablewriter.Colors, len(header))
		for i := range headerColours {
			headerColours[i] = tablewriter.Colors{tablewriter.FgHiWhiteColor}
		}
		tw.SetHeaderColor(headerColours...)
	}

	for _, result := range table.Results {
		row := []string{string(result.KVCachePrecision)}
		for _, length := range table.SequenceLengths {
			total := result.Totals[length]
			row = append(row, colouredGB(total.GB, total.String(), colour))
		}
		tw.Append(row)
	}
	tw.Render()

	title := fmt.Sprintf("📊 Inference Memory Estimation for Model: %s\n\n%s", table.Model, buf.String())
	if !colour {
		return title
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Render(title)
}

// PrintReportTable renders a single report as a component/memory table with the
// total in the footer and any warnings underneath.
func PrintReportTable(model string, r Report, colour bool) string {
	var buf bytes.Buffer
	tw := tablewriter.NewWriter(&buf)
	tw.SetHeader([]string{"Component", "Memory"})
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	tw.SetCenterSeparator("|")

	for _, c := range r.Components {
		tw.Append([]string{c.Name, c.String()})
	}
	tw.SetFooter([]string{r.TotalName(), colouredGB(r.Total.GB, r.Total.String(), colour)})
	tw.Render()

	var out strings.Builder
	kind := string(r.Kind)
	if kind != "" {
		kind = strings.ToUpper(kind[:1]) + kind[1:]
	}
	fmt.Fprintf(&out, "%s memory for %s\n\n%s", kind, model, buf.String())
	for _, w := range r.Warnings() {
		fmt.Fprintf(&out, "warning: %s\n", w)
	}
	return out.String()
}

func contextLabel(length int) string {
	if length >= 1024 && length%1024 == 0 {
		return fmt.Sprintf("%dK", length/1024)
	}
	return fmt.Sprintf("%d", length)
}

func colouredGB(gb float64, s string, colour bool) string {
	if !colour {
		return s
	}

	var colorIndex int
	if gb <= 4 {
		colorIndex = len(colourMap) - 1
	} else if gb >= 24 {
		colorIndex = 0
	} else {
		// Interpolate between 4 and 24 GB
		colorIndex = len(colourMap) - 1 - int((gb-4)/(24-4)*float64(len(colourMap)-1))
	}

	style := lipgloss.NewStyle().Foreground(lipgloss.Color(colourMap[colorIndex]))
	return style.Render(s)
}
