// Package export renders saved measurement series to external sinks: a CSV
// stream for spreadsheets and a DuckDB archive for ad-hoc SQL.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/fieldscope/fieldscope/internal/model"
)

// WriteCSV writes every snapshot as rows of (serie, t_s, metric columns).
// The metric columns are the union of all snapshot metric sets, ordered by
// first appearance; a metric absent from a series leaves its cell empty.
func WriteCSV(w io.Writer, snapshots []model.SeriesSnapshot) error {
	cols := columnUnion(snapshots)
	cw := csv.NewWriter(w)

	header := append([]string{"serie", "t_s"}, cols...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}

	for _, snap := range snapshots {
		for i, t := range snap.Times {
			row := make([]string, 0, len(header))
			row = append(row, snap.Name, fmt.Sprintf("%.2f", t))
			for _, id := range cols {
				row = append(row, formatCell(snap, id, i))
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("export: write row: %w", err)
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	return nil
}

func columnUnion(snapshots []model.SeriesSnapshot) []string {
	var cols []string
	seen := map[string]struct{}{}
	for _, snap := range snapshots {
		for _, id := range snap.MetricIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			cols = append(cols, id)
		}
	}
	return cols
}

func formatCell(snap model.SeriesSnapshot, metricID string, i int) string {
	vals, ok := snap.Values[metricID]
	if !ok || i >= len(vals) || vals[i] == nil {
		return ""
	}
	return strconv.FormatFloat(*vals[i], 'g', -1, 64)
}
