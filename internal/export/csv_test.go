package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fieldscope/fieldscope/internal/model"
)

func fptr(v float64) *float64 { return &v }

func sampleSnapshots() []model.SeriesSnapshot {
	return []model.SeriesSnapshot{
		{
			Name:      "Series 1",
			Times:     []float64{0, 0.25},
			MetricIDs: []string{"SensorMov01:dist_m", "SensorMov01:vel_m_s"},
			Values: map[string][]*float64{
				"SensorMov01:dist_m":  {fptr(2.5), fptr(2.6)},
				"SensorMov01:vel_m_s": {nil, fptr(0.4)},
			},
		},
		{
			Name:      "Series 2",
			Times:     []float64{0},
			MetricIDs: []string{"SensorLux03:lux"},
			Values: map[string][]*float64{
				"SensorLux03:lux": {fptr(320)},
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleSnapshots()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "serie,t_s,SensorMov01:dist_m,SensorMov01:vel_m_s,SensorLux03:lux" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "Series 1,0.00,2.5,," {
		t.Fatalf("first row = %q", lines[1])
	}
	if lines[2] != "Series 1,0.25,2.6,0.4," {
		t.Fatalf("second row = %q", lines[2])
	}
	if lines[3] != "Series 2,0.00,,,320" {
		t.Fatalf("third row = %q", lines[3])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "serie,t_s" {
		t.Fatalf("empty export = %q", got)
	}
}
