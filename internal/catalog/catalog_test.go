package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fieldscope/fieldscope/internal/model"
)

func TestSensorType(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"SensorMov", "Mov"},
		{"SensorTemp", "Temp"},
		{"SensorGyro", "Gyro"},
		{"Sensor", "Sensor"},
		{"probe-7", "probe-7"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SensorType(tt.id); got != tt.want {
			t.Errorf("SensorType(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestProfileForBuiltin(t *testing.T) {
	c := NewBuiltin()

	p := c.ProfileFor("SensorMov")
	if len(p.Metrics) != 3 {
		t.Fatalf("SensorMov metrics = %d, want 3", len(p.Metrics))
	}
	if p.Metrics[0].ID != "dist_m" || p.Metrics[0].SourceKey != "cm" || p.Metrics[0].Scale != 0.01 {
		t.Errorf("unexpected first Mov metric: %+v", p.Metrics[0])
	}
	if got := p.DefaultMetricIDs(); len(got) != 1 || got[0] != "dist_m" {
		t.Errorf("DefaultMetricIDs = %v, want [dist_m]", got)
	}
}

func TestProfileForUnknownFallsBack(t *testing.T) {
	c := NewBuiltin()

	p := c.ProfileFor("SensorMystery")
	if len(p.Metrics) != 0 {
		t.Errorf("fallback metrics = %v, want none", p.Metrics)
	}
	if len(p.RequiredKeys) != 1 || p.RequiredKeys[0] != model.TimestampKey {
		t.Errorf("fallback required keys = %v, want [%s]", p.RequiredKeys, model.TimestampKey)
	}
	if p.DroppedKey != "avg_dropped" {
		t.Errorf("fallback dropped key = %q, want avg_dropped", p.DroppedKey)
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	content := `
types:
  Hum:
    name: Humidity sensor
    required_keys: [t_ms, rh]
    metrics:
      - id: rh_pct
        source_key: rh
        scale: 1.0
        label: Humidity
        unit: "%"
        default: true
  Mov:
    name: Replacement motion sensor
    required_keys: [t_ms, mm]
    metrics:
      - id: dist_m
        source_key: mm
        scale: 0.001
        label: Distance
        unit: m
        default: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}

	c := NewBuiltin()
	if err := c.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if p := c.ProfileFor("SensorHum"); len(p.Metrics) != 1 || p.Metrics[0].ID != "rh_pct" {
		t.Errorf("SensorHum profile = %+v, want rh_pct metric", p)
	}
	// Overridden type replaces the built-in entirely.
	if p := c.ProfileFor("SensorMov"); p.Metrics[0].Scale != 0.001 {
		t.Errorf("overridden Mov scale = %v, want 0.001", p.Metrics[0].Scale)
	}
	// Untouched built-ins survive the overlay.
	if p := c.ProfileFor("SensorLux"); len(p.Metrics) != 1 {
		t.Errorf("SensorLux profile lost in overlay: %+v", p)
	}
}

func TestLoadFileRejectsDuplicateMetricIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yml")
	content := `
types:
  Bad:
    required_keys: [t_ms]
    metrics:
      - {id: x, source_key: a}
      - {id: x, source_key: b}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}

	c := NewBuiltin()
	if err := c.LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted duplicate metric ids")
	}
}
