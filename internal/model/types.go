package model

// MetricDef describes one scalar measurement channel a sensor exposes.
// SourceKey names the payload field the value is read from; Scale converts
// raw units to display units (for example cm -> m is 0.01).
type MetricDef struct {
	ID        string  `yaml:"id"`
	SourceKey string  `yaml:"source_key"`
	Scale     float64 `yaml:"scale"`
	Label     string  `yaml:"label"`
	Unit      string  `yaml:"unit"`
	Color     string  `yaml:"color"`
	Default   bool    `yaml:"default"`
}

// SensorProfile is the immutable per-sensor-type description resolved from
// the metric catalog. RequiredKeys are payload fields that must be present
// for a sample to be accepted. An empty DroppedKey means the type reports no
// dropped-sample counter. A zero SamplePeriod falls back to the global
// default.
type SensorProfile struct {
	Name         string      `yaml:"name"`
	RequiredKeys []string    `yaml:"required_keys"`
	Metrics      []MetricDef `yaml:"metrics"`
	DroppedKey   string      `yaml:"dropped_key"`
	SamplePeriod float64     `yaml:"sample_period_s"`
}

// MetricIDs returns the profile's metric identifiers in definition order.
func (p SensorProfile) MetricIDs() []string {
	ids := make([]string, 0, len(p.Metrics))
	for _, m := range p.Metrics {
		ids = append(ids, m.ID)
	}
	return ids
}

// DefaultMetricIDs returns the identifiers of metrics enabled by default.
func (p SensorProfile) DefaultMetricIDs() []string {
	var ids []string
	for _, m := range p.Metrics {
		if m.Default {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// QualifiedID builds the flat namespace key used by buffers and caches once
// multiple sensors are active. No two sensors' metrics can collide under it.
func QualifiedID(sensorID, metricID string) string {
	return sensorID + ":" + metricID
}

// SeriesSnapshot is an immutable saved copy of a completed recording.
// Created once on save and never mutated afterward.
type SeriesSnapshot struct {
	Name      string
	Times     []float64
	Values    map[string][]*float64
	MetricIDs []string
}

// View is the atomic read-side snapshot handed to presentation consumers.
// Either the live buffers (Live=true) or a saved series (Live=false,
// SeriesName set). Nil pointers mean "no value yet". DroppedCount is only
// carried for the live view; snapshots do not retain it.
type View struct {
	Times        []float64             `json:"t_s"`
	Values       map[string][]*float64 `json:"values"`
	LastTime     *float64              `json:"last_t_s"`
	LastValues   map[string]*float64   `json:"last_values"`
	DroppedCount *int                  `json:"dropped_count"`
	Live         bool                  `json:"live"`
	SeriesName   string                `json:"series,omitempty"`
}
