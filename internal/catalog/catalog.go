package catalog

import (
	"strings"

	"github.com/fieldscope/fieldscope/internal/model"
)

// sensorPrefix is the naming convention sensors announce under: the type key
// is everything after "Sensor" (SensorMov -> Mov).
const sensorPrefix = "Sensor"

// SensorType extracts the type key from a sensor identifier. Identifiers
// that do not follow the Sensor<Type> convention map to themselves.
func SensorType(sensorID string) string {
	if strings.HasPrefix(sensorID, sensorPrefix) && len(sensorID) > len(sensorPrefix) {
		return sensorID[len(sensorPrefix):]
	}
	return sensorID
}

// Catalog is a read-only lookup table from sensor type to profile. Unknown
// types resolve to a default profile so the ingest path never fails hard on
// an unrecognized sensor.
type Catalog struct {
	types    map[string]model.SensorProfile
	fallback model.SensorProfile
}

// NewBuiltin returns a catalog preloaded with the built-in sensor types.
func NewBuiltin() *Catalog {
	return &Catalog{
		types:    builtinTypes(),
		fallback: defaultProfile(),
	}
}

// ProfileFor resolves the profile for a sensor identifier by its type key.
func (c *Catalog) ProfileFor(sensorID string) model.SensorProfile {
	if p, ok := c.types[SensorType(sensorID)]; ok {
		return p
	}
	return c.fallback
}

// Types returns the configured type keys, for diagnostics.
func (c *Catalog) Types() []string {
	keys := make([]string, 0, len(c.types))
	for k := range c.types {
		keys = append(keys, k)
	}
	return keys
}

func defaultProfile() model.SensorProfile {
	return model.SensorProfile{
		RequiredKeys: []string{model.TimestampKey},
		DroppedKey:   "avg_dropped",
	}
}

func builtinTypes() map[string]model.SensorProfile {
	return map[string]model.SensorProfile{
		"Mov": {
			Name:         "Motion sensor",
			RequiredKeys: []string{model.TimestampKey, "cm", "v_cm_s", "a_cm_s2"},
			Metrics: []model.MetricDef{
				{ID: "dist_m", SourceKey: "cm", Scale: 0.01, Label: "Distance", Unit: "m", Color: "#1f77b4", Default: true},
				{ID: "vel_m_s", SourceKey: "v_cm_s", Scale: 0.01, Label: "Velocity", Unit: "m/s", Color: "#2ca02c"},
				{ID: "acc_m_s2", SourceKey: "a_cm_s2", Scale: 0.01, Label: "Acceleration", Unit: "m/s²", Color: "#ff0000"},
			},
		},
		"Gyro": {
			Name:         "Gyroscope and accelerometer",
			RequiredKeys: []string{model.TimestampKey, "temp_c", "ax", "ay", "az", "gx", "gy", "gz"},
			Metrics: []model.MetricDef{
				{ID: "temp_c", SourceKey: "temp_c", Scale: 1.0, Label: "Temperature", Unit: "°C", Color: "#ff7f0e", Default: true},
				{ID: "ax", SourceKey: "ax", Scale: 1.0, Label: "Acceleration X", Unit: "m/s²", Color: "#1f77b4", Default: true},
				{ID: "ay", SourceKey: "ay", Scale: 1.0, Label: "Acceleration Y", Unit: "m/s²", Color: "#2ca02c"},
				{ID: "az", SourceKey: "az", Scale: 1.0, Label: "Acceleration Z", Unit: "m/s²", Color: "#d62728"},
				{ID: "gx", SourceKey: "gx", Scale: 1.0, Label: "Gyro X", Unit: "rad/s", Color: "#9467bd"},
				{ID: "gy", SourceKey: "gy", Scale: 1.0, Label: "Gyro Y", Unit: "rad/s", Color: "#8c564b"},
				{ID: "gz", SourceKey: "gz", Scale: 1.0, Label: "Gyro Z", Unit: "rad/s", Color: "#e377c2"},
			},
		},
		"Lux": {
			Name:         "Light sensor",
			RequiredKeys: []string{model.TimestampKey, "Lux"},
			Metrics: []model.MetricDef{
				{ID: "Lux", SourceKey: "Lux", Scale: 1.0, Label: "Lux", Unit: "lux", Color: "#003300", Default: true},
			},
		},
	}
}
