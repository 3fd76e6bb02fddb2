package model

import "time"

// Shared defaults used by the engine and the CLI entrypoint.
const (
	// TimestampKey is the mandatory payload field carrying the sensor-side
	// millisecond timestamp. Its value is validated but the shared time axis
	// is derived from the sample index, not from it.
	TimestampKey = "t_ms"

	DefaultSampleHz      = 4
	DefaultWindowSeconds = 60
	// DefaultBufferMargin is the slack added on top of window*rate so the
	// render window never starves while the oldest samples rotate out.
	DefaultBufferMargin = 10

	DefaultRefreshInterval  = 250 * time.Millisecond
	DefaultSensorStaleAfter = 5 * time.Second
)

// DefaultSamplePeriod is the global fallback sample period in seconds for
// profiles that do not configure their own.
const DefaultSamplePeriod = 1.0 / float64(DefaultSampleHz)
