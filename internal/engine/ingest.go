package engine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/fieldscope/fieldscope/internal/model"
)

// OnPayload is the transport message handler for one sensor's data topic.
// The payload must be UTF-8 JSON text. Malformed telemetry is expected and
// frequent, so every failure path is a silent drop: the next message
// supersedes it and nothing propagates outward.
func (e *Engine) OnPayload(sensorID string, payload []byte) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return
	}
	e.OnSample(sensorID, fields)
}

// OnSample validates, scales, and routes one decoded sample. Accepted values
// land in the last-value cache always, and in the time-aligned buffers when
// a recording is running. Samples from unselected sensors, samples missing a
// required field, and samples whose timestamp field does not parse as an
// integer are dropped.
func (e *Engine) OnSample(sensorID string, fields map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !containsString(e.sensors, sensorID) {
		return
	}

	if toInt(fields[model.TimestampKey]) == nil {
		return
	}

	profile := e.catalog.ProfileFor(sensorID)
	for _, key := range profile.RequiredKeys {
		if key == model.TimestampKey {
			continue
		}
		if _, ok := fields[key]; !ok {
			return
		}
	}

	restriction := e.channels[sensorID]

	// Scaled values keyed by qualified id. Uncoercible values stay nil and
	// propagate downstream as gaps, never as zeros.
	computed := make(map[string]*float64, len(profile.Metrics))
	for _, m := range profile.Metrics {
		if restriction != nil {
			if _, on := restriction[m.ID]; !on {
				continue
			}
		}
		val := toFloat(fields[m.SourceKey])
		if val != nil {
			scaled := *val * m.Scale
			val = &scaled
		}
		computed[model.QualifiedID(sensorID, m.ID)] = val
	}

	// The dropped count tracks the newest accepted message only: a message
	// without the field (or with an unparseable one) clears it.
	if profile.DroppedKey != "" {
		e.lastDropped = toInt(fields[profile.DroppedKey])
	}
	for qid, val := range computed {
		e.lastValues[qid] = val
	}

	if e.state != Running {
		return
	}

	period := profile.SamplePeriod
	if period <= 0 {
		period = e.samplePeriod
	}
	t := float64(e.sampleIndex) * period
	e.sampleIndex++
	// Elapsed covers the recorded span, one period past the newest sample's
	// axis position, so a duration limit of N seconds yields N*rate samples.
	e.elapsed = float64(e.sampleIndex) * period
	e.lastTime = &t
	e.times.Append(t)

	// Every active buffer advances on this tick. Metrics this sensor did not
	// produce are forward-filled from the cache so independent publish
	// cadences share one time axis.
	for _, qid := range e.active {
		val, produced := computed[qid]
		if !produced {
			val = e.lastValues[qid]
		}
		e.values[qid].Append(val)
	}
}

// toFloat coerces a decoded JSON value to a float, or nil when it cannot.
func toFloat(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case int:
		f := float64(x)
		return &f
	case int64:
		f := float64(x)
		return &f
	case bool:
		f := 0.0
		if x {
			f = 1.0
		}
		return &f
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// toInt coerces a decoded JSON value to an integer. Floats qualify only when
// integer-valued; numeric strings are accepted.
func toInt(v any) *int {
	switch x := v.(type) {
	case float64:
		if x != math.Trunc(x) {
			return nil
		}
		n := int(x)
		return &n
	case int:
		return &x
	case int64:
		n := int(x)
		return &n
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil
		}
		if n, err := strconv.Atoi(s); err == nil {
			return &n
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return nil
		}
		n := int(f)
		return &n
	default:
		return nil
	}
}
