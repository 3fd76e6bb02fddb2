package engine

import (
	"fmt"
	"strings"

	"github.com/fieldscope/fieldscope/internal/model"
)

// Start begins a recording: the session goes to Running, the sample index
// and elapsed time reset, the live buffers and last-value cache clear, and
// the display pointer returns to the live view. A configured duration limit
// survives restarts.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.display = nil
	e.state = Running
	e.clearRecordingLocked()
}

// Stop halts a running recording, keeping its buffers. No-op unless Running.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Running {
		e.state = Stopped
	}
}

// State returns the current session state.
func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Elapsed returns the session-relative time of the newest buffered sample.
func (e *Engine) Elapsed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elapsed
}

// ConfigureDuration sets the auto-stop limit. Values <= 0 mean unbounded;
// unit "minutes" (or "min"/"m") converts to seconds.
func (e *Engine) ConfigureDuration(value float64, unit string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if value <= 0 {
		e.durationLim = nil
		return
	}
	seconds := value
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "minutes", "minute", "min", "m":
		seconds = value * 60.0
	}
	e.durationLim = &seconds
}

// DurationLimit returns the configured limit in seconds, or nil if unbounded.
func (e *Engine) DurationLimit() *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.durationLim == nil {
		return nil
	}
	v := *e.durationLim
	return &v
}

// Tick runs the polled auto-stop check and reports whether it stopped the
// session. The check is polled, not interrupt-driven, so the last buffered
// sample may exceed the limit by up to one sample period.
func (e *Engine) Tick() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Running || e.durationLim == nil {
		return false
	}
	if e.elapsed >= *e.durationLim {
		e.state = Stopped
		return true
	}
	return false
}

// Save archives the current recording as an immutable named series, clears
// the live buffers, and returns the session to Idle. Fails with
// ErrEmptyRecording when the time buffer holds no samples, leaving all state
// untouched.
func (e *Engine) Save() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.times.Len() == 0 {
		return "", ErrEmptyRecording
	}

	e.counter++
	name := fmt.Sprintf("Series %d", e.counter)

	values := make(map[string][]*float64, len(e.active))
	for _, qid := range e.active {
		values[qid] = copyOptional(e.values[qid].Values())
	}
	metricIDs := make([]string, len(e.active))
	copy(metricIDs, e.active)

	e.snapshots = append(e.snapshots, model.SeriesSnapshot{
		Name:      name,
		Times:     e.times.Values(),
		Values:    values,
		MetricIDs: metricIDs,
	})

	e.display = nil
	e.state = Idle
	e.clearRecordingLocked()
	return name, nil
}

// clearRecordingLocked empties the live buffers and cache and rewinds the
// time axis. Session state and saved series are left alone.
func (e *Engine) clearRecordingLocked() {
	e.times.Clear()
	for _, buf := range e.values {
		buf.Clear()
	}
	for qid := range e.lastValues {
		e.lastValues[qid] = nil
	}
	e.lastTime = nil
	e.sampleIndex = 0
	e.elapsed = 0
}

// copyOptional deep-copies a slice of optional floats so a saved series can
// never alias the live cache.
func copyOptional(in []*float64) []*float64 {
	out := make([]*float64, len(in))
	for i, p := range in {
		if p == nil {
			continue
		}
		v := *p
		out[i] = &v
	}
	return out
}
