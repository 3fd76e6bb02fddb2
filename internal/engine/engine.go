// Package engine holds the telemetry state core: sensor/metric selection,
// bounded time-aligned sample buffers, the last-value cache, the measurement
// session state machine, and the saved-series store.
//
// All mutable state lives behind one coarse mutex. Per-message work is
// bounded by the number of active metrics, so the single lock keeps read
// snapshots atomic without becoming a throughput concern. The lock is never
// held across a call into the transport.
package engine

import (
	"log"
	"math"
	"sync"

	"github.com/fieldscope/fieldscope/internal/model"
)

// SessionState is the measurement session lifecycle state.
type SessionState int

const (
	// Idle means no recording has started or the last one was saved.
	Idle SessionState = iota
	// Running means accepted samples are being appended to the buffers.
	Running
	// Stopped means a recording exists in the buffers but appending halted.
	Stopped
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config carries the engine's collaborators and window parameters.
// Zero window parameters fall back to the model defaults.
type Config struct {
	Catalog     model.Catalog
	Transport   model.Transport
	TopicPrefix string

	SampleHz      float64
	WindowSeconds float64
	BufferMargin  int
}

// Engine is the concurrency-safe telemetry state store. Construct one per
// process and share it between the message delivery path and the poll path.
type Engine struct {
	// The coarse lock. Guards everything below.
	mu sync.Mutex

	catalog     model.Catalog
	transport   model.Transport
	topicPrefix string

	samplePeriod float64
	capacity     int

	// Selection. channels absent for a sensor means all its metrics are
	// active. active is the derived, ordered qualified-id list.
	sensors  []string
	channels map[string]map[string]struct{}
	active   []string
	topics   map[string]string

	// Live buffers. All rings share capacity and advance together.
	times  *ring[float64]
	values map[string]*ring[*float64]

	// Last-value cache, updated on every accepted message regardless of
	// the session state.
	lastValues  map[string]*float64
	lastTime    *float64
	lastDropped *int

	// Measurement session.
	state       SessionState
	sampleIndex int
	elapsed     float64
	durationLim *float64

	// Saved series and the display pointer (nil = live view).
	snapshots []model.SeriesSnapshot
	counter   int
	display   *int
}

// New creates an engine with empty selection and an idle session.
func New(cfg Config) *Engine {
	hz := cfg.SampleHz
	if hz <= 0 {
		hz = model.DefaultSampleHz
	}
	window := cfg.WindowSeconds
	if window <= 0 {
		window = model.DefaultWindowSeconds
	}
	margin := cfg.BufferMargin
	if margin <= 0 {
		margin = model.DefaultBufferMargin
	}
	capacity := int(math.Ceil(window*hz)) + margin

	return &Engine{
		catalog:      cfg.Catalog,
		transport:    cfg.Transport,
		topicPrefix:  cfg.TopicPrefix,
		samplePeriod: 1.0 / hz,
		capacity:     capacity,
		channels:     make(map[string]map[string]struct{}),
		topics:       make(map[string]string),
		times:        newRing[float64](capacity),
		values:       make(map[string]*ring[*float64]),
		lastValues:   make(map[string]*float64),
	}
}

// Capacity returns the shared buffer length limit.
func (e *Engine) Capacity() int { return e.capacity }

// SetSensors installs a new sensor selection. Input is normalized (empty
// entries and duplicates dropped, first-seen order kept); an empty result is
// a no-op. When the sensor set itself changes, the live buffers, last-value
// cache, and session are fully reset first so buffers never mix schemas.
// Subscription topics are diffed against the previous selection and only the
// difference is (un)subscribed, outside the lock.
func (e *Engine) SetSensors(sensorIDs []string) {
	unique := normalizeSensors(sensorIDs)
	if len(unique) == 0 {
		return
	}
	e.applySensors(unique)
}

// DropSensors removes the given sensors from the selection, typically after
// staleness eviction. Dropping the last selected sensor clears the whole
// selection and unsubscribes everything. The surviving list is computed and
// installed under one lock acquisition so a concurrent SetSensors can never
// be overwritten by a stale remainder.
func (e *Engine) DropSensors(sensorIDs []string) {
	drop := make(map[string]struct{}, len(sensorIDs))
	for _, id := range sensorIDs {
		drop[id] = struct{}{}
	}

	e.mu.Lock()
	remaining := make([]string, 0, len(e.sensors))
	changed := false
	for _, id := range e.sensors {
		if _, gone := drop[id]; gone {
			changed = true
			continue
		}
		remaining = append(remaining, id)
	}
	if !changed {
		e.mu.Unlock()
		return
	}
	oldTopics, newTopics := e.installSensorsLocked(remaining)
	e.mu.Unlock()

	e.reconcileSubscriptions(oldTopics, newTopics)
}

func (e *Engine) applySensors(unique []string) {
	e.mu.Lock()
	oldTopics, newTopics := e.installSensorsLocked(unique)
	e.mu.Unlock()

	e.reconcileSubscriptions(oldTopics, newTopics)
}

// installSensorsLocked swaps in a new sensor list and returns the topic maps
// before and after for subscription reconciliation outside the lock.
func (e *Engine) installSensorsLocked(unique []string) (oldTopics, newTopics map[string]string) {
	if !sameSensorSet(e.sensors, unique) {
		e.resetLocked()
	}

	// Drop channel restrictions for sensors leaving the selection.
	keep := make(map[string]struct{}, len(unique))
	for _, id := range unique {
		keep[id] = struct{}{}
	}
	for id := range e.channels {
		if _, ok := keep[id]; !ok {
			delete(e.channels, id)
		}
	}

	oldTopics = e.topics
	newTopics = make(map[string]string, len(unique))
	for _, id := range unique {
		newTopics[id] = model.DataTopic(e.topicPrefix, id)
	}

	e.sensors = unique
	e.topics = newTopics
	e.rebuildActiveLocked()
	return oldTopics, newTopics
}

// SetChannels restricts which metrics of a selected sensor are active.
// The session is untouched: a running recording continues, only buffer keys
// are added or removed. Returns ErrInvalidSelection, leaving the previous
// channel map unchanged, when the sensor is not selected, the set is empty,
// or no id matches the sensor's profile.
func (e *Engine) SetChannels(sensorID string, metricIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !containsString(e.sensors, sensorID) {
		return ErrInvalidSelection
	}
	if len(metricIDs) == 0 {
		return ErrInvalidSelection
	}

	profile := e.catalog.ProfileFor(sensorID)
	known := make(map[string]struct{}, len(profile.Metrics))
	for _, m := range profile.Metrics {
		known[m.ID] = struct{}{}
	}

	set := make(map[string]struct{}, len(metricIDs))
	for _, id := range metricIDs {
		if _, ok := known[id]; ok {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return ErrInvalidSelection
	}

	e.channels[sensorID] = set
	e.rebuildActiveLocked()
	return nil
}

// ApplyDefaultChannels restricts every selected sensor to its profile's
// default-enabled metrics. Sensors whose profile marks no defaults keep all
// of their metrics active.
func (e *Engine) ApplyDefaultChannels() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.sensors {
		defaults := e.catalog.ProfileFor(id).DefaultMetricIDs()
		if len(defaults) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(defaults))
		for _, m := range defaults {
			set[m] = struct{}{}
		}
		e.channels[id] = set
	}
	e.rebuildActiveLocked()
}

// Selection returns the ordered selected sensor ids.
func (e *Engine) Selection() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.sensors))
	copy(out, e.sensors)
	return out
}

// ActiveMetricIDs returns the derived qualified metric ids in order.
func (e *Engine) ActiveMetricIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.active))
	copy(out, e.active)
	return out
}

// Channels returns the channel restriction for a sensor, or nil when all of
// its metrics are active.
func (e *Engine) Channels(sensorID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.channels[sensorID]
	if !ok {
		return nil
	}
	// Preserve profile order rather than map order.
	var out []string
	for _, id := range e.catalog.ProfileFor(sensorID).MetricIDs() {
		if _, on := set[id]; on {
			out = append(out, id)
		}
	}
	return out
}

// Topics returns the data topics of the current selection, for connection
// handlers that resubscribe after a broker reconnect.
func (e *Engine) Topics() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.topics))
	for _, id := range e.sensors {
		out = append(out, e.topics[id])
	}
	return out
}

// rebuildActiveLocked recomputes the qualified-id list from the selection and
// channel map, then reconciles buffer and cache keys. New buffers created
// mid-recording are backfilled with nils so every value buffer stays the same
// length as the time buffer.
func (e *Engine) rebuildActiveLocked() {
	active := make([]string, 0, len(e.active))
	for _, sensorID := range e.sensors {
		restriction := e.channels[sensorID]
		for _, m := range e.catalog.ProfileFor(sensorID).Metrics {
			if restriction != nil {
				if _, on := restriction[m.ID]; !on {
					continue
				}
			}
			active = append(active, model.QualifiedID(sensorID, m.ID))
		}
	}
	e.active = active

	current := make(map[string]struct{}, len(active))
	for _, qid := range active {
		current[qid] = struct{}{}
	}

	backfill := e.times.Len()
	for _, qid := range active {
		if _, ok := e.values[qid]; ok {
			continue
		}
		buf := newRing[*float64](e.capacity)
		for i := 0; i < backfill; i++ {
			buf.Append(nil)
		}
		e.values[qid] = buf
		if _, ok := e.lastValues[qid]; !ok {
			e.lastValues[qid] = nil
		}
	}
	for qid := range e.values {
		if _, ok := current[qid]; !ok {
			delete(e.values, qid)
		}
	}
	for qid := range e.lastValues {
		if _, ok := current[qid]; !ok {
			delete(e.lastValues, qid)
		}
	}
}

// resetLocked wipes buffers, cache, and session. Saved series survive; only
// an explicit ClearAll touches them.
func (e *Engine) resetLocked() {
	e.times.Clear()
	for _, buf := range e.values {
		buf.Clear()
	}
	for qid := range e.lastValues {
		e.lastValues[qid] = nil
	}
	e.lastTime = nil
	e.lastDropped = nil

	e.durationLim = nil
	e.state = Idle
	e.sampleIndex = 0
	e.elapsed = 0
	e.display = nil
}

// reconcileSubscriptions issues the topic diff against the transport. Calls
// happen outside the engine lock; failures are logged and the selection is
// kept optimistically, no retry is scheduled.
func (e *Engine) reconcileSubscriptions(oldTopics, newTopics map[string]string) {
	if e.transport == nil {
		return
	}

	newSet := make(map[string]struct{}, len(newTopics))
	for _, t := range newTopics {
		newSet[t] = struct{}{}
	}
	oldSet := make(map[string]struct{}, len(oldTopics))
	for _, t := range oldTopics {
		oldSet[t] = struct{}{}
	}

	for t := range oldSet {
		if _, still := newSet[t]; still {
			continue
		}
		if err := e.transport.Unsubscribe(t); err != nil {
			log.Printf("engine: unsubscribe %s: %v", t, err)
		}
	}
	for t := range newSet {
		if _, had := oldSet[t]; had {
			continue
		}
		if err := e.transport.Subscribe(t); err != nil {
			log.Printf("engine: subscribe %s: %v", t, err)
		}
	}
}

func normalizeSensors(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameSensorSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
