package engine

import "github.com/fieldscope/fieldscope/internal/model"

// CurrentView returns an atomic copy of whatever the display pointer selects:
// the live buffers plus last-value cache, or a saved series with its "last"
// values derived from the final array entries. Snapshots report no dropped
// count; they do not retain it.
func (e *Engine) CurrentView() model.View {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.display == nil || *e.display < 0 || *e.display >= len(e.snapshots) {
		return e.liveViewLocked()
	}

	s := e.snapshots[*e.display]
	view := model.View{
		Times:      copyFloats(s.Times),
		Values:     make(map[string][]*float64, len(s.Values)),
		LastValues: make(map[string]*float64, len(s.Values)),
		SeriesName: s.Name,
	}
	for qid, vals := range s.Values {
		view.Values[qid] = copyOptional(vals)
		if len(vals) > 0 {
			view.LastValues[qid] = copyOptionalValue(vals[len(vals)-1])
		} else {
			view.LastValues[qid] = nil
		}
	}
	if len(s.Times) > 0 {
		last := s.Times[len(s.Times)-1]
		view.LastTime = &last
	}
	return view
}

func (e *Engine) liveViewLocked() model.View {
	view := model.View{
		Times:      e.times.Values(),
		Values:     make(map[string][]*float64, len(e.active)),
		LastValues: make(map[string]*float64, len(e.active)),
		Live:       true,
	}
	for _, qid := range e.active {
		view.Values[qid] = copyOptional(e.values[qid].Values())
		view.LastValues[qid] = copyOptionalValue(e.lastValues[qid])
	}
	view.LastTime = copyOptionalValue(e.lastTime)
	if e.lastDropped != nil {
		d := *e.lastDropped
		view.DroppedCount = &d
	}
	return view
}

// SelectForDisplay points the read path at a saved series by name, or back
// at the live view when name is empty. An unknown name falls back to live
// silently; duplicate names resolve to the first match. Selecting a series
// halts a running recording.
func (e *Engine) SelectForDisplay(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		e.display = nil
		return
	}
	if e.state == Running {
		e.state = Stopped
	}
	e.display = nil
	for i := range e.snapshots {
		if e.snapshots[i].Name == name {
			idx := i
			e.display = &idx
			return
		}
	}
}

// SnapshotNames lists saved series names in save order.
func (e *Engine) SnapshotNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.snapshots))
	for i, s := range e.snapshots {
		names[i] = s.Name
	}
	return names
}

// Snapshots returns deep copies of every saved series, oldest first.
func (e *Engine) Snapshots() []model.SeriesSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.SeriesSnapshot, len(e.snapshots))
	for i, s := range e.snapshots {
		cp := model.SeriesSnapshot{
			Name:      s.Name,
			Times:     copyFloats(s.Times),
			Values:    make(map[string][]*float64, len(s.Values)),
			MetricIDs: make([]string, len(s.MetricIDs)),
		}
		copy(cp.MetricIDs, s.MetricIDs)
		for qid, vals := range s.Values {
			cp.Values[qid] = copyOptional(vals)
		}
		out[i] = cp
	}
	return out
}

// ClearAll drops every saved series, resets the series counter, stops any
// recording, and clears the live buffers. Discovery and selection are not
// touched.
func (e *Engine) ClearAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = Idle
	e.snapshots = nil
	e.counter = 0
	e.display = nil
	e.clearRecordingLocked()
}

func copyFloats(in []float64) []float64 {
	out := make([]float64, len(in))
	copy(out, in)
	return out
}

func copyOptionalValue(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
