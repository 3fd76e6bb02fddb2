package engine

import (
	"sync"
	"testing"

	"github.com/fieldscope/fieldscope/internal/catalog"
)

// fakeTransport records subscription traffic for diff assertions.
type fakeTransport struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
}

func (f *fakeTransport) Subscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topic)
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeTransport) calls() (subs, unsubs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed), len(f.unsubscribed)
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	e := New(Config{
		Catalog:     catalog.NewBuiltin(),
		Transport:   tr,
		TopicPrefix: "EQ1",
	})
	return e, tr
}

// movSample is a complete, valid SensorMov payload.
func movSample(tms, cm float64) map[string]any {
	return map[string]any{"t_ms": tms, "cm": cm, "v_cm_s": 10.0, "a_cm_s2": 0.0}
}

func TestSetSensorsSubscribesAndDerivesMetrics(t *testing.T) {
	e, tr := newTestEngine(t)

	e.SetSensors([]string{"SensorMov"})

	if got := e.Selection(); len(got) != 1 || got[0] != "SensorMov" {
		t.Fatalf("Selection = %v, want [SensorMov]", got)
	}
	want := []string{"SensorMov:dist_m", "SensorMov:vel_m_s", "SensorMov:acc_m_s2"}
	got := e.ActiveMetricIDs()
	if len(got) != len(want) {
		t.Fatalf("ActiveMetricIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ActiveMetricIDs = %v, want %v", got, want)
		}
	}
	if len(tr.subscribed) != 1 || tr.subscribed[0] != "EQ1/SensorMov/data" {
		t.Fatalf("subscribed = %v, want [EQ1/SensorMov/data]", tr.subscribed)
	}
}

func TestSetSensorsNormalizesInput(t *testing.T) {
	e, _ := newTestEngine(t)

	e.SetSensors([]string{"SensorMov", "", "SensorLux", "SensorMov"})

	got := e.Selection()
	if len(got) != 2 || got[0] != "SensorMov" || got[1] != "SensorLux" {
		t.Fatalf("Selection = %v, want first-seen order [SensorMov SensorLux]", got)
	}
}

func TestSetSensorsEmptyIsNoop(t *testing.T) {
	e, tr := newTestEngine(t)
	e.SetSensors([]string{"SensorMov"})

	e.SetSensors(nil)
	e.SetSensors([]string{""})

	if got := e.Selection(); len(got) != 1 {
		t.Fatalf("Selection = %v, want untouched [SensorMov]", got)
	}
	if subs, unsubs := tr.calls(); subs != 1 || unsubs != 0 {
		t.Fatalf("transport calls = %d subs %d unsubs, want 1/0", subs, unsubs)
	}
}

func TestIdempotentResubscription(t *testing.T) {
	e, tr := newTestEngine(t)

	e.SetSensors([]string{"SensorMov", "SensorLux"})
	subsBefore, unsubsBefore := tr.calls()

	// Same set, different order: zero additional transport calls.
	e.SetSensors([]string{"SensorLux", "SensorMov"})

	subsAfter, unsubsAfter := tr.calls()
	if subsAfter != subsBefore || unsubsAfter != unsubsBefore {
		t.Fatalf("reorder issued %d subs %d unsubs", subsAfter-subsBefore, unsubsAfter-unsubsBefore)
	}
}

func TestSetSensorsDiffsTopics(t *testing.T) {
	e, tr := newTestEngine(t)

	e.SetSensors([]string{"SensorMov", "SensorLux"})
	e.SetSensors([]string{"SensorMov", "SensorGyro"})

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.unsubscribed) != 1 || tr.unsubscribed[0] != "EQ1/SensorLux/data" {
		t.Fatalf("unsubscribed = %v, want [EQ1/SensorLux/data]", tr.unsubscribed)
	}
	// SensorMov stays untouched: 2 initial + 1 for SensorGyro.
	if len(tr.subscribed) != 3 || tr.subscribed[2] != "EQ1/SensorGyro/data" {
		t.Fatalf("subscribed = %v, want third entry EQ1/SensorGyro/data", tr.subscribed)
	}
}

func TestSensorSetChangeResetsState(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetSensors([]string{"SensorMov"})
	e.Start()
	e.OnSample("SensorMov", movSample(1000, 250))
	e.OnSample("SensorMov", movSample(1250, 260))
	if _, err := e.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	e.Start()
	e.OnSample("SensorMov", movSample(1500, 270))

	e.SetSensors([]string{"SensorLux"})

	view := e.CurrentView()
	if len(view.Times) != 0 {
		t.Errorf("time buffer not emptied on set change: %v", view.Times)
	}
	if e.State() != Idle {
		t.Errorf("state = %v after set change, want Idle", e.State())
	}
	if e.Elapsed() != 0 {
		t.Errorf("elapsed = %v after set change, want 0", e.Elapsed())
	}
	for qid, v := range view.LastValues {
		if v != nil {
			t.Errorf("last value %s = %v after set change, want nil", qid, *v)
		}
	}
	// Saved series survive a selection change; only ClearAll drops them.
	if names := e.SnapshotNames(); len(names) != 1 || names[0] != "Series 1" {
		t.Errorf("SnapshotNames = %v, want [Series 1]", names)
	}
}

func TestChannelOnlyChangeDoesNotReset(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetSensors([]string{"SensorMov"})
	e.Start()
	e.OnSample("SensorMov", movSample(1000, 250))
	e.OnSample("SensorMov", movSample(1250, 260))

	if err := e.SetChannels("SensorMov", []string{"dist_m"}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}

	if e.State() != Running {
		t.Errorf("state = %v after channel change, want Running", e.State())
	}
	view := e.CurrentView()
	if len(view.Times) != 2 {
		t.Errorf("time buffer = %v after channel change, want 2 samples", view.Times)
	}
	if _, gone := view.Values["SensorMov:vel_m_s"]; gone {
		t.Errorf("deselected channel still present in view")
	}
	if got := view.Values["SensorMov:dist_m"]; len(got) != 2 {
		t.Errorf("kept channel lost data: %v", got)
	}
}

func TestSetChannelsEmptyFails(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetSensors([]string{"SensorMov"})
	if err := e.SetChannels("SensorMov", []string{"dist_m"}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}

	if err := e.SetChannels("SensorMov", nil); err != ErrInvalidSelection {
		t.Fatalf("SetChannels(empty) = %v, want ErrInvalidSelection", err)
	}
	// Prior restriction untouched.
	if got := e.Channels("SensorMov"); len(got) != 1 || got[0] != "dist_m" {
		t.Fatalf("Channels = %v after rejected change, want [dist_m]", got)
	}
}

func TestSetChannelsUnknownSensorOrMetricFails(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetSensors([]string{"SensorMov"})

	if err := e.SetChannels("SensorLux", []string{"Lux"}); err != ErrInvalidSelection {
		t.Errorf("SetChannels(unselected sensor) = %v, want ErrInvalidSelection", err)
	}
	if err := e.SetChannels("SensorMov", []string{"no_such_metric"}); err != ErrInvalidSelection {
		t.Errorf("SetChannels(unknown metric) = %v, want ErrInvalidSelection", err)
	}
}

func TestSetChannelsMidRecordingBackfills(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetSensors([]string{"SensorMov"})
	if err := e.SetChannels("SensorMov", []string{"dist_m"}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	e.Start()
	e.OnSample("SensorMov", movSample(1000, 250))
	e.OnSample("SensorMov", movSample(1250, 260))

	// Re-enabling a metric mid-recording backfills its buffer with gaps so
	// every buffer keeps the time buffer's length.
	if err := e.SetChannels("SensorMov", []string{"dist_m", "vel_m_s"}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	e.OnSample("SensorMov", movSample(1500, 270))

	view := e.CurrentView()
	vel := view.Values["SensorMov:vel_m_s"]
	if len(vel) != len(view.Times) {
		t.Fatalf("vel buffer len %d != time buffer len %d", len(vel), len(view.Times))
	}
	if vel[0] != nil || vel[1] != nil {
		t.Errorf("backfilled entries = %v, want nils", vel[:2])
	}
	if vel[2] == nil || *vel[2] != 0.1 {
		t.Errorf("post-reenable vel = %v, want 0.1", vel[2])
	}
}

func TestDropSensors(t *testing.T) {
	e, tr := newTestEngine(t)
	e.SetSensors([]string{"SensorMov", "SensorLux"})

	e.DropSensors([]string{"SensorLux"})
	if got := e.Selection(); len(got) != 1 || got[0] != "SensorMov" {
		t.Fatalf("Selection = %v after drop, want [SensorMov]", got)
	}

	e.DropSensors([]string{"SensorMov"})
	if got := e.Selection(); len(got) != 0 {
		t.Fatalf("Selection = %v after dropping all, want empty", got)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.unsubscribed) != 2 {
		t.Fatalf("unsubscribed = %v, want both data topics", tr.unsubscribed)
	}
}

func TestDropSensorsUnselectedIsNoop(t *testing.T) {
	e, tr := newTestEngine(t)
	e.SetSensors([]string{"SensorMov"})
	subsBefore, unsubsBefore := tr.calls()

	e.DropSensors([]string{"SensorGyro"})

	subsAfter, unsubsAfter := tr.calls()
	if subsAfter != subsBefore || unsubsAfter != unsubsBefore {
		t.Fatalf("dropping an unselected sensor touched the transport")
	}
}

func TestApplyDefaultChannels(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetSensors([]string{"SensorMov", "SensorLux"})

	e.ApplyDefaultChannels()

	got := e.ActiveMetricIDs()
	want := []string{"SensorMov:dist_m", "SensorLux:Lux"}
	if len(got) != len(want) {
		t.Fatalf("ActiveMetricIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ActiveMetricIDs = %v, want %v", got, want)
		}
	}

	// An explicit channel change still widens the restriction afterwards.
	if err := e.SetChannels("SensorMov", []string{"dist_m", "vel_m_s"}); err != nil {
		t.Fatalf("SetChannels: %v", err)
	}
	if got := e.ActiveMetricIDs(); len(got) != 3 {
		t.Fatalf("ActiveMetricIDs = %v after widening, want 3 entries", got)
	}
}

func TestDropSensorsAtomicAgainstConcurrentSetSensors(t *testing.T) {
	// From [SensorA SensorB], either ordering of DropSensors([SensorA]) and
	// SetSensors([SensorC]) ends with [SensorC]: dropping first leaves
	// [SensorB] which the set replaces, setting first makes the drop a
	// no-op. A stale remainder overwriting the new selection would surface
	// as [SensorB].
	for i := 0; i < 5000; i++ {
		e, _ := newTestEngine(t)
		e.SetSensors([]string{"SensorA", "SensorB"})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.DropSensors([]string{"SensorA"})
		}()
		go func() {
			defer wg.Done()
			e.SetSensors([]string{"SensorC"})
		}()
		wg.Wait()

		if got := e.Selection(); len(got) != 1 || got[0] != "SensorC" {
			t.Fatalf("Selection = %v after concurrent drop/set, want [SensorC]", got)
		}
	}
}
