package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeStore is a Pinger whose failure state tests flip at will. The
// result is wrapped in a struct because atomic.Value cannot hold a
// nil interface.
type pingResult struct{ err error }

type fakeStore struct {
	res atomic.Value // pingResult
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if v := f.res.Load(); v != nil {
		return v.(pingResult).err
	}
	return nil
}

func (f *fakeStore) setErr(err error) {
	f.res.Store(pingResult{err: err})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

func TestStartProbesSynchronously(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32
	m := NewMonitor(Config{
		Backend:  "bolt",
		Store:    &fakeStore{},
		Interval: 5 * time.Millisecond,
		OnChange: func(ready bool, err error) { changes.Add(1) },
	})
	m.Start(ctx)
	defer m.Close()

	// The initial probe happens before Start returns.
	if !m.Ready() {
		t.Fatal("expected Ready immediately after Start against a healthy store")
	}
	if changes.Load() != 1 {
		t.Fatalf("expected exactly one OnChange for the initial probe, got %d", changes.Load())
	}
}

func TestTransitionsFireOnChangeOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &fakeStore{}
	var downs, ups atomic.Int32
	m := NewMonitor(Config{
		Backend:  "redis",
		Store:    fs,
		Interval: 2 * time.Millisecond,
		OnChange: func(ready bool, err error) {
			if ready {
				ups.Add(1)
			} else {
				downs.Add(1)
			}
		},
	})
	m.Start(ctx)
	defer m.Close()

	waitFor(t, 2*time.Second, m.Ready, "initially ready")

	errDown := errors.New("connection refused")
	fs.setErr(errDown)
	waitFor(t, 2*time.Second, func() bool { return !m.Ready() }, "became unready")
	if m.LastError() == nil {
		t.Fatal("expected LastError to report the probe failure")
	}

	// Stay down a few more polls: no extra OnChange firings.
	time.Sleep(20 * time.Millisecond)
	if downs.Load() != 1 {
		t.Fatalf("OnChange(down) fired %d times for one outage", downs.Load())
	}

	fs.setErr(nil)
	waitFor(t, 2*time.Second, m.Ready, "recovered")
	if ups.Load() != 2 {
		t.Fatalf("expected OnChange(up) for startup and recovery, got %d", ups.Load())
	}
	if m.LastError() != nil {
		t.Fatalf("expected LastError nil after recovery, got %v", m.LastError())
	}
}

func TestHandlerReportsStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &fakeStore{}
	m := NewMonitor(Config{Backend: "bolt", Store: fs, Interval: 2 * time.Millisecond})
	m.Start(ctx)
	defer m.Close()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200 while ready", rec.Code)
	}
	var s Status
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatal(err)
	}
	if s.Backend != "bolt" || !s.Ready || s.Build["version"] == "" {
		t.Fatalf("unexpected payload: %+v", s)
	}

	fs.setErr(errors.New("gone"))
	waitFor(t, 2*time.Second, func() bool { return !m.Ready() }, "became unready")

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 503 {
		t.Fatalf("status = %d, want 503 while down", rec.Code)
	}
}

func TestContextCancellationStopsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	m := NewMonitor(Config{Backend: "bolt", Store: &fakeStore{}, Interval: 2 * time.Millisecond})
	m.Start(ctx)

	cancel()

	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after context cancellation")
	}
}

func TestCloseIdempotentAndNoopWithoutStart(t *testing.T) {
	unstarted := NewMonitor(Config{Backend: "bolt", Store: &fakeStore{}})
	unstarted.Close() // must not hang

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMonitor(Config{Backend: "bolt", Store: &fakeStore{}, Interval: 2 * time.Millisecond})
	m.Start(ctx)
	m.Close()
	m.Close()
}

func TestNewMonitorPanicsOnEmptyBackend(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty Backend")
		}
	}()
	NewMonitor(Config{Store: &fakeStore{}})
}

func TestNewMonitorPanicsOnNilStore(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil Store")
		}
	}()
	NewMonitor(Config{Backend: "bolt"})
}
