package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// ScanFunc is one scan cycle: query eligibility, dispatch, persist.
type ScanFunc func(ctx context.Context) error

// Status is the operator-facing snapshot of one runtime.
type Status struct {
	Name              string     `json:"name"`
	Running           bool       `json:"running"`
	IntervalMs        int64      `json:"interval_ms"`
	NextCheckEstimate *time.Time `json:"next_check_estimate,omitempty"`
	LastScanAt        *time.Time `json:"last_scan_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
}

// Runtime owns the lifecycle of one scanner: an immediate scan on Start,
// then fixed-interval re-arming measured from scan completion. Re-arming
// from completion rather than from the previous fire means two cycles of
// the same scanner can never overlap, however long a cycle runs.
//
// One Runtime instance exists per scanner, constructed at process start and
// injected where it is needed; there is no package-level state.
type Runtime struct {
	name     string
	interval time.Duration
	scan     ScanFunc

	mu      sync.Mutex // guards the fields below
	running bool
	stopCh  chan struct{}

	scanMu sync.Mutex // serializes scan cycles (timer loop vs TriggerOnce)

	statusMu   sync.Mutex // guards the snapshot; never held across a scan
	lastScanAt *time.Time
	nextCheck  *time.Time
	lastError  string
}

func NewRuntime(name string, interval time.Duration, scan ScanFunc) *Runtime {
	return &Runtime{name: name, interval: interval, scan: scan}
}

// Start begins the scan loop: one immediate cycle, then one cycle per
// interval. Idempotent — calling Start on a running runtime is a no-op.
func (r *Runtime) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		log.Printf("scheduler[%s]: already running", r.name)
		return
	}
	r.running = true
	stopCh := make(chan struct{})
	r.stopCh = stopCh
	r.mu.Unlock()

	log.Printf("scheduler[%s]: started, interval %s", r.name, r.interval)
	go r.loop(stopCh)
}

// Stop halts the re-arming timer. An in-flight scan is allowed to finish;
// Stop does not wait for it.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopCh)
	r.stopCh = nil
	log.Printf("scheduler[%s]: stopped", r.name)
}

// TriggerOnce runs a single scan cycle outside the normal schedule. It is
// serialized with timer-driven cycles and does not move the timer's phase.
func (r *Runtime) TriggerOnce(ctx context.Context) error {
	return r.runScan(ctx)
}

// Status reports the runtime's current state. It reads the last completed
// snapshot and never waits on an in-flight scan.
func (r *Runtime) Status() Status {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()

	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	st := Status{
		Name:       r.name,
		Running:    running,
		IntervalMs: r.interval.Milliseconds(),
		LastError:  r.lastError,
	}
	if r.lastScanAt != nil {
		t := *r.lastScanAt
		st.LastScanAt = &t
	}
	if running && r.nextCheck != nil {
		t := *r.nextCheck
		st.NextCheckEstimate = &t
	}
	return st
}

func (r *Runtime) loop(stopCh chan struct{}) {
	for {
		if err := r.runScan(context.Background()); err != nil {
			log.Printf("scheduler[%s]: scan: %v", r.name, err)
		}
		select {
		case <-stopCh:
			return
		case <-time.After(r.interval):
		}
	}
}

func (r *Runtime) runScan(ctx context.Context) error {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	err := r.scan(ctx)

	now := time.Now().UTC()
	next := now.Add(r.interval)
	r.statusMu.Lock()
	r.lastScanAt = &now
	r.nextCheck = &next
	if err != nil {
		r.lastError = err.Error()
	} else {
		r.lastError = ""
	}
	r.statusMu.Unlock()
	return err
}
