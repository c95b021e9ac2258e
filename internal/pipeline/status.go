package pipeline

import (
	"errors"
	"sync"
	"time"

	"github.com/couchcryptid/hydro-etl/internal/domain"
)

// RunStatus is a point-in-time view of a batch run, served on /status.
type RunStatus struct {
	RunID     string             `json:"run_id"`
	Kind      domain.ProductKind `json:"kind"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	Current   string             `json:"current,omitempty"`
	Done      int                `json:"done"`
	Failed    int                `json:"failed"`
	Finished  bool               `json:"finished"`
}

type statusTracker struct {
	mu sync.Mutex
	s  RunStatus
}

func newStatusTracker(runID string, kind domain.ProductKind) *statusTracker {
	return &statusTracker{s: RunStatus{RunID: runID, Kind: kind}}
}

func (t *statusTracker) start(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.StartedAt = &now
	t.s.Finished = false
}

func (t *statusTracker) working(item string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Current = item
}

func (t *statusTracker) succeeded(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Done += n
}

func (t *statusTracker) failed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Failed++
}

func (t *statusTracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.Current = ""
	t.s.Finished = true
}

func (t *statusTracker) snapshot() RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.s
	if s.StartedAt != nil {
		started := *s.StartedAt
		s.StartedAt = &started
	}
	return s
}

// ready returns nil once at least one item has been written.
func (t *statusTracker) ready() error {
	if t.snapshot().Done == 0 {
		return errors.New("no output written yet")
	}
	return nil
}
