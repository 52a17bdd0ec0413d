package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/rs/zerolog"
)

// Snapshotter provides the rows to mirror.
type Snapshotter interface {
	Snapshot() []domain.Transaction
}

// Mirror copies a ledger snapshot to one external target and describes what
// it wrote.
type Mirror interface {
	Mirror(ctx context.Context, rows []domain.Transaction) (string, error)
}

// MirrorFunc adapts a function to Mirror.
type MirrorFunc func(ctx context.Context, rows []domain.Transaction) (string, error)

func (f MirrorFunc) Mirror(ctx context.Context, rows []domain.Transaction) (string, error) {
	return f(ctx, rows)
}

// Runner executes mirror jobs against the registered targets.
type Runner struct {
	source  Snapshotter
	mu      sync.RWMutex
	mirrors map[Target]Mirror
	log     zerolog.Logger
}

// NewRunner creates a runner with no targets.
func NewRunner(source Snapshotter, log zerolog.Logger) *Runner {
	return &Runner{source: source, mirrors: make(map[Target]Mirror), log: log}
}

// Register enables target.
func (r *Runner) Register(target Target, m Mirror) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirrors[target] = m
}

// Enabled reports whether target has a mirror.
func (r *Runner) Enabled(target Target) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.mirrors[target]
	return ok
}

// EnabledTargets lists the registered targets in a stable order.
func (r *Runner) EnabledTargets() []Target {
	var out []Target
	for _, t := range Targets {
		if r.Enabled(t) {
			out = append(out, t)
		}
	}
	return out
}

// NewJob validates target and returns a pending job for it.
func (r *Runner) NewJob(target string) (*MirrorJob, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	if !r.Enabled(t) {
		return nil, domain.E(domain.KindValidation, "NewJob", "target %q is not configured", t)
	}
	return &MirrorJob{Target: t}, nil
}

// Handle is a JobHandler: it snapshots the ledger and hands the rows to the
// job's target.
func (r *Runner) Handle(ctx context.Context, job *MirrorJob) error {
	r.mu.RLock()
	m, ok := r.mirrors[job.Target]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("Handle: no mirror registered for target %q", job.Target)
	}

	rows := r.source.Snapshot()
	result, err := m.Mirror(ctx, rows)
	if err != nil {
		return fmt.Errorf("Handle: mirror to %s: %w", job.Target, err)
	}

	job.Rows = len(rows)
	job.Result = result
	r.log.Debug().Str("job_id", job.JobID).Str("target", string(job.Target)).Int("rows", len(rows)).Msg("Mirror finished")
	return nil
}
