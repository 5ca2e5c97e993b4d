package sim

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemberState tracks a batch member's progress through its simulation run.
type MemberState int

const (
	Pending MemberState = iota
	Running
	Completed
)

// Member is one simulation run in a batch. Each member writes a disjoint set
// of output files, so members share no state while running.
type Member struct {
	// ID identifies the member; for ensemble runs it is the forcing year.
	ID   int
	Spec RunSpec

	state MemberState
	err   error
	cmd   *exec.Cmd
}

// State returns the member's current state. Safe to call only between Batch
// poll cycles or after Run returns.
func (m *Member) State() MemberState { return m.state }

// Err returns the member's run error, if any. Valid once the member is
// Completed.
func (m *Member) Err() error { return m.err }

// Batch runs a set of simulation members with bounded concurrency. Member
// completion is observed by polling on a fixed interval rather than blocking
// on each run in turn.
type Batch struct {
	members       []*Member
	maxConcurrent int
	pollInterval  time.Duration
	log           *zap.SugaredLogger

	mu sync.Mutex
}

// NewBatch returns a batch over the given members.
func NewBatch(members []*Member, maxConcurrent int, pollInterval time.Duration, log *zap.SugaredLogger) *Batch {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Batch{
		members:       members,
		maxConcurrent: maxConcurrent,
		pollInterval:  pollInterval,
		log:           log,
	}
}

// Run starts members as slots free up and polls until all have completed. A
// member that exits non-zero is marked failed and its error retained, but the
// rest of the batch keeps running; the caller decides what a partial batch
// means. Run itself fails only when a member cannot be started at all or the
// context is cancelled.
func (b *Batch) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	running := 0
	completed := 0
	for completed < len(b.members) {
		for running < b.maxConcurrent {
			member := b.nextPending()
			if member == nil {
				break
			}
			if err := b.start(member); err != nil {
				return err
			}
			running++
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		finished := b.reapCompleted()
		running -= finished
		completed += finished
		b.log.Debugf("%d of %d batch runs completed", completed, len(b.members))
	}
	return nil
}

func (b *Batch) nextPending() *Member {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, member := range b.members {
		if member.state == Pending {
			return member
		}
	}
	return nil
}

func (b *Batch) start(member *Member) error {
	capture, err := os.Create(member.Spec.CaptureFile)
	if err != nil {
		return err
	}
	cmd := exec.Command(member.Spec.Executable, member.Spec.args()...)
	cmd.Stdout = capture
	cmd.Stderr = capture
	if err := cmd.Start(); err != nil {
		capture.Close()
		return err
	}
	b.mu.Lock()
	member.state = Running
	member.cmd = cmd
	b.mu.Unlock()
	b.log.Infof(
		"batch run %d with %s started at %s",
		member.ID, member.Spec.Infile, time.Now().Format("2006-01-02 15:04:05"))

	go func() {
		err := cmd.Wait()
		capture.Close()
		b.mu.Lock()
		member.state = Completed
		member.err = err
		b.mu.Unlock()
	}()
	return nil
}

// reapCompleted counts members that finished since the previous poll, logging
// each completion once.
func (b *Batch) reapCompleted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	finished := 0
	for _, member := range b.members {
		if member.state != Completed || member.cmd == nil {
			continue
		}
		member.cmd = nil
		finished++
		if member.err != nil {
			b.log.Errorf(
				"batch run %d with %s failed: %v; see %s",
				member.ID, member.Spec.Infile, member.err, member.Spec.CaptureFile)
			continue
		}
		b.log.Infof(
			"batch run %d with %s finished at %s",
			member.ID, member.Spec.Infile, time.Now().Format("2006-01-02 15:04:05"))
	}
	return finished
}
