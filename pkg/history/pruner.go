package history

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/logsweep/logsweep/pkg/plog"
)

// Pruner trims old rows from the history store on a cron schedule.
type Pruner struct {
	store     *Store
	cron      *cron.Cron
	retention time.Duration
}

// NewPruner validates the cron schedule and prepares the pruner. A
// retention of zero or fewer days disables pruning entirely.
func NewPruner(store *Store, schedule string, retentionDays int) (*Pruner, error) {
	p := &Pruner{
		store:     store,
		cron:      cron.New(),
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
	if _, err := p.cron.AddFunc(schedule, p.pruneOnce); err != nil {
		return nil, fmt.Errorf("invalid history prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start begins the schedule. It returns immediately.
func (p *Pruner) Start() {
	if p.retention <= 0 {
		plog.Debug("History pruning disabled, retention is unlimited")
		return
	}
	p.cron.Start()
}

// Stop halts the schedule and waits for an in-flight prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Pruner) pruneOnce() {
	if p.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-p.retention)
	removed, err := p.store.Prune(context.Background(), cutoff)
	if err != nil {
		plog.Warn("History pruning failed", "error", err)
		return
	}
	if removed > 0 {
		plog.Info("Pruned run history", "removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	}
}
