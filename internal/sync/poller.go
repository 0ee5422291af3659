package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"go.uber.org/zap"
)

// ErrSyncInProgress is returned by RunNow while another run is active.
var ErrSyncInProgress = errors.New("sync already in progress")

// runTimeout is the maximum time allowed for a single run.
const runTimeout = 10 * time.Minute

// SyncState represents the current state of the sync pipeline.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the outcome of the most recent run.
type SyncStatus struct {
	State      SyncState
	LastReport *Report
	LastSync   time.Time
	Error      error
	Runs       int
}

// Runner executes one sync run.
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Poller runs syncs on a fixed interval and on demand, never more than
// one at a time.
type Poller struct {
	runner   Runner
	interval time.Duration
	log      *zap.Logger

	runMu     gosync.Mutex
	mu        gosync.Mutex
	status    SyncStatus
	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
}

// NewPoller creates a poller for r. An interval of zero disables
// scheduled runs; Trigger and RunNow still work.
func NewPoller(r Runner, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		runner:    r,
		interval:  interval,
		log:       log.Named("poller"),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start launches the background loop. It is a no-op if already started.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})

	go p.loop(p.stopCh, p.doneCh)
	p.log.Info("poller started", zap.Duration("interval", p.interval))
}

// Stop halts the background loop and waits for an in-flight scheduled
// run to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	<-done
	p.log.Info("poller stopped")
}

// Trigger requests a background run without waiting for it. Requests
// made while one is already pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// RunNow runs a sync synchronously, bounded by runTimeout. It returns
// ErrSyncInProgress if a run is already active.
func (p *Poller) RunNow(ctx context.Context) (Report, error) {
	if !p.runMu.TryLock() {
		return Report{}, ErrSyncInProgress
	}
	defer p.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	p.setRunning()
	report, err := p.runner.Run(ctx)
	p.setResult(report, err)

	return report, err
}

// Status returns a snapshot of the latest sync outcome.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stopCh:
			return
		case <-tick:
			p.runScheduled()
		case <-p.triggerCh:
			p.runScheduled()
		}
	}
}

func (p *Poller) runScheduled() {
	if _, err := p.RunNow(context.Background()); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			p.log.Debug("skipping scheduled sync, one is already running")
			return
		}
		p.log.Warn("scheduled sync failed", zap.Error(err))
	}
}

func (p *Poller) setRunning() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = SyncRunning
}

func (p *Poller) setResult(report Report, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Runs++
	p.status.LastReport = &report
	p.status.Error = err
	if err != nil {
		p.status.State = SyncError
		return
	}
	p.status.State = SyncIdle
	p.status.LastSync = report.FinishedAt
}
