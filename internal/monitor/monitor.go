// Package monitor rescans a range on a cron schedule and reports hosts that
// came up or went down between runs.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/lanscope/internal/errors"
	"github.com/anstrom/lanscope/internal/logging"
	"github.com/anstrom/lanscope/internal/scanning"
)

// ChangeType is the direction of a host state change.
type ChangeType string

// Change types.
const (
	HostUp   ChangeType = "host-up"
	HostDown ChangeType = "host-down"
)

// Change reports one host appearing or disappearing.
type Change struct {
	Type ChangeType           `json:"type"`
	IP   string               `json:"ip"`
	Host *scanning.HostResult `json:"host,omitempty"`
	At   time.Time            `json:"at"`
}

// Scanner runs one range scan.
type Scanner interface {
	ScanNetwork(ctx context.Context, req scanning.ScanRequest) (*scanning.ScanResult, error)
}

// ChangeHandler receives the changes of one run.
type ChangeHandler func([]Change)

// Stats counts monitor runs.
type Stats struct {
	Runs     int       `json:"runs"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	LastRun  time.Time `json:"lastRun"`
	NextRun  time.Time `json:"nextRun"`
	LiveNow  int       `json:"liveNow"`
	Baseline bool      `json:"baseline"`
}

// Monitor manages one scheduled rescan.
type Monitor struct {
	scanner  Scanner
	req      scanning.ScanRequest
	schedule string
	onChange ChangeHandler
	logger   *logging.Logger
	now      func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	running  bool
	busy     bool
	previous []scanning.HostResult
	baseline bool
	stats    Stats
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithChangeHandler sets the callback invoked after a run with changes.
func WithChangeHandler(h ChangeHandler) Option {
	return func(m *Monitor) { m.onChange = h }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// New creates a monitor for req on a standard five-field cron schedule.
func New(scanner Scanner, req scanning.ScanRequest, schedule string, opts ...Option) (*Monitor, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, errors.NewConfigFieldError(errors.CodeConfiguration,
			fmt.Sprintf("Invalid cron expression: %v", err), "monitor.schedule", schedule)
	}

	req.Fresh = true
	m := &Monitor{
		scanner:  scanner,
		req:      req,
		schedule: schedule,
		now:      time.Now,
		cron:     cron.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.Default()
	}
	m.logger = m.logger.WithComponent("monitor").WithTarget(req.Key().String())
	return m, nil
}

// Start schedules the rescans.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("monitor is already running")
	}

	id, err := m.cron.AddFunc(m.schedule, m.tick)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	m.entryID = id
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.cron.Start()
	m.running = true

	m.logger.Info("Monitor started", "schedule", m.schedule)
	return nil
}

// Stop stops scheduling and cancels a run in progress.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.cron.Remove(m.entryID)
	m.mu.Unlock()

	<-m.cron.Stop().Done()
	m.logger.Info("Monitor stopped")
}

// Stats returns run counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.LiveNow = len(m.previous)
	s.Baseline = m.baseline
	if m.running {
		s.NextRun = m.cron.Entry(m.entryID).Next
	}
	return s
}

func (m *Monitor) tick() {
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()

	_, err := m.RunOnce(ctx)
	switch {
	case err == nil, errors.IsCode(err, errors.CodeScanInProgress):
	case errors.IsFatal(err):
		m.logger.WithError(err).Error("Monitor run rejected")
	default:
		m.logger.WithError(err).Warn("Monitor run failed")
	}
}

// RunOnce performs one rescan and returns the changes since the previous
// run. The first run only records a baseline. A run that collides with a
// scan already in progress is skipped and returns the scanner's error.
func (m *Monitor) RunOnce(ctx context.Context) ([]Change, error) {
	m.mu.Lock()
	if m.busy {
		m.stats.Skipped++
		m.mu.Unlock()
		m.logger.Info("Previous monitor run still active, skipping")
		return nil, errors.ErrScanInProgress()
	}
	m.busy = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.busy = false
		m.mu.Unlock()
	}()

	result, err := m.scanner.ScanNetwork(ctx, m.req)
	if err != nil {
		skipped := errors.IsCode(err, errors.CodeScanInProgress)
		m.mu.Lock()
		if skipped {
			m.stats.Skipped++
		} else {
			m.stats.Failed++
		}
		m.mu.Unlock()
		if skipped {
			m.logger.Info("Scan in progress, skipping monitor run")
		}
		return nil, err
	}

	m.mu.Lock()
	m.stats.Runs++
	m.stats.LastRun = m.now()
	if result.Cancelled {
		m.mu.Unlock()
		m.logger.Info("Monitor run cancelled, keeping previous host set")
		return nil, nil
	}

	var changes []Change
	if m.baseline {
		changes = diff(m.previous, result.Hosts, m.stats.LastRun)
	}
	m.previous = result.Hosts
	m.baseline = true
	m.mu.Unlock()

	for _, c := range changes {
		m.logger.Info("Host state changed", "change", c.Type, "ip", c.IP)
	}
	if len(changes) > 0 && m.onChange != nil {
		m.onChange(changes)
	}
	return changes, nil
}

// diff lists hosts that went down, then hosts that came up, each in the
// order of the scan results they come from.
func diff(before, after []scanning.HostResult, at time.Time) []Change {
	was := make(map[string]bool, len(before))
	for _, h := range before {
		was[h.IP] = true
	}
	is := make(map[string]bool, len(after))
	for _, h := range after {
		is[h.IP] = true
	}

	var changes []Change
	for _, h := range before {
		if !is[h.IP] {
			changes = append(changes, Change{Type: HostDown, IP: h.IP, At: at})
		}
	}
	for i := range after {
		if !was[after[i].IP] {
			host := after[i]
			changes = append(changes, Change{Type: HostUp, IP: host.IP, Host: &host, At: at})
		}
	}
	return changes
}
