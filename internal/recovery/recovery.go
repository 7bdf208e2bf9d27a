// Package recovery tracks process liveness across restarts and schedules
// recurring emergency backups. A fresh start that does not find the volatile
// running flag is treated as a potential crash: the previous run had no chance
// to clear it cleanly.
package recovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
)

// initialDelay is how long after (re)scheduling the first backup fires.
const initialDelay = 30 * time.Second

// Flag is the volatile running marker. It must NOT survive true process
// termination; that loss is what crash detection keys on. The store's durable
// crash marker is a separate concern.
type Flag interface {
	Running(ctx context.Context) (bool, error)
	SetRunning(ctx context.Context, running bool) error
}

// MemoryFlag is the production Flag: process-scoped, so any termination
// (clean or not) drops it.
type MemoryFlag struct {
	mu      sync.Mutex
	running bool
}

func NewMemoryFlag() *MemoryFlag { return &MemoryFlag{} }

func (f *MemoryFlag) Running(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, nil
}

func (f *MemoryFlag) SetRunning(_ context.Context, running bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = running
	return nil
}

// Backupper captures an emergency snapshot. Implemented by the session
// manager's CreateEmergency.
type Backupper interface {
	CreateEmergency(ctx context.Context) (*types.Session, error)
}

// Machine is the crash recovery state machine. It owns the backup timer;
// Initialize starts it and Shutdown stops it.
type Machine struct {
	store  *store.Store
	backup Backupper
	flag   Flag
	logger *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc

	// initialDelay in production; tests shorten it
	delay time.Duration
}

func NewMachine(st *store.Store, backup Backupper, flag Flag, logger *logging.Logger) *Machine {
	return &Machine{
		store:  st,
		backup: backup,
		flag:   flag,
		logger: logger,
		delay:  initialDelay,
	}
}

// Initialize runs the startup transition: detect a potential crash from the
// volatile flag, persist the durable marker if so, mark this run as live, and
// (re)schedule the backup timer from settings.
func (m *Machine) Initialize(ctx context.Context) error {
	running, err := m.flag.Running(ctx)
	if err != nil {
		return err
	}
	if !running {
		m.logger.Warn("previous run did not shut down cleanly")
		if err := m.store.SetCrashMarker(ctx, time.Now()); err != nil {
			m.logger.Error("failed to persist crash marker", zap.Error(err))
		}
	}
	if err := m.flag.SetRunning(ctx, true); err != nil {
		return err
	}

	settings, err := m.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	m.Reschedule(settings.BackupIntervalMinutes)
	return nil
}

// Reschedule replaces the recurring backup timer. Any prior schedule is
// cleared first; an interval of zero (or less) disables backups entirely.
func (m *Machine) Reschedule(minutes int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if minutes <= 0 {
		m.logger.Info("automatic backups disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	interval := time.Duration(minutes) * time.Minute
	go m.run(ctx, interval)

	m.logger.Info("backup timer scheduled", zap.Duration("interval", interval))
}

func (m *Machine) run(ctx context.Context, interval time.Duration) {
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.PerformEmergencyBackup(ctx)
			timer.Reset(interval)
		}
	}
}

// PerformEmergencyBackup takes one backup. Failures are logged, never
// propagated: a failed backup must not take the scheduler down with it.
func (m *Machine) PerformEmergencyBackup(ctx context.Context) {
	session, err := m.backup.CreateEmergency(ctx)
	if err != nil {
		m.logger.Warn("emergency backup failed", zap.Error(err))
		return
	}
	m.logger.Debug("emergency backup complete",
		zap.String("session_id", session.ID),
		zap.Int("tabs", session.TabCount),
	)
}

// WasCrashDetected reports whether the durable crash marker is set, and when
// the crash was detected.
func (m *Machine) WasCrashDetected(ctx context.Context) (bool, *time.Time, error) {
	ts, err := m.store.GetCrashMarker(ctx)
	if err != nil {
		return false, nil, err
	}
	return ts != nil, ts, nil
}

// ClearCrashDetection acknowledges the crash and clears the durable marker.
func (m *Machine) ClearCrashDetection(ctx context.Context) error {
	return m.store.ClearCrashMarker(ctx)
}

// Shutdown is the clean exit path: stop the timer, take one final backup,
// then clear the running flag. Best effort throughout; termination is not
// always interceptable and a partial shutdown must still return.
func (m *Machine) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()

	m.PerformEmergencyBackup(ctx)
	if err := m.flag.SetRunning(ctx, false); err != nil {
		m.logger.Warn("failed to clear running flag", zap.Error(err))
	}
	m.logger.Info("recovery machine stopped")
}
