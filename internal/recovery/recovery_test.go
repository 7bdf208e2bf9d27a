package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabvault/tabvault/internal/logging"
	"github.com/tabvault/tabvault/internal/store"
	"github.com/tabvault/tabvault/internal/types"
)

type fakeBackupper struct {
	calls chan struct{}
	err   error
}

func newFakeBackupper() *fakeBackupper {
	return &fakeBackupper{calls: make(chan struct{}, 16)}
}

func (b *fakeBackupper) CreateEmergency(context.Context) (*types.Session, error) {
	b.calls <- struct{}{}
	if b.err != nil {
		return nil, b.err
	}
	return &types.Session{SessionMetadata: types.SessionMetadata{ID: "sess_fake", TabCount: 1}}, nil
}

func newMachine(t *testing.T, backup Backupper, flag Flag) (*Machine, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := NewMachine(st, backup, flag, logging.NewNop())
	m.delay = 10 * time.Millisecond
	t.Cleanup(func() { m.Reschedule(0) })
	return m, st
}

func TestInitializeDetectsColdStart(t *testing.T) {
	ctx := context.Background()
	flag := NewMemoryFlag()
	m, _ := newMachine(t, newFakeBackupper(), flag)

	require.NoError(t, m.Initialize(ctx))

	detected, ts, err := m.WasCrashDetected(ctx)
	require.NoError(t, err)
	assert.True(t, detected)
	require.NotNil(t, ts)
	assert.WithinDuration(t, time.Now(), *ts, time.Minute)

	running, err := flag.Running(ctx)
	require.NoError(t, err)
	assert.True(t, running)
}

func TestInitializeCleanWhenFlagSet(t *testing.T) {
	ctx := context.Background()
	flag := NewMemoryFlag()
	require.NoError(t, flag.SetRunning(ctx, true))
	m, _ := newMachine(t, newFakeBackupper(), flag)

	require.NoError(t, m.Initialize(ctx))

	detected, _, err := m.WasCrashDetected(ctx)
	require.NoError(t, err)
	assert.False(t, detected)
}

func TestClearCrashDetection(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine(t, newFakeBackupper(), NewMemoryFlag())
	require.NoError(t, m.Initialize(ctx))

	require.NoError(t, m.ClearCrashDetection(ctx))

	detected, ts, err := m.WasCrashDetected(ctx)
	require.NoError(t, err)
	assert.False(t, detected)
	assert.Nil(t, ts)
}

func TestScheduledBackupFires(t *testing.T) {
	backup := newFakeBackupper()
	m, _ := newMachine(t, backup, NewMemoryFlag())

	m.Reschedule(60)

	select {
	case <-backup.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("backup timer never fired")
	}
}

func TestRescheduleZeroDisables(t *testing.T) {
	backup := newFakeBackupper()
	m, _ := newMachine(t, backup, NewMemoryFlag())

	m.Reschedule(60)
	m.Reschedule(0)

	// Drain anything the first schedule managed to fire, then expect silence.
	time.Sleep(50 * time.Millisecond)
	for len(backup.calls) > 0 {
		<-backup.calls
	}
	select {
	case <-backup.calls:
		t.Fatal("backup fired after timer was disabled")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBackupFailureDoesNotStopScheduler(t *testing.T) {
	backup := newFakeBackupper()
	backup.err = errors.New("capture unavailable")
	m, _ := newMachine(t, backup, NewMemoryFlag())
	m.delay = time.Millisecond

	m.PerformEmergencyBackup(context.Background())

	// A second invocation still runs; the failure above was swallowed.
	m.PerformEmergencyBackup(context.Background())
	assert.Len(t, backup.calls, 2)
}

func TestShutdownTakesFinalBackupAndClearsFlag(t *testing.T) {
	ctx := context.Background()
	flag := NewMemoryFlag()
	backup := newFakeBackupper()
	m, _ := newMachine(t, backup, flag)
	require.NoError(t, m.Initialize(ctx))

	m.Shutdown(ctx)

	select {
	case <-backup.calls:
	case <-time.After(time.Second):
		t.Fatal("no final backup on shutdown")
	}
	running, err := flag.Running(ctx)
	require.NoError(t, err)
	assert.False(t, running)
}
