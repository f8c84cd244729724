package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/devbay/internal/process"
	"github.com/mkarlsen/devbay/internal/scanner"
)

func newTestScheduler() *Scheduler {
	orch := scanner.NewOrchestrator(scanner.New(nil), nil, nil)
	return New(orch, process.NewSupervisor(nil), 8787, nil)
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Start("@every 1h", "@every 1h"))
	// Second start is a no-op.
	require.NoError(t, s.Start("@every 1h", "@every 1h"))

	s.Stop()
	// Stop is idempotent too.
	s.Stop()
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := newTestScheduler()
	assert.Error(t, s.Start("not a schedule", ""))
}

func TestSchedulerEmptySchedulesSkipped(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Start("", ""))
	s.Stop()
}

func TestRefreshScanCachesResult(t *testing.T) {
	s := newTestScheduler()

	reports, at := s.LastScan()
	assert.Nil(t, reports)
	assert.True(t, at.IsZero())

	s.refreshScan()

	reports, at = s.LastScan()
	require.NotNil(t, reports)
	assert.Len(t, reports, 1)
	assert.Equal(t, "127.0.0.1", reports[0].Host)
	assert.WithinDuration(t, time.Now(), at, 5*time.Second)
}

func TestCheckServerHealthNoServer(t *testing.T) {
	// No server in the slot; the check is a silent no-op.
	s := newTestScheduler()
	s.checkServerHealth()
}
