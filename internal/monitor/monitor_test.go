package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/lanscope/internal/errors"
	"github.com/anstrom/lanscope/internal/scanning"
)

// scriptedScanner returns one live set per call, repeating the last.
type scriptedScanner struct {
	mu    sync.Mutex
	runs  [][]string
	calls int
	reqs  []scanning.ScanRequest
	err   error
	block chan struct{}
}

func (s *scriptedScanner) ScanNetwork(ctx context.Context, req scanning.ScanRequest) (*scanning.ScanResult, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	live := s.runs[min(s.calls, len(s.runs)-1)]
	s.calls++

	result := &scanning.ScanResult{Range: req.Key(), Hosts: []scanning.HostResult{}}
	for _, ip := range live {
		result.Hosts = append(result.Hosts, scanning.HostResult{IP: ip, Alive: true})
	}
	return result, nil
}

func request() scanning.ScanRequest {
	return scanning.ScanRequest{BaseIP: "192.168.1", StartRange: 1, EndRange: 10, Ports: []int{80}, TimeoutMS: 1000}
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(&scriptedScanner{}, request(), "every minute")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
}

func TestRunOnce_DiffsHostSets(t *testing.T) {
	scanner := &scriptedScanner{runs: [][]string{
		{"192.168.1.1", "192.168.1.2"},
		{"192.168.1.2", "192.168.1.5"},
		{"192.168.1.2", "192.168.1.5"},
	}}

	var mu sync.Mutex
	var reported []Change
	m, err := New(scanner, request(), "*/5 * * * *", WithChangeHandler(func(c []Change) {
		mu.Lock()
		reported = append(reported, c...)
		mu.Unlock()
	}))
	require.NoError(t, err)
	ctx := context.Background()

	changes, err := m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, changes, "first run is the baseline")

	changes, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, HostDown, changes[0].Type)
	assert.Equal(t, "192.168.1.1", changes[0].IP)
	assert.Nil(t, changes[0].Host)
	assert.Equal(t, HostUp, changes[1].Type)
	assert.Equal(t, "192.168.1.5", changes[1].IP)
	require.NotNil(t, changes[1].Host)
	assert.True(t, changes[1].Host.Alive)

	changes, err = m.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, changes)

	mu.Lock()
	assert.Len(t, reported, 2)
	mu.Unlock()

	stats := m.Stats()
	assert.Equal(t, 3, stats.Runs)
	assert.Equal(t, 2, stats.LiveNow)
	assert.True(t, stats.Baseline)
	assert.False(t, stats.LastRun.IsZero())

	for _, req := range scanner.reqs {
		assert.True(t, req.Fresh, "monitor runs bypass the range cache")
	}
}

func TestRunOnce_ScanInProgressIsSkipped(t *testing.T) {
	scanner := &scriptedScanner{err: errors.ErrScanInProgress()}
	m, err := New(scanner, request(), "* * * * *")
	require.NoError(t, err)

	_, err = m.RunOnce(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeScanInProgress))

	stats := m.Stats()
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Runs)
	assert.Zero(t, stats.Failed)
	assert.False(t, stats.Baseline)
}

func TestRunOnce_FailureCounted(t *testing.T) {
	scanner := &scriptedScanner{err: fmt.Errorf("provider gone")}
	m, err := New(scanner, request(), "* * * * *")
	require.NoError(t, err)

	_, err = m.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, m.Stats().Failed)
}

func TestRunOnce_OverlappingRunSkipped(t *testing.T) {
	scanner := &scriptedScanner{runs: [][]string{{"192.168.1.1"}}, block: make(chan struct{})}
	m, err := New(scanner, request(), "* * * * *")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.RunOnce(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.busy
	}, time.Second, time.Millisecond)

	_, err = m.RunOnce(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeScanInProgress))

	close(scanner.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, m.Stats().Skipped)
	assert.Equal(t, 1, m.Stats().Runs)
}

func TestStartStop(t *testing.T) {
	m, err := New(&scriptedScanner{runs: [][]string{{}}}, request(), "0 3 * * *")
	require.NoError(t, err)

	require.NoError(t, m.Start())
	assert.Error(t, m.Start(), "second start is rejected")
	assert.False(t, m.Stats().NextRun.IsZero())

	m.Stop()
	m.Stop()
	assert.True(t, m.Stats().NextRun.IsZero())
}

func TestDiff(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	hosts := func(ips ...string) []scanning.HostResult {
		out := make([]scanning.HostResult, len(ips))
		for i, ip := range ips {
			out[i] = scanning.HostResult{IP: ip}
		}
		return out
	}

	assert.Empty(t, diff(hosts("10.0.0.1"), hosts("10.0.0.1"), at))
	assert.Empty(t, diff(nil, nil, at))

	changes := diff(hosts("10.0.0.1", "10.0.0.3"), hosts("10.0.0.2", "10.0.0.4"), at)
	require.Len(t, changes, 4)
	assert.Equal(t, []ChangeType{HostDown, HostDown, HostUp, HostUp},
		[]ChangeType{changes[0].Type, changes[1].Type, changes[2].Type, changes[3].Type})
	assert.Equal(t, "10.0.0.4", changes[3].IP)
	assert.Equal(t, at, changes[0].At)
}
