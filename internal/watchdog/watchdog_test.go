package watchdog

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlashq/atlas/internal/watchdog/config"
	"github.com/atlashq/atlas/internal/watchdog/types"
	"github.com/atlashq/atlas/pkg/logging"
)

type fakeProc struct {
	info      ProcessInfo
	cpu       float64
	memMB     float64
	conns     int
	closeWait int
	running   bool
	// stubborn processes ignore SIGTERM and only die on SIGKILL
	stubborn bool
}

type fakeInspector struct {
	procs      map[int32]*fakeProc
	terminated []int32
	killed     []int32
}

func newFakeInspector() *fakeInspector {
	return &fakeInspector{procs: map[int32]*fakeProc{}}
}

func (f *fakeInspector) add(pid int32, cmdline string, runtime time.Duration) *fakeProc {
	p := &fakeProc{
		info: ProcessInfo{
			PID:       pid,
			Cmdline:   cmdline,
			StartTime: time.Now().UTC().Add(-runtime),
		},
		running: true,
	}
	f.procs[pid] = p
	return p
}

func (f *fakeInspector) ListProcesses() ([]ProcessInfo, error) {
	var infos []ProcessInfo
	for _, p := range f.procs {
		if p.running {
			infos = append(infos, p.info)
		}
	}
	return infos, nil
}

func (f *fakeInspector) get(pid int32) (*fakeProc, error) {
	p, ok := f.procs[pid]
	if !ok {
		return nil, fmt.Errorf("no such process %d", pid)
	}
	return p, nil
}

func (f *fakeInspector) CPUPercent(pid int32) (float64, error) {
	p, err := f.get(pid)
	if err != nil {
		return 0, err
	}
	return p.cpu, nil
}

func (f *fakeInspector) MemoryMB(pid int32) (float64, error) {
	p, err := f.get(pid)
	if err != nil {
		return 0, err
	}
	return p.memMB, nil
}

func (f *fakeInspector) ConnectionCounts(pid int32) (int, int, error) {
	p, err := f.get(pid)
	if err != nil {
		return 0, 0, err
	}
	return p.conns, p.closeWait, nil
}

func (f *fakeInspector) Terminate(pid int32) error {
	p, err := f.get(pid)
	if err != nil {
		return err
	}
	f.terminated = append(f.terminated, pid)
	if !p.stubborn {
		p.running = false
	}
	return nil
}

func (f *fakeInspector) Kill(pid int32) error {
	p, err := f.get(pid)
	if err != nil {
		return err
	}
	f.killed = append(f.killed, pid)
	p.running = false
	return nil
}

func (f *fakeInspector) IsRunning(pid int32) (bool, error) {
	p, ok := f.procs[pid]
	if !ok {
		return false, nil
	}
	return p.running, nil
}

func newTestWatchdog(t *testing.T, configs map[string]types.ProcessConfig, inspector ProcessInspector) *Watchdog {
	t.Helper()
	state := config.NewStateStore(filepath.Join(t.TempDir(), "watchdog_state.json"))
	wd, err := New(configs, inspector, state, 100*time.Millisecond, logging.NewNoOpLogger())
	require.NoError(t, err)
	return wd
}

func scraperConfig(maxRuntime float64) types.ProcessConfig {
	return types.ProcessConfig{
		Pattern:           `python.*scrape`,
		MaxRuntimeMinutes: maxRuntime,
		MaxMemoryMB:       1024,
	}
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	configs := map[string]types.ProcessConfig{
		"bad": {Pattern: `python.*(`},
	}
	_, err := New(configs, newFakeInspector(), config.NewStateStore(filepath.Join(t.TempDir(), "s.json")), time.Second, logging.NewNoOpLogger())
	assert.Error(t, err)
}

func TestCheckProcessesKillsOnRuntimeExceeded(t *testing.T) {
	inspector := newFakeInspector()
	inspector.add(100, "python scrape_feeds.py", 3*time.Hour)

	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": scraperConfig(120)}, inspector)

	anomalous, checked, err := wd.CheckProcesses()
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	require.Len(t, anomalous, 1)
	assert.True(t, anomalous[0].ShouldKill())
	assert.Contains(t, anomalous[0].Anomalies[0], "KILL:")
	assert.Contains(t, anomalous[0].Anomalies[0], "runtime")
}

func TestCheckProcessesIgnoresUnmatchedCmdlines(t *testing.T) {
	inspector := newFakeInspector()
	inspector.add(100, "nginx -g daemon off", 10*time.Hour)

	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": scraperConfig(120)}, inspector)

	anomalous, checked, err := wd.CheckProcesses()
	require.NoError(t, err)
	assert.Equal(t, 0, checked)
	assert.Empty(t, anomalous)
}

func TestZeroIndicatorsAreNeutral(t *testing.T) {
	// 8 minutes in with no configured indicators: score must sit at 0.5
	// and none of the progress rules may fire.
	inspector := newFakeInspector()
	inspector.add(100, "python scrape_feeds.py", 8*time.Minute)

	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": scraperConfig(120)}, inspector)

	anomalous, checked, err := wd.CheckProcesses()
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Empty(t, anomalous)
}

func TestStalledProcessIsKilled(t *testing.T) {
	dir := t.TempDir()
	inspector := newFakeInspector()
	inspector.add(100, "python scrape_feeds.py", 8*time.Minute)

	cfg := scraperConfig(120)
	cfg.ProgressIndicators = []types.ProgressIndicator{
		{Kind: types.IndicatorFileGlob, FileGlob: &types.FileGlobIndicator{Directory: dir, Pattern: "*.json"}},
	}
	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": cfg}, inspector)

	anomalous, _, err := wd.CheckProcesses()
	require.NoError(t, err)
	require.Len(t, anomalous, 1)
	assert.Equal(t, 0.0, anomalous[0].ProgressScore)
	assert.True(t, anomalous[0].ShouldKill())
	assert.Contains(t, anomalous[0].Anomalies[0], "stalled")
}

func TestCloseWaitConnectionsTriggerKill(t *testing.T) {
	inspector := newFakeInspector()
	proc := inspector.add(100, "python scrape_feeds.py", time.Minute)
	proc.conns = 10
	proc.closeWait = 5

	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": scraperConfig(120)}, inspector)

	anomalous, _, err := wd.CheckProcesses()
	require.NoError(t, err)
	require.Len(t, anomalous, 1)
	assert.Contains(t, anomalous[0].Anomalies[0], "CLOSE_WAIT")
	assert.True(t, anomalous[0].ShouldKill())
}

func TestHighCPUAfterWarmupTriggersKill(t *testing.T) {
	inspector := newFakeInspector()
	proc := inspector.add(100, "python scrape_feeds.py", 6*time.Minute)
	proc.cpu = 99

	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": scraperConfig(120)}, inspector)

	anomalous, _, err := wd.CheckProcesses()
	require.NoError(t, err)
	require.Len(t, anomalous, 1)
	assert.Contains(t, anomalous[0].Anomalies[0], "infinite loop")
}

func TestMemoryCeilingWarnsWithoutKilling(t *testing.T) {
	inspector := newFakeInspector()
	proc := inspector.add(100, "python scrape_feeds.py", time.Minute)
	proc.memMB = 2048

	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": scraperConfig(120)}, inspector)

	anomalous, _, err := wd.CheckProcesses()
	require.NoError(t, err)
	require.Len(t, anomalous, 1)
	assert.False(t, anomalous[0].ShouldKill())
	assert.Contains(t, anomalous[0].Anomalies[0], "WARNING:")

	actions := wd.HandleAnomalies(anomalous)
	assert.Empty(t, actions)
	assert.Empty(t, inspector.terminated)
}

func TestHandleAnomaliesGracefulKill(t *testing.T) {
	inspector := newFakeInspector()
	inspector.add(100, "python scrape_feeds.py", 3*time.Hour)

	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": scraperConfig(120)}, inspector)

	anomalous, _, err := wd.CheckProcesses()
	require.NoError(t, err)
	actions := wd.HandleAnomalies(anomalous)

	require.Len(t, actions, 1)
	assert.Equal(t, "kill", actions[0].Action)
	assert.True(t, actions[0].Success)
	assert.Equal(t, []int32{100}, inspector.terminated)
	assert.Empty(t, inspector.killed)
}

func TestHandleAnomaliesEscalatesToSigkill(t *testing.T) {
	inspector := newFakeInspector()
	proc := inspector.add(100, "python scrape_feeds.py", 3*time.Hour)
	proc.stubborn = true

	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": scraperConfig(120)}, inspector)

	anomalous, _, err := wd.CheckProcesses()
	require.NoError(t, err)
	actions := wd.HandleAnomalies(anomalous)

	require.Len(t, actions, 1)
	assert.True(t, actions[0].Success)
	assert.Equal(t, []int32{100}, inspector.terminated)
	assert.Equal(t, []int32{100}, inspector.killed)
}

func TestRestartAfterKill(t *testing.T) {
	inspector := newFakeInspector()
	inspector.add(100, "python scrape_feeds.py", 3*time.Hour)

	cfg := scraperConfig(120)
	cfg.RestartCommand = "true"
	cfg.MaxRestarts = 3
	statePath := filepath.Join(t.TempDir(), "state.json")
	state := config.NewStateStore(statePath)
	wd, err := New(map[string]types.ProcessConfig{"scraper": cfg}, inspector, state, 100*time.Millisecond, logging.NewNoOpLogger())
	require.NoError(t, err)

	anomalous, _, err := wd.CheckProcesses()
	require.NoError(t, err)
	actions := wd.HandleAnomalies(anomalous)

	require.Len(t, actions, 2)
	assert.Equal(t, "kill", actions[0].Action)
	assert.Equal(t, "restart", actions[1].Action)
	assert.True(t, actions[1].Success)

	count, err := state.RestartCount("100_scraper")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRestartCeilingRespected(t *testing.T) {
	inspector := newFakeInspector()
	inspector.add(100, "python scrape_feeds.py", 3*time.Hour)

	cfg := scraperConfig(120)
	cfg.RestartCommand = "true"
	cfg.MaxRestarts = 2
	state := config.NewStateStore(filepath.Join(t.TempDir(), "state.json"))
	for i := 0; i < 2; i++ {
		_, err := state.IncrementRestart("100_scraper")
		require.NoError(t, err)
	}

	wd, err := New(map[string]types.ProcessConfig{"scraper": cfg}, inspector, state, 100*time.Millisecond, logging.NewNoOpLogger())
	require.NoError(t, err)

	anomalous, _, err := wd.CheckProcesses()
	require.NoError(t, err)
	actions := wd.HandleAnomalies(anomalous)

	require.Len(t, actions, 2)
	assert.True(t, actions[0].Success)
	assert.False(t, actions[1].Success)
	assert.Contains(t, actions[1].Error, "ceiling")

	count, err := state.RestartCount("100_scraper")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunCheckCycleSummary(t *testing.T) {
	inspector := newFakeInspector()
	inspector.add(100, "python scrape_feeds.py", 3*time.Hour)
	inspector.add(101, "python scrape_feeds.py", time.Minute)

	wd := newTestWatchdog(t, map[string]types.ProcessConfig{"scraper": scraperConfig(120)}, inspector)

	summary, err := wd.RunCheckCycle()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ProcessesChecked)
	assert.Equal(t, 1, summary.AnomaliesFound)
	require.Len(t, summary.Actions, 1)
	assert.True(t, summary.Actions[0].Success)
}
