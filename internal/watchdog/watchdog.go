package watchdog

import (
	"fmt"
	"os/exec"
	"regexp"
	"syscall"
	"time"

	"github.com/atlashq/atlas/internal/watchdog/config"
	"github.com/atlashq/atlas/internal/watchdog/types"
	"github.com/atlashq/atlas/pkg/logging"
)

const (
	// Processes older than these checkpoints are held to progress and CPU rules.
	noProgressCheckMinutes = 10.0
	stallCheckMinutes      = 5.0

	lowProgressScore = 0.1
	cpuKillPercent   = 90.0

	maxCloseWaitConns = 3
)

// Watchdog inspects live processes against per-job policy and kills or
// restarts the ones that are stuck. It favors killing early: monitored
// jobs are batch scripts that are cheap to rerun and expensive to leave
// hanging.
type Watchdog struct {
	configs   map[string]types.ProcessConfig
	patterns  map[string]*regexp.Regexp
	inspector ProcessInspector
	state     *config.StateStore
	scorer    *ProgressScorer
	logger    logging.Logger
	killGrace time.Duration
}

// New compiles every job's pattern up front so a bad config fails at
// startup rather than mid-cycle.
func New(configs map[string]types.ProcessConfig, inspector ProcessInspector, state *config.StateStore, killGrace time.Duration, logger logging.Logger) (*Watchdog, error) {
	patterns := make(map[string]*regexp.Regexp, len(configs))
	for jobName, cfg := range configs {
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for job %s: %w", jobName, err)
		}
		patterns[jobName] = re
	}

	return &Watchdog{
		configs:   configs,
		patterns:  patterns,
		inspector: inspector,
		state:     state,
		scorer:    NewProgressScorer(logger),
		logger:    logger,
		killGrace: killGrace,
	}, nil
}

// CheckProcesses scans the process list once and returns every matched
// process that tripped at least one anomaly rule, along with the number
// of matched processes examined.
func (w *Watchdog) CheckProcesses() ([]types.ProcessStatus, int, error) {
	procs, err := w.inspector.ListProcesses()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list processes: %w", err)
	}

	now := time.Now().UTC()
	checked := 0
	var anomalous []types.ProcessStatus

	for jobName, re := range w.patterns {
		cfg := w.configs[jobName]
		for _, proc := range procs {
			if !re.MatchString(proc.Cmdline) {
				continue
			}
			checked++

			status, err := w.buildStatus(jobName, cfg, proc, now)
			if err != nil {
				w.logger.Warnf("[Watchdog] could not inspect pid %d (job %s): %v", proc.PID, jobName, err)
				continue
			}

			status.Anomalies = evaluateRules(cfg, status)
			if len(status.Anomalies) > 0 {
				w.logger.Infof("[Watchdog] job %s pid %d anomalous: %v", jobName, status.PID, status.Anomalies)
				anomalous = append(anomalous, status)
			}
		}
	}

	return anomalous, checked, nil
}

func (w *Watchdog) buildStatus(jobName string, cfg types.ProcessConfig, proc ProcessInfo, now time.Time) (types.ProcessStatus, error) {
	cpu, err := w.inspector.CPUPercent(proc.PID)
	if err != nil {
		return types.ProcessStatus{}, err
	}
	memMB, err := w.inspector.MemoryMB(proc.PID)
	if err != nil {
		return types.ProcessStatus{}, err
	}
	total, closeWait, err := w.inspector.ConnectionCounts(proc.PID)
	if err != nil {
		return types.ProcessStatus{}, err
	}

	return types.ProcessStatus{
		JobName:        jobName,
		PID:            proc.PID,
		Cmdline:        proc.Cmdline,
		StartTime:      proc.StartTime,
		RuntimeMinutes: now.Sub(proc.StartTime).Minutes(),
		CPUPercent:     cpu,
		MemoryMB:       memMB,
		Connections:    total,
		CloseWaitConns: closeWait,
		ProgressScore:  w.scorer.Score(jobName, cfg.ProgressIndicators, proc.StartTime),
	}, nil
}

func evaluateRules(cfg types.ProcessConfig, s types.ProcessStatus) []string {
	var anomalies []string

	if cfg.MaxRuntimeMinutes > 0 && s.RuntimeMinutes > cfg.MaxRuntimeMinutes {
		anomalies = append(anomalies, fmt.Sprintf("KILL: runtime %.1fm exceeds max %.0fm", s.RuntimeMinutes, cfg.MaxRuntimeMinutes))
	}
	if s.RuntimeMinutes > noProgressCheckMinutes && s.ProgressScore < lowProgressScore {
		anomalies = append(anomalies, fmt.Sprintf("KILL: no meaningful progress (score %.2f after %.1fm)", s.ProgressScore, s.RuntimeMinutes))
	}
	if s.CloseWaitConns > maxCloseWaitConns {
		anomalies = append(anomalies, fmt.Sprintf("KILL: %d connections stuck in CLOSE_WAIT", s.CloseWaitConns))
	}
	if s.RuntimeMinutes > stallCheckMinutes && s.ProgressScore == 0.0 {
		anomalies = append(anomalies, fmt.Sprintf("KILL: completely stalled (zero progress after %.1fm)", s.RuntimeMinutes))
	}
	if s.RuntimeMinutes > stallCheckMinutes && s.CPUPercent > cpuKillPercent {
		anomalies = append(anomalies, fmt.Sprintf("KILL: suspected infinite loop (CPU %.0f%% after %.1fm)", s.CPUPercent, s.RuntimeMinutes))
	}
	if cfg.MaxMemoryMB > 0 && s.MemoryMB > cfg.MaxMemoryMB {
		anomalies = append(anomalies, fmt.Sprintf("WARNING: memory %.0fMB exceeds ceiling %.0fMB", s.MemoryMB, cfg.MaxMemoryMB))
	}

	return anomalies
}

// HandleAnomalies kills each process with a kill-grade anomaly and, when
// the job has a restart command and headroom under its restart ceiling,
// respawns it detached. Warning-only processes are left running.
func (w *Watchdog) HandleAnomalies(processes []types.ProcessStatus) []types.ActionResult {
	var actions []types.ActionResult

	for _, proc := range processes {
		if !proc.ShouldKill() {
			w.logger.Warnf("[Watchdog] job %s pid %d: warnings only, not killing: %v", proc.JobName, proc.PID, proc.Anomalies)
			continue
		}

		killResult := types.ActionResult{JobName: proc.JobName, PID: proc.PID, Action: "kill"}
		if err := w.killProcess(proc.PID); err != nil {
			killResult.Error = err.Error()
			w.logger.Errorf("[Watchdog] failed to kill pid %d (job %s): %v", proc.PID, proc.JobName, err)
			actions = append(actions, killResult)
			continue
		}
		killResult.Success = true
		w.logger.Infof("[Watchdog] killed pid %d (job %s)", proc.PID, proc.JobName)
		actions = append(actions, killResult)

		cfg := w.configs[proc.JobName]
		if cfg.RestartCommand == "" {
			continue
		}
		if restart := w.restartJob(proc, cfg); restart != nil {
			actions = append(actions, *restart)
		}
	}

	return actions
}

// killProcess sends SIGTERM, polls for exit up to the grace period, then
// escalates to SIGKILL.
func (w *Watchdog) killProcess(pid int32) error {
	if err := w.inspector.Terminate(pid); err != nil {
		return fmt.Errorf("SIGTERM failed: %w", err)
	}

	deadline := time.Now().Add(w.killGrace)
	for time.Now().Before(deadline) {
		running, err := w.inspector.IsRunning(pid)
		if err != nil || !running {
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}

	if err := w.inspector.Kill(pid); err != nil {
		return fmt.Errorf("SIGKILL failed: %w", err)
	}
	return nil
}

func (w *Watchdog) restartJob(proc types.ProcessStatus, cfg types.ProcessConfig) *types.ActionResult {
	key := fmt.Sprintf("%d_%s", proc.PID, proc.JobName)
	result := &types.ActionResult{JobName: proc.JobName, PID: proc.PID, Action: "restart"}

	count, err := w.state.RestartCount(key)
	if err != nil {
		result.Error = fmt.Sprintf("failed to read restart state: %v", err)
		w.logger.Errorf("[Watchdog] %s", result.Error)
		return result
	}
	if count >= cfg.MaxRestarts {
		result.Error = fmt.Sprintf("restart ceiling reached (%d/%d)", count, cfg.MaxRestarts)
		w.logger.Warnf("[Watchdog] job %s: %s", proc.JobName, result.Error)
		return result
	}

	// First restart fires immediately; repeats back off by the configured delay.
	if count > 0 && cfg.RestartDelaySeconds > 0 {
		w.logger.Infof("[Watchdog] job %s: waiting %ds before restart %d", proc.JobName, cfg.RestartDelaySeconds, count+1)
		time.Sleep(time.Duration(cfg.RestartDelaySeconds) * time.Second)
	}

	spawnErr := w.spawnDetached(cfg.RestartCommand)

	// Counted even when the spawn fails so a broken restart command
	// cannot be retried forever.
	if _, err := w.state.IncrementRestart(key); err != nil {
		w.logger.Errorf("[Watchdog] failed to persist restart count for %s: %v", key, err)
	}

	if spawnErr != nil {
		result.Error = spawnErr.Error()
		w.logger.Errorf("[Watchdog] failed to restart job %s: %v", proc.JobName, spawnErr)
		return result
	}

	result.Success = true
	w.logger.Infof("[Watchdog] restarted job %s (attempt %d/%d)", proc.JobName, count+1, cfg.MaxRestarts)
	return result
}

// spawnDetached starts the restart command in its own session so it
// survives the watchdog exiting. Fire and forget: no health wait.
func (w *Watchdog) spawnDetached(command string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to spawn %q: %w", command, err)
	}
	// Reap the child in the background so it does not zombie while the
	// daemon keeps running.
	go func() { _ = cmd.Wait() }()
	return nil
}

// RunCheckCycle performs one full check-and-handle pass.
func (w *Watchdog) RunCheckCycle() (types.CycleSummary, error) {
	summary := types.CycleSummary{Timestamp: time.Now().UTC()}

	anomalous, checked, err := w.CheckProcesses()
	if err != nil {
		return summary, err
	}
	summary.ProcessesChecked = checked
	summary.Anomalous = anomalous
	summary.AnomaliesFound = len(anomalous)
	summary.Actions = w.HandleAnomalies(anomalous)

	w.logger.Infof("[Watchdog] cycle complete: %d checked, %d anomalous, %d actions",
		summary.ProcessesChecked, summary.AnomaliesFound, len(summary.Actions))
	return summary, nil
}
