package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// IndicatorKind discriminates the progress-indicator variants.
type IndicatorKind string

const (
	IndicatorDatabase IndicatorKind = "database"
	IndicatorFileGlob IndicatorKind = "file_glob"
)

// DatabaseIndicator counts rows created since process start in a SQLite
// table, optionally narrowed by an extra SQL filter expression.
type DatabaseIndicator struct {
	Path   string `json:"path"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

// FileGlobIndicator counts files matching a glob pattern modified since
// process start.
type FileGlobIndicator struct {
	Directory string `json:"directory"`
	Pattern   string `json:"pattern"`
}

// ProgressIndicator is a tagged union over the indicator variants,
// parsed once at config-load time.
type ProgressIndicator struct {
	Kind     IndicatorKind      `json:"kind"`
	Database *DatabaseIndicator `json:"database,omitempty"`
	FileGlob *FileGlobIndicator `json:"file_glob,omitempty"`
}

func (p *ProgressIndicator) UnmarshalJSON(data []byte) error {
	type alias ProgressIndicator
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = ProgressIndicator(a)
	return p.Validate()
}

func (p ProgressIndicator) Validate() error {
	switch p.Kind {
	case IndicatorDatabase:
		if p.Database == nil {
			return fmt.Errorf("database indicator missing database block")
		}
		if p.Database.Path == "" || p.Database.Table == "" {
			return fmt.Errorf("database indicator requires path and table")
		}
	case IndicatorFileGlob:
		if p.FileGlob == nil {
			return fmt.Errorf("file_glob indicator missing file_glob block")
		}
		if p.FileGlob.Pattern == "" {
			return fmt.Errorf("file_glob indicator requires pattern")
		}
	default:
		return fmt.Errorf("unknown progress indicator kind %q", p.Kind)
	}
	return nil
}

// ProcessConfig is the per-job monitoring policy, persisted as JSON and
// read every monitoring pass.
type ProcessConfig struct {
	Pattern             string              `json:"pattern"`
	MaxRuntimeMinutes   float64             `json:"max_runtime_minutes"`
	MaxCPUPercent       float64             `json:"max_cpu_percent"`
	MaxMemoryMB         float64             `json:"max_memory_mb"`
	ProgressIndicators  []ProgressIndicator `json:"progress_indicators"`
	RestartCommand      string              `json:"restart_command,omitempty"`
	RestartDelaySeconds int                 `json:"restart_delay_seconds"`
	MaxRestarts         int                 `json:"max_restarts"`
}

// ProcessStatus is the measured state of one live process matched by a
// job's pattern, plus the anomalies found for it this cycle.
type ProcessStatus struct {
	JobName        string    `json:"job_name"`
	PID            int32     `json:"pid"`
	Cmdline        string    `json:"cmdline"`
	StartTime      time.Time `json:"start_time"`
	RuntimeMinutes float64   `json:"runtime_minutes"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryMB       float64   `json:"memory_mb"`
	Connections    int       `json:"connections"`
	CloseWaitConns int       `json:"close_wait_conns"`
	ProgressScore  float64   `json:"progress_score"`
	Anomalies      []string  `json:"anomalies"`
}

// ShouldKill reports whether any anomaly demands a kill (vs. warning only).
func (s *ProcessStatus) ShouldKill() bool {
	for _, a := range s.Anomalies {
		if strings.HasPrefix(a, "KILL:") {
			return true
		}
	}
	return false
}

// ActionResult records one kill/restart attempt in a cycle summary.
type ActionResult struct {
	JobName string `json:"job_name"`
	PID     int32  `json:"pid"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// CycleSummary is the structured result of one full monitoring pass.
type CycleSummary struct {
	Timestamp        time.Time       `json:"timestamp"`
	ProcessesChecked int             `json:"processes_checked"`
	AnomaliesFound   int             `json:"anomalies_found"`
	Actions          []ActionResult  `json:"actions"`
	Anomalous        []ProcessStatus `json:"anomalous,omitempty"`
}

// RestartRecord tracks restarts per pid_jobname key so restart ceilings
// survive watchdog restarts.
type RestartRecord struct {
	RestartCount int       `json:"restart_count"`
	LastRestart  time.Time `json:"last_restart"`
}
