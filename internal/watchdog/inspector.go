package watchdog

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo is the identity of one live OS process.
type ProcessInfo struct {
	PID       int32
	Cmdline   string
	StartTime time.Time
}

// ProcessInspector abstracts the OS process primitives the watchdog
// needs, so the decision logic is testable against a fake without
// spawning real processes.
type ProcessInspector interface {
	ListProcesses() ([]ProcessInfo, error)
	CPUPercent(pid int32) (float64, error)
	MemoryMB(pid int32) (float64, error)
	// ConnectionCounts returns the total connection count and the number
	// of connections stuck in CLOSE_WAIT.
	ConnectionCounts(pid int32) (total int, closeWait int, err error)
	Terminate(pid int32) error
	Kill(pid int32) error
	IsRunning(pid int32) (bool, error)
}

type gopsutilInspector struct{}

// NewGopsutilInspector returns the production inspector backed by gopsutil.
func NewGopsutilInspector() ProcessInspector {
	return &gopsutilInspector{}
}

func (g *gopsutilInspector) ListProcesses() ([]ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		cmdline, err := p.Cmdline()
		if err != nil || cmdline == "" {
			// Kernel threads and processes we cannot read are skipped
			continue
		}
		createMs, err := p.CreateTime()
		if err != nil {
			continue
		}
		infos = append(infos, ProcessInfo{
			PID:       p.Pid,
			Cmdline:   cmdline,
			StartTime: time.UnixMilli(createMs).UTC(),
		})
	}
	return infos, nil
}

func (g *gopsutilInspector) CPUPercent(pid int32) (float64, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, err
	}
	return p.CPUPercent()
}

func (g *gopsutilInspector) MemoryMB(pid int32) (float64, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(mem.RSS) / (1024 * 1024), nil
}

func (g *gopsutilInspector) ConnectionCounts(pid int32) (int, int, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, 0, err
	}
	conns, err := p.Connections()
	if err != nil {
		return 0, 0, err
	}

	closeWait := 0
	for _, c := range conns {
		if c.Status == "CLOSE_WAIT" {
			closeWait++
		}
	}
	return len(conns), closeWait, nil
}

func (g *gopsutilInspector) Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Terminate()
}

func (g *gopsutilInspector) Kill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

func (g *gopsutilInspector) IsRunning(pid int32) (bool, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		// NewProcess fails when the pid no longer exists
		return false, nil
	}
	return p.IsRunning()
}
