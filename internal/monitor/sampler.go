package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/procfs"

	"github.com/pders01/rollguard/internal/backup"
	"github.com/pders01/rollguard/internal/config"
	"github.com/pders01/rollguard/internal/models"
)

const probeTimeout = 5 * time.Second

// Sample is one health measurement
type Sample struct {
	At              time.Time
	CPUPercent      float64
	DiskUsedPercent float64
	RSSBytes        uint64
	Zombie          bool
	ZombieChildren  []int
}

// Sampler measures system and process health
type Sampler interface {
	Sample(ctx context.Context, pid int) (Sample, error)
}

// Probe checks an external dependency of the host process
type Probe interface {
	Name() string
	Check(ctx context.Context) error
}

// ProcSampler reads /proc through procfs
type ProcSampler struct {
	root string
	fs   func() (procfs.FS, error)
	disk func(path string) (backup.Usage, error)

	mu        sync.Mutex
	prevTotal float64
	prevIdle  float64
}

// NewProcSampler samples the default /proc mount and the filesystem
// holding root
func NewProcSampler(root string) *ProcSampler {
	return &ProcSampler{
		root: root,
		fs:   procfs.NewDefaultFS,
		disk: backup.DiskUsage,
	}
}

// Sample reads CPU, disk, memory and zombie state for pid
func (s *ProcSampler) Sample(ctx context.Context, pid int) (Sample, error) {
	out := Sample{At: time.Now()}

	fs, err := s.fs()
	if err != nil {
		return out, fmt.Errorf("failed to open procfs: %w", err)
	}

	stat, err := fs.Stat()
	if err != nil {
		return out, fmt.Errorf("failed to read cpu stats: %w", err)
	}
	out.CPUPercent = s.cpuPercent(stat.CPUTotal)

	if s.root != "" {
		usage, err := s.disk(s.root)
		if err != nil {
			return out, fmt.Errorf("failed to read disk usage: %w", err)
		}
		out.DiskUsedPercent = usage.UsedPercent()
	}

	proc, err := fs.Proc(pid)
	if err != nil {
		return out, fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	pstat, err := proc.Stat()
	if err != nil {
		return out, fmt.Errorf("failed to read process %d stats: %w", pid, err)
	}
	out.RSSBytes = uint64(pstat.ResidentMemory())
	out.Zombie = pstat.State == "Z"

	if err := ctx.Err(); err != nil {
		return out, err
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return out, fmt.Errorf("failed to list processes: %w", err)
	}
	for _, p := range procs {
		ps, err := p.Stat()
		if err != nil {
			// processes exit while we iterate
			continue
		}
		if ps.PPID == pid && ps.State == "Z" {
			out.ZombieChildren = append(out.ZombieChildren, p.PID)
		}
	}
	return out, nil
}

// cpuPercent returns busy time since the previous call as a percentage.
// The first call measures since boot.
func (s *ProcSampler) cpuPercent(c procfs.CPUStat) float64 {
	idle := c.Idle + c.Iowait
	total := idle + c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal

	s.mu.Lock()
	defer s.mu.Unlock()
	dTotal := total - s.prevTotal
	dIdle := idle - s.prevIdle
	s.prevTotal, s.prevIdle = total, idle
	if dTotal <= 0 {
		return 0
	}
	return (dTotal - dIdle) / dTotal * 100
}

// Breach is a sampled condition over its limit
type Breach struct {
	Type    string
	Message string
	Context map[string]string
}

// Evaluate compares a sample against the configured limits
func Evaluate(s Sample, limits config.MonitorSettings) []Breach {
	var out []Breach
	if limits.CPUPercent > 0 && s.CPUPercent > limits.CPUPercent {
		out = append(out, Breach{
			Type:    models.ErrorTypeHighCPU,
			Message: fmt.Sprintf("CPU usage %.1f%% above %.0f%%", s.CPUPercent, limits.CPUPercent),
			Context: map[string]string{"cpu_percent": fmt.Sprintf("%.1f", s.CPUPercent)},
		})
	}
	if limits.DiskPercent > 0 && s.DiskUsedPercent > limits.DiskPercent {
		out = append(out, Breach{
			Type:    models.ErrorTypeLowDisk,
			Message: fmt.Sprintf("disk usage %.1f%% above %.0f%%", s.DiskUsedPercent, limits.DiskPercent),
			Context: map[string]string{"disk_percent": fmt.Sprintf("%.1f", s.DiskUsedPercent)},
		})
	}
	if limits.MemoryBytes > 0 && s.RSSBytes > limits.MemoryBytes {
		out = append(out, Breach{
			Type: models.ErrorTypeHighMemory,
			Message: fmt.Sprintf("resident memory %s above %s",
				humanize.IBytes(s.RSSBytes), humanize.IBytes(limits.MemoryBytes)),
			Context: map[string]string{"rss_bytes": strconv.FormatUint(s.RSSBytes, 10)},
		})
	}
	if s.Zombie {
		out = append(out, Breach{
			Type:    models.ErrorTypeZombie,
			Message: "host process is a zombie",
		})
	}
	for _, pid := range s.ZombieChildren {
		out = append(out, Breach{
			Type:    models.ErrorTypeZombieChild,
			Message: fmt.Sprintf("child process %d is a zombie", pid),
			Context: map[string]string{"pid": strconv.Itoa(pid)},
		})
	}
	return out
}

// CheckCriticalFiles reports critical files that are missing or empty.
// Relative names resolve against root.
func CheckCriticalFiles(root string, files []string) []Breach {
	var out []Breach
	for _, name := range files {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, name)
		}
		info, err := os.Stat(path)
		switch {
		case err != nil:
			out = append(out, Breach{
				Type:    models.ErrorTypeCriticalMissing,
				Message: fmt.Sprintf("critical file %s is missing", name),
				Context: map[string]string{"file": name},
			})
		case info.Mode().IsRegular() && info.Size() == 0:
			out = append(out, Breach{
				Type:    models.ErrorTypeFileEmpty,
				Message: fmt.Sprintf("critical file %s is empty", name),
				Context: map[string]string{"file": name},
			})
		}
	}
	return out
}
