package detection

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// resourceSampler samples RSS and CPU usage of this process. Sampling
// is rate-limited so the detection loop pays for it at most once per
// interval.
type resourceSampler struct {
	proc     *process.Process
	interval time.Duration
	last     time.Time
}

func newResourceSampler(interval time.Duration) *resourceSampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &resourceSampler{proc: proc, interval: interval}
}

// sample returns (memoryMB, cpuPercent, true) when a fresh sample was
// taken, or ok=false when rate-limited or unavailable.
func (s *resourceSampler) sample() (float64, float64, bool) {
	if s == nil || s.proc == nil {
		return 0, 0, false
	}
	now := time.Now()
	if now.Sub(s.last) < s.interval {
		return 0, 0, false
	}
	s.last = now

	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return 0, 0, false
	}
	cpu, err := s.proc.CPUPercent()
	if err != nil {
		return 0, 0, false
	}
	return float64(mem.RSS) / (1024 * 1024), cpu, true
}
