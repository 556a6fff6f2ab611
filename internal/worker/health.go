package worker

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthSampler reports host CPU/memory load, the signal the
// orchestrator throttles new leases on: cpu.Percent over a short window,
// mem.VirtualMemory for the ratio.
type HealthSampler struct {
	sampleWindow time.Duration
}

// NewHealthSampler builds a HealthSampler sampling CPU over window.
func NewHealthSampler(window time.Duration) *HealthSampler {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	return &HealthSampler{sampleWindow: window}
}

// Sample returns the current CPU percent (0-100, averaged across cores)
// and memory-used percent. Errors reading either metric yield 0 for that
// metric rather than failing the caller — health sampling is advisory.
func (h *HealthSampler) Sample() (cpuPercent, memPercent float64) {
	if pcts, err := cpu.Percent(h.sampleWindow, false); err == nil && len(pcts) > 0 {
		cpuPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
	}
	return cpuPercent, memPercent
}

// Overloaded reports whether the host is too loaded to accept another
// lease, per the configured thresholds.
func (h *HealthSampler) Overloaded(cpuThreshold, memThreshold float64) bool {
	if cpuThreshold <= 0 && memThreshold <= 0 {
		return false
	}
	cpuPct, memPct := h.Sample()
	if cpuThreshold > 0 && cpuPct >= cpuThreshold {
		return true
	}
	if memThreshold > 0 && memPct >= memThreshold {
		return true
	}
	return false
}
