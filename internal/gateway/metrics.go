package gateway

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SystemMetrics is the resource snapshot pushed on the metrics stream
// and served by /api/metrics. Field names are part of the client
// protocol.
type SystemMetrics struct {
	CPULoad1    float64 `json:"cpu_load_1"`
	CPULoad5    float64 `json:"cpu_load_5"`
	CPULoad15   float64 `json:"cpu_load_15"`
	CPUPercent  float64 `json:"cpu_percent"`
	CPUCores    int     `json:"cpu_cores"`
	MemUsedMB   float64 `json:"mem_used_mb"`
	MemTotalMB  float64 `json:"mem_total_mb"`
	MemPercent  float64 `json:"mem_percent"`
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   int64   `json:"uptime_sec"`
	LatencyP50  float64 `json:"latency_p50_ms"`
	LatencyP95  float64 `json:"latency_p95_ms"`
	LatencyP99  float64 `json:"latency_p99_ms"`
	TS          string  `json:"ts"`
}

// CollectMetrics gathers a point-in-time resource snapshot. Latency
// percentiles are filled in by the caller from the hub's tracker.
func CollectMetrics(start time.Time) SystemMetrics {
	m := SystemMetrics{
		CPUCores:   runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  int64(time.Since(start).Seconds()),
		TS:         time.Now().UTC().Format(time.RFC3339Nano),
	}

	m.CPUPercent = cpuPercent()
	m.CPULoad1, m.CPULoad5, m.CPULoad15 = loadAvg()
	m.MemUsedMB, m.MemTotalMB, m.MemPercent = memInfo()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	m.SysMB = float64(ms.Sys) / 1024 / 1024
	m.GCRuns = ms.NumGC

	return m
}

// cpuState carries the previous /proc/stat counters so cpuPercent can
// report utilization over the interval between two collections.
var cpuState struct {
	sync.Mutex
	idle, total uint64
}

// cpuPercent returns CPU utilization since the previous call, or 0 on
// the first call and on platforms without /proc.
func cpuPercent() float64 {
	idle, total, ok := readProcStat()
	if !ok {
		return 0
	}

	cpuState.Lock()
	defer cpuState.Unlock()

	prevIdle, prevTotal := cpuState.idle, cpuState.total
	cpuState.idle, cpuState.total = idle, total

	if prevTotal == 0 || total <= prevTotal {
		return 0
	}
	busy := float64(total-prevTotal) - float64(idle-prevIdle)
	return busy / float64(total-prevTotal) * 100.0
}

// readProcStat parses the aggregate "cpu" line of /proc/stat. The
// fourth value is idle time; the total is the sum of all columns.
func readProcStat() (idle, total uint64, ok bool) {
	raw, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, false
	}
	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)[1:]
		if len(fields) < 4 {
			return 0, 0, false
		}
		for i, f := range fields {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return 0, 0, false
			}
			total += v
			if i == 3 {
				idle = v
			}
		}
		return idle, total, true
	}
	return 0, 0, false
}

// loadAvg reads the 1/5/15 minute load averages, zeros on failure.
func loadAvg() (l1, l5, l15 float64) {
	raw, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	l1, _ = strconv.ParseFloat(fields[0], 64)
	l5, _ = strconv.ParseFloat(fields[1], 64)
	l15, _ = strconv.ParseFloat(fields[2], 64)
	return l1, l5, l15
}

// memInfo reports used and total memory in MB plus used percentage,
// from MemTotal and MemAvailable in /proc/meminfo (values are in kB).
func memInfo() (usedMB, totalMB, pct float64) {
	raw, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0, 0, 0
	}
	var totalKB, availKB uint64
	for _, line := range strings.Split(string(raw), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB, _ = strconv.ParseUint(fields[1], 10, 64)
		case "MemAvailable:":
			availKB, _ = strconv.ParseUint(fields[1], 10, 64)
		}
	}
	if totalKB == 0 {
		return 0, 0, 0
	}
	usedKB := totalKB - availKB
	return float64(usedKB) / 1024, float64(totalKB) / 1024, float64(usedKB) / float64(totalKB) * 100
}
