package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// Impact says what a failing check does to the overall status
type Impact int

const (
	// ImpactCritical failures make the whole service unhealthy
	ImpactCritical Impact = iota
	// ImpactDegrading failures only degrade the service, e.g. a legacy
	// profile source while embedded payloads still decode offline
	ImpactDegrading
)

func (i Impact) String() string {
	if i == ImpactDegrading {
		return "degrading"
	}
	return "critical"
}

// HealthCheck is the result of one checker run
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Impact      string                 `json:"impact"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	Duration    time.Duration          `json:"duration"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// HealthReport is the aggregated result served on the health endpoint
type HealthReport struct {
	Status    HealthStatus   `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Service   string         `json:"service"`
	Version   string         `json:"version"`
	Checks    []HealthCheck  `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// HealthChecker probes one dependency
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
}

// CheckerFunc adapts a function to HealthChecker
type CheckerFunc func(ctx context.Context) HealthCheck

// Check calls f
func (f CheckerFunc) Check(ctx context.Context) HealthCheck {
	return f(ctx)
}

// PingChecker reports healthy when ping succeeds and unhealthy with the
// error otherwise
func PingChecker(ping func(ctx context.Context) error, okMessage string) CheckerFunc {
	return func(ctx context.Context) HealthCheck {
		if err := ping(ctx); err != nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: okMessage}
	}
}

type registration struct {
	checker HealthChecker
	impact  Impact
}

// HealthManager runs the registered checkers and folds them into a report
type HealthManager struct {
	serviceName    string
	serviceVersion string
	mu             sync.RWMutex
	checkers       map[string]registration
	timeout        time.Duration
}

// NewHealthManager creates a new health manager
func NewHealthManager(serviceName, serviceVersion string) *HealthManager {
	return &HealthManager{
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
		checkers:       make(map[string]registration),
		timeout:        10 * time.Second,
	}
}

// RegisterChecker registers checker under name
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker, impact Impact) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = registration{checker: checker, impact: impact}
}

// SetTimeout bounds each checker run
func (hm *HealthManager) SetTimeout(timeout time.Duration) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.timeout = timeout
}

// CheckHealth runs every checker concurrently. Checks are reported sorted by
// name. A failing degrading check lowers the overall status to degraded at
// most.
func (hm *HealthManager) CheckHealth(ctx context.Context) *HealthReport {
	hm.mu.RLock()
	names := make([]string, 0, len(hm.checkers))
	regs := make(map[string]registration, len(hm.checkers))
	for name, reg := range hm.checkers {
		names = append(names, name)
		regs[name] = reg
	}
	timeout := hm.timeout
	hm.mu.RUnlock()
	sort.Strings(names)

	checks := make([]HealthCheck, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, reg registration) {
			defer wg.Done()
			checks[i] = runCheck(ctx, name, reg, timeout)
		}(i, name, regs[name])
	}
	wg.Wait()

	report := &HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Service:   hm.serviceName,
		Version:   hm.serviceVersion,
		Checks:    checks,
		Summary:   make(map[string]int),
	}
	for _, check := range checks {
		report.Summary[string(check.Status)]++
		report.Status = worse(report.Status, effectiveStatus(check.Status, regs[check.Name].impact))
	}
	return report
}

func runCheck(ctx context.Context, name string, reg registration, timeout time.Duration) HealthCheck {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	check := reg.checker.Check(checkCtx)
	check.Name = name
	check.Impact = reg.impact.String()
	check.LastChecked = start
	check.Duration = time.Since(start)
	if check.Status == "" {
		check.Status = HealthStatusUnhealthy
	}
	if checkCtx.Err() == context.DeadlineExceeded && check.Status == HealthStatusHealthy {
		check.Status = HealthStatusDegraded
		check.Message = fmt.Sprintf("check exceeded %s", timeout)
	}
	return check
}

func effectiveStatus(status HealthStatus, impact Impact) HealthStatus {
	if status == HealthStatusUnhealthy && impact == ImpactDegrading {
		return HealthStatusDegraded
	}
	return status
}

func worse(a, b HealthStatus) HealthStatus {
	rank := map[HealthStatus]int{HealthStatusHealthy: 0, HealthStatusDegraded: 1, HealthStatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// HTTPHandler serves the report, answering 503 only when unhealthy
func (hm *HealthManager) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := hm.CheckHealth(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}

// HostHealthChecker reports CPU and memory pressure of the host
type HostHealthChecker struct {
	degradedPct float64
}

// NewHostHealthChecker creates a host checker that reports degraded once CPU
// or memory usage reaches degradedPct
func NewHostHealthChecker(degradedPct float64) *HostHealthChecker {
	if degradedPct <= 0 {
		degradedPct = 90
	}
	return &HostHealthChecker{degradedPct: degradedPct}
}

// Check samples host CPU and memory usage
func (h *HostHealthChecker) Check(ctx context.Context) HealthCheck {
	check := HealthCheck{
		Status:  HealthStatusHealthy,
		Message: "Host resources healthy",
		Details: make(map[string]interface{}),
	}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(cpuPercents) > 0 {
		check.Details["cpu_percent"] = cpuPercents[0]
		if cpuPercents[0] >= h.degradedPct {
			check.Status = HealthStatusDegraded
			check.Message = fmt.Sprintf("CPU usage at %.1f%%", cpuPercents[0])
		}
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		check.Details["memory_percent"] = vm.UsedPercent
		if vm.UsedPercent >= h.degradedPct {
			check.Status = HealthStatusDegraded
			check.Message = fmt.Sprintf("Memory usage at %.1f%%", vm.UsedPercent)
		}
	}

	return check
}
