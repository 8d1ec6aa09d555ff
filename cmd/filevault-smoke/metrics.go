package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const separatorLineLength = 80

type operationMetrics struct {
	Name     string
	Duration time.Duration
	Size     int64
	Error    error
}

type stepMetrics struct {
	Name       string
	StartTime  time.Time
	Duration   time.Duration
	Operations []operationMetrics
	Success    bool
	Error      error
}

// metricsCollector tracks every operation of a smoke run.
type metricsCollector struct {
	mu          sync.Mutex
	steps       []stepMetrics
	currentStep *stepMetrics
	showSummary bool
	counts      map[string]int
	totalBytes  int64
}

func newMetricsCollector(showSummary bool) *metricsCollector {
	return &metricsCollector{showSummary: showSummary, counts: make(map[string]int)}
}

func (m *metricsCollector) startStep(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentStep = &stepMetrics{Name: name, StartTime: time.Now()}
}

func (m *metricsCollector) endStep(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentStep == nil {
		return
	}
	m.currentStep.Duration = time.Since(m.currentStep.StartTime)
	m.currentStep.Success = err == nil
	m.currentStep.Error = err
	m.steps = append(m.steps, *m.currentStep)
	m.currentStep = nil
}

func (m *metricsCollector) recordOperation(name string, d time.Duration, size int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentStep != nil {
		m.currentStep.Operations = append(m.currentStep.Operations, operationMetrics{
			Name: name, Duration: d, Size: size, Error: err,
		})
	}
	m.counts[name]++
	if size > 0 {
		m.totalBytes += size
	}
}

func (m *metricsCollector) printSummary(w io.Writer) {
	if !m.showSummary {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	fmt.Fprintln(w, "\n"+strings.Repeat("=", separatorLineLength))
	fmt.Fprintln(w, "METRICS SUMMARY")
	fmt.Fprintln(w, strings.Repeat("=", separatorLineLength))

	names := make([]string, 0, len(m.counts))
	for name := range m.counts {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "\nOperations:\n")
	for _, name := range names {
		fmt.Fprintf(w, "  %-10s %d\n", name, m.counts[name])
	}
	fmt.Fprintf(w, "  Total bytes: %s\n", humanize.Bytes(uint64(m.totalBytes)))

	fmt.Fprintf(w, "\nSteps:\n")
	for _, step := range m.steps {
		status := "ok"
		if !step.Success {
			status = "FAILED"
		}
		fmt.Fprintf(w, "  [%s] %s (%.2fs, %d operations)\n", status, step.Name, step.Duration.Seconds(), len(step.Operations))
		if step.Error != nil {
			fmt.Fprintf(w, "         %v\n", step.Error)
		}
	}
}
