package host

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profiler accumulates CPU time per named scope over a reporting window.
type Profiler struct {
	Scopes     map[string]time.Duration
	Samples    map[string]int
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string

	now func() time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		Samples:    make(map[string]int),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
		Order:      make([]string, 0),
		now:        time.Now,
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = p.now()
	if _, seen := p.Samples[name]; !seen {
		p.Order = append(p.Order, name)
		p.Samples[name] = 0
	}
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.StartTimes[name]; ok {
		p.Scopes[name] += p.now().Sub(start)
		p.Samples[name]++
		delete(p.StartTimes, name)
	}
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

// Average is the mean duration of a scope since the last Reset.
func (p *Profiler) Average(name string) time.Duration {
	n := p.Samples[name]
	if n == 0 {
		return 0
	}
	return p.Scopes[name] / time.Duration(n)
}

func (p *Profiler) Reset() {
	// Keep Order so reports stay stable.
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
	for k := range p.Samples {
		p.Samples[k] = 0
	}
}

func (p *Profiler) GetStatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU, avg):\n")
	for _, name := range p.Order {
		ms := float64(p.Average(name).Microseconds()) / 1000.0
		sb.WriteString(fmt.Sprintf("  %-15s: %.2f ms\n", name, ms))
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-15s: %d\n", k, p.Counts[k]))
	}

	return sb.String()
}
