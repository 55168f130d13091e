package orchestrator

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-cs/internal/analysis"
)

var builtinPriority = map[string]int{
	analysis.AgentSentiment: 1,
	analysis.AgentMemory:    2,
	analysis.AgentTag:       3,
	analysis.AgentKnowledge: 4,
}

// Custom analyzers run after the built-ins, in registration order.
const customPriority = 100

type entry struct {
	name         string
	analyzer     analysis.Analyzer
	active       bool
	priority     int
	seq          int
	config       map[string]any
	registeredAt time.Time

	calls       int64
	failures    int64
	lastLatency time.Duration
	lastError   string
}

// Registry holds the analyzers known to the orchestrator.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     int
	logger  *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{entries: make(map[string]*entry), logger: logger}
}

// Register adds an active analyzer under name.
func (r *Registry) Register(name string, a analysis.Analyzer) error {
	if name == "" || a == nil {
		return fmt.Errorf("register analyzer: name and analyzer are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("register %s: %w", name, ErrAnalyzerExists)
	}
	prio, ok := builtinPriority[name]
	if !ok {
		prio = customPriority
	}
	r.seq++
	r.entries[name] = &entry{
		name:         name,
		analyzer:     a,
		active:       true,
		priority:     prio,
		seq:          r.seq,
		config:       map[string]any{},
		registeredAt: time.Now(),
	}
	r.logger.Info("analyzer registered", zap.String("analyzer", name), zap.Int("priority", prio))
	return nil
}

// Unregister removes an analyzer.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return fmt.Errorf("unregister %s: %w", name, ErrAnalyzerNotFound)
	}
	delete(r.entries, name)
	r.logger.Info("analyzer unregistered", zap.String("analyzer", name))
	return nil
}

// SetActive activates or deactivates an analyzer.
func (r *Registry) SetActive(name string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("set active %s: %w", name, ErrAnalyzerNotFound)
	}
	e.active = active
	r.logger.Info("analyzer activation changed", zap.String("analyzer", name), zap.Bool("active", active))
	return nil
}

// SetPriority overrides an analyzer's dispatch priority. Lower runs first.
func (r *Registry) SetPriority(name string, priority int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("set priority %s: %w", name, ErrAnalyzerNotFound)
	}
	e.priority = priority
	return nil
}

// UpdateConfig merges cfg into the analyzer's config and forwards it to
// analyzers implementing analysis.Configurable. The stored config is left
// unchanged when the analyzer rejects it.
func (r *Registry) UpdateConfig(name string, cfg map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("update config %s: %w", name, ErrAnalyzerNotFound)
	}
	if c, ok := e.analyzer.(analysis.Configurable); ok {
		if err := c.Configure(cfg); err != nil {
			return fmt.Errorf("update config %s: %w", name, err)
		}
	}
	maps.Copy(e.config, cfg)
	r.logger.Info("analyzer config updated", zap.String("analyzer", name), zap.Int("keys", len(cfg)))
	return nil
}

// Get returns a registered analyzer and whether it is active.
func (r *Registry) Get(name string) (analysis.Analyzer, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false, fmt.Errorf("get %s: %w", name, ErrAnalyzerNotFound)
	}
	return e.analyzer, e.active, nil
}

// Names lists registered analyzers in priority order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sorted := r.sortedLocked(false)
	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.name
	}
	return names
}

// Entry is a registered analyzer and the name results are keyed by.
type Entry struct {
	Name     string
	Analyzer analysis.Analyzer
}

// Active returns the active analyzers in priority order.
func (r *Registry) Active() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sorted := r.sortedLocked(true)
	out := make([]Entry, len(sorted))
	for i, e := range sorted {
		out[i] = Entry{Name: e.name, Analyzer: e.analyzer}
	}
	return out
}

// Status snapshots every analyzer in priority order.
func (r *Registry) Status() []AnalyzerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sorted := r.sortedLocked(false)
	out := make([]AnalyzerStatus, len(sorted))
	for i, e := range sorted {
		out[i] = AnalyzerStatus{
			Name:         e.name,
			Active:       e.active,
			Priority:     e.priority,
			Config:       maps.Clone(e.config),
			RegisteredAt: e.registeredAt,
			Calls:        e.calls,
			Failures:     e.failures,
			LastLatency:  e.lastLatency,
			LastError:    e.lastError,
		}
	}
	return out
}

func (r *Registry) record(res *analysis.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[res.Agent]
	if !ok {
		return
	}
	e.calls++
	e.lastLatency = res.Latency
	if res.Success {
		e.lastError = ""
	} else {
		e.failures++
		e.lastError = res.Error
	}
}

func (r *Registry) sortedLocked(activeOnly bool) []*entry {
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if activeOnly && !e.active {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}
