// Package catalog maps configured task names to factories and registers the
// resulting tasks with a scheduler registry in dependency order.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/gammazero/toposort"

	"github.com/aristath/taskflow/internal/config"
	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/resilience"
	"github.com/aristath/taskflow/internal/scheduler"
	"github.com/aristath/taskflow/internal/tasks"
)

// ErrUnknownTask is returned when the config names a task with no factory.
var ErrUnknownTask = errors.New("unknown task")

// Catalog is the static factory table.
type Catalog struct {
	factories map[string]tasks.Factory
	logger    *log.Logger
	breakers  *resilience.BreakerRegistry
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFactory adds or replaces a factory.
func WithFactory(name string, f tasks.Factory) Option {
	return func(c *Catalog) { c.factories[name] = f }
}

// WithBreakers shares a breaker registry across catalogs.
func WithBreakers(b *resilience.BreakerRegistry) Option {
	return func(c *Catalog) {
		if b != nil {
			c.breakers = b
		}
	}
}

// New returns a catalog holding the built-in tasks. notify writes to out.
func New(out io.Writer, opts ...Option) *Catalog {
	c := &Catalog{
		factories: tasks.Factories(out),
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breakers == nil {
		c.breakers = resilience.NewBreakerRegistry(c.logger)
	}
	return c
}

// Names returns the known task names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Breakers exposes the breaker registry used for retry-wrapped tasks.
func (c *Catalog) Breakers() *resilience.BreakerRegistry {
	return c.breakers
}

// Build instantiates every enabled task in cfg and returns them in dependency
// order. Tasks whose dependencies are disabled are skipped with a warning.
func (c *Catalog) Build(cfg *config.Config) ([]plugin.Task, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	policy := PolicyFromConfig(cfg.Retry)

	built := make(map[string]plugin.Task)
	for _, name := range sortedKeys(cfg.Tasks) {
		tc := cfg.Tasks[name]
		if !tc.IsEnabled() {
			c.logger.Debug("task disabled", "task", name)
			continue
		}
		factory, ok := c.factories[name]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownTask, name)
		}
		task, err := factory(tc.Config)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		if got := task.Metadata().Name; got != name {
			return nil, fmt.Errorf("build %s: factory produced task named %q", name, got)
		}
		if tc.Retry {
			task = resilience.Wrap(task, policy, c.breakers)
		}
		built[name] = task
	}

	c.dropOrphans(built)

	order, err := dependencyOrder(built)
	if err != nil {
		return nil, err
	}
	out := make([]plugin.Task, 0, len(order))
	for _, name := range order {
		out = append(out, built[name])
	}
	return out, nil
}

// Populate builds the configured tasks and registers them with reg. It
// returns the registered names in registration order.
func (c *Catalog) Populate(reg *scheduler.Registry, cfg *config.Config) ([]string, error) {
	built, err := c.Build(cfg)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(built))
	for _, task := range built {
		name := task.Metadata().Name
		if err := reg.Register(task); err != nil {
			return names, fmt.Errorf("register %s: %w", name, err)
		}
		names = append(names, name)
	}
	c.logger.Debug("catalog populated", "tasks", len(names))
	return names, nil
}

// dropOrphans removes tasks whose dependencies are not built, repeating until
// the set is closed.
func (c *Catalog) dropOrphans(built map[string]plugin.Task) {
	for changed := true; changed; {
		changed = false
		for _, name := range sortedKeys(built) {
			for _, dep := range built[name].Metadata().Dependencies {
				if _, ok := built[dep]; !ok {
					c.logger.Warn("skipping task with disabled dependency", "task", name, "dependency", dep)
					delete(built, name)
					changed = true
					break
				}
			}
		}
	}
}

func dependencyOrder(built map[string]plugin.Task) ([]string, error) {
	var edges []toposort.Edge
	for _, name := range sortedKeys(built) {
		deps := built[name].Metadata().Dependencies
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{nil, name})
			continue
		}
		for _, dep := range deps {
			edges = append(edges, toposort.Edge{dep, name})
		}
	}
	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("order tasks: %w", err)
	}
	order := make([]string, 0, len(built))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}
	return order, nil
}

// PolicyFromConfig converts the retry config section.
func PolicyFromConfig(rc config.RetryConfig) resilience.Policy {
	return resilience.Policy{
		MaxRetries:          rc.MaxRetries,
		InitialInterval:     rc.InitialInterval.Std(),
		MaxInterval:         rc.MaxInterval.Std(),
		MaxElapsedTime:      rc.MaxElapsedTime.Std(),
		Multiplier:          rc.Multiplier,
		RandomizationFactor: rc.RandomizationFactor,
		BreakerThreshold:    rc.BreakerThreshold,
		BreakerTimeout:      rc.BreakerTimeout.Std(),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
