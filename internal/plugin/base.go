package plugin

import "sync"

// StatusTracker is implemented by tasks that want the registry and executor
// to report lifecycle transitions to them.
type StatusTracker interface {
	SetStatus(status Status, lastErr error)
}

// Base provides the descriptor, config and no-op lifecycle hooks so concrete
// tasks only implement Process.
type Base struct {
	desc Descriptor
	cfg  Config

	mu      sync.Mutex
	status  Status
	lastErr error
}

// NewBase seeds the helper with a descriptor and config.
func NewBase(desc Descriptor, cfg Config) *Base {
	return &Base{desc: desc, cfg: cfg.Clone()}
}

// Metadata implements Task.Metadata.
func (b *Base) Metadata() Descriptor {
	return b.desc
}

// Config implements Configurable.
func (b *Base) Config() Config {
	return b.cfg.Clone()
}

// Initialize implements Task.Initialize.
func (b *Base) Initialize() error { return nil }

// Cleanup implements Task.Cleanup.
func (b *Base) Cleanup() error { return nil }

// HealthCheck implements Task.HealthCheck.
func (b *Base) HealthCheck() bool { return true }

// SetStatus implements StatusTracker.
func (b *Base) SetStatus(status Status, lastErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
	b.lastErr = lastErr
}

// Status returns the last reported lifecycle status.
func (b *Base) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// LastError returns the error attached to the last status report.
func (b *Base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}
