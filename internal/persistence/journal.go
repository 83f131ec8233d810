package persistence

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/aristath/taskflow/internal/plugin"
	"github.com/aristath/taskflow/internal/scheduler"
)

// writeTimeout bounds each journal write.
const writeTimeout = 5 * time.Second

// Journal records executor runs into a Store. It implements
// scheduler.Observer; write failures are logged and never affect the run.
type Journal struct {
	store  Store
	logger *log.Logger
}

var _ scheduler.Observer = (*Journal)(nil)

// NewJournal creates a journal over store. A nil logger discards.
func NewJournal(store Store, logger *log.Logger) *Journal {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Journal{store: store, logger: logger}
}

func (j *Journal) RunStarted(sessionID string, plan scheduler.ExecutionPlan) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.store.StartRun(ctx, sessionID, plan); err != nil {
		j.logger.Warn("journal: start run", "session", sessionID, "err", err)
	}
}

func (j *Journal) TaskFinished(sessionID string, desc plugin.Descriptor, out plugin.TaskOutput) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.store.RecordOutput(ctx, sessionID, desc.Name, out); err != nil {
		j.logger.Warn("journal: record output", "session", sessionID, "task", desc.Name, "err", err)
	}
}

func (j *Journal) RunFinished(sessionID string, _ map[string]plugin.TaskOutput, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := j.store.FinishRun(ctx, sessionID, runErr); err != nil {
		j.logger.Warn("journal: finish run", "session", sessionID, "err", err)
	}
}
