package monitor

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"

	"github.com/pders01/rollguard/internal/models"
	"github.com/pders01/rollguard/internal/rollback"
)

// Handler applies local remediation for one recorded event. Handlers run
// on the event loop, one at a time, in the order events were recorded.
type Handler func(ctx context.Context, ev models.ErrorEvent) error

var errAutoRollbackOff = errors.New("automatic rollback disabled")

func (m *Monitor) defaultHandlers() map[string]Handler {
	return map[string]Handler{
		models.ErrorTypeAIProcessing:   m.handleAIError,
		models.ErrorTypeSystemCrash:    m.handleStableRollback,
		models.ErrorTypeFileCorruption: m.handleStableRollback,
		models.ErrorTypeMemoryLeak:     m.handleMemory,
		models.ErrorTypeHighMemory:     m.handleMemory,
		"":                             m.handleGeneric,
	}
}

// handleAIError rolls back hard only for severe AI failures
func (m *Monitor) handleAIError(ctx context.Context, ev models.ErrorEvent) error {
	if !ev.Severity.AtLeast(models.SeverityHigh) {
		return nil
	}
	m.logger.Warn("critical AI processing error, starting emergency rollback", "id", ev.ID)
	return m.runRollback(ctx, ev, func(ctx context.Context) (*rollback.Result, error) {
		return m.recoverer.EmergencyRollback(ctx)
	})
}

func (m *Monitor) handleStableRollback(ctx context.Context, ev models.ErrorEvent) error {
	m.logger.Warn("rolling back to stable version", "type", ev.Type, "id", ev.ID)
	return m.runRollback(ctx, ev, func(ctx context.Context) (*rollback.Result, error) {
		return m.recoverer.RollbackToStable(ctx)
	})
}

func (m *Monitor) handleMemory(ctx context.Context, ev models.ErrorEvent) error {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	runtime.GC()
	debug.FreeOSMemory()
	runtime.ReadMemStats(&after)
	m.logger.Info("forced garbage collection", "heap_before", before.HeapAlloc, "heap_after", after.HeapAlloc)
	return nil
}

func (m *Monitor) handleGeneric(ctx context.Context, ev models.ErrorEvent) error {
	if ev.Severity != models.SeverityCritical {
		m.logger.Debug("no remediation for event", "type", ev.Type, "severity", ev.Severity)
		return nil
	}
	return m.handleStableRollback(ctx, ev)
}

func (m *Monitor) runRollback(ctx context.Context, ev models.ErrorEvent, run func(context.Context) (*rollback.Result, error)) error {
	if m.recoverer == nil {
		return nil
	}
	if !m.autoRollbackEnabled() {
		m.logger.Info("skipping rollback", "type", ev.Type, "reason", errAutoRollbackOff)
		return nil
	}
	res, err := run(ctx)
	m.metrics.rollback(err)
	if err != nil {
		return err
	}
	m.logger.Info("handler rollback committed", "type", ev.Type, "target", res.Target)
	return nil
}
