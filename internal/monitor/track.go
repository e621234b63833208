package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/pders01/rollguard/internal/models"
)

// Track runs fn as a named unit of host work. A returned error is recorded
// as a high-severity AI processing error and a run slower than the
// configured slow threshold is recorded as medium. fn's error is returned
// unchanged.
func (m *Monitor) Track(ctx context.Context, name string, fn func(context.Context) error) error {
	start := m.now()
	err := fn(ctx)
	elapsed := m.now().Sub(start)

	if err != nil {
		m.RecordError(models.ErrorTypeAIProcessing,
			fmt.Sprintf("%s failed: %v", name, err),
			map[string]string{"operation": name, "elapsed": elapsed.String()},
			models.SeverityHigh)
		return err
	}
	if m.cfg.SlowThreshold > 0 && elapsed > m.cfg.SlowThreshold {
		m.RecordError(models.ErrorTypeAISlow,
			fmt.Sprintf("%s took %s", name, elapsed.Round(100*time.Millisecond)),
			map[string]string{"operation": name, "elapsed": elapsed.String()},
			models.SeverityMedium)
	}
	return nil
}
