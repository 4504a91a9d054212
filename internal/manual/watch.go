package manual

import (
	"context"
	"time"

	"github.com/k4lls/zt100/internal/interfaces"
)

// Watch runs an unforced check immediately and then every interval until ctx
// is done. The minimum check interval still applies, so a short interval only
// makes the watcher notice sooner that the throttle has expired.
func (m *Manager) Watch(ctx context.Context, interval time.Duration, onResult func(interfaces.SyncResult)) error {
	if interval <= 0 {
		interval = m.config.MinCheckInterval
	}

	for {
		result := m.CheckForUpdate(ctx, false)
		if onResult != nil {
			onResult(result)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(interval):
		}
	}
}
