// -----------------------------------------------------------------------
// Graceful Degradation - fallback values and a degraded-state flag
// -----------------------------------------------------------------------

package recovery

import (
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// Degrader tracks which optional components are currently running in a
// degraded state.
type Degrader struct {
	logger   arbor.ILogger
	recorder Recorder

	mu       sync.Mutex
	degraded map[string]bool
}

// NewDegrader builds a degrader reporting through the given recorder.
func NewDegrader(logger arbor.ILogger, recorder Recorder) *Degrader {
	return &Degrader{
		logger:   logger,
		recorder: recorder,
		degraded: make(map[string]bool),
	}
}

// WithFallback runs fn; on failure it returns the fallback value and
// marks the component degraded. critical=true bypasses degradation and
// the error is returned instead.
func WithFallback[T any](d *Degrader, component string, critical bool, fallback T, fn func() (T, error)) (T, error) {
	value, err := fn()
	if err == nil {
		d.markRecovered(component)
		return value, nil
	}
	if critical {
		return fallback, err
	}
	d.markDegraded(component, err)
	return fallback, nil
}

// IsDegraded reports whether a component currently runs degraded.
func (d *Degrader) IsDegraded(component string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.degraded[component]
}

// DegradedComponents lists every component currently degraded.
func (d *Degrader) DegradedComponents() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for name, on := range d.degraded {
		if on {
			out = append(out, name)
		}
	}
	return out
}

func (d *Degrader) markDegraded(component string, err error) {
	d.mu.Lock()
	already := d.degraded[component]
	d.degraded[component] = true
	d.mu.Unlock()

	if already {
		return
	}
	if d.logger != nil {
		d.logger.Warn().Str("component", component).Err(err).Msg("Component entering degraded mode")
	}
	if d.recorder != nil {
		d.recorder.Record(models.ErrorEventFromError(err, models.SeverityMedium, component,
			fmt.Sprintf("%s degraded, using fallback", component)))
	}
}

func (d *Degrader) markRecovered(component string) {
	d.mu.Lock()
	was := d.degraded[component]
	d.degraded[component] = false
	d.mu.Unlock()

	if was && d.logger != nil {
		d.logger.Info().Str("component", component).Msg("Component recovered from degraded mode")
	}
}
