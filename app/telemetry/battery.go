package telemetry

import "sync"

const (
	DefaultBatteryThreshold = 15
	DefaultBatteryStep      = 5
)

// BatteryAlarm fires once the battery is at or below threshold, then again
// each time it has dropped another step since the last warning.
type BatteryAlarm struct {
	threshold int
	step      int

	mu   sync.Mutex
	last int
}

func NewBatteryAlarm(threshold, step int) *BatteryAlarm {
	return &BatteryAlarm{threshold: threshold, step: step, last: 100 + step}
}

func (a *BatteryAlarm) Check(battery *int) (int, bool) {
	if battery == nil {
		return 0, false
	}
	level := *battery

	a.mu.Lock()
	defer a.mu.Unlock()

	if level > a.threshold || level > a.last-a.step {
		return level, false
	}
	a.last = level
	return level, true
}
