// Package telemetry receives the device's state broadcast and keeps the
// latest decoded snapshot.
package telemetry

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"dronegcs/app/codec"
	"dronegcs/app/metrics"
	"dronegcs/logger"
)

type Snapshot = codec.Snapshot

const datagramSize = 2048

type Receiver struct {
	addr    string
	logger  *logger.Logger
	metrics *metrics.Metrics
	alarm   *BatteryAlarm

	// OnSnapshot is called from the receive loop after every update, outside
	// the snapshot lock. Set before Start.
	OnSnapshot func(Snapshot)

	mu       sync.RWMutex
	snapshot Snapshot

	conn *net.UDPConn
	done chan struct{}
}

func NewReceiver(addr string, logger *logger.Logger, m *metrics.Metrics) *Receiver {
	return &Receiver{
		addr:    addr,
		logger:  logger,
		metrics: m,
		alarm:   NewBatteryAlarm(DefaultBatteryThreshold, DefaultBatteryStep),
	}
}

// Start binds the telemetry port and launches the receive loop. The bind
// happens before Start returns so no early broadcast is missed.
func (r *Receiver) Start() error {
	if r.done != nil {
		return nil
	}

	laddr, err := net.ResolveUDPAddr("udp", r.addr)
	if err != nil {
		return fmt.Errorf("resolving telemetry address %s: %w", r.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("binding telemetry socket %s: %w", r.addr, err)
	}

	r.conn = conn
	r.done = make(chan struct{})
	go r.loop()

	r.logger.LogInfo("telemetry receiver started", "addr", conn.LocalAddr().String())
	return nil
}

func (r *Receiver) LocalAddr() net.Addr {
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

func (r *Receiver) loop() {
	defer close(r.done)

	buf := make([]byte, datagramSize)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				r.logger.LogInfo("telemetry receiver stopped")
			} else {
				r.logger.LogError(err, "telemetry receive failed, loop ending")
			}
			return
		}

		snap, failures := codec.ParseTelemetry(string(buf[:n]), time.Now())
		r.metrics.TelemetryDatagrams.Inc()
		if failures > 0 {
			r.metrics.TelemetryFieldErrors.Add(float64(failures))
		}

		r.mu.Lock()
		r.snapshot = snap
		r.mu.Unlock()

		if level, warn := r.alarm.Check(snap.Battery); warn {
			r.metrics.LowBatteryWarnings.Inc()
			r.logger.LogWarning(fmt.Errorf("battery at %d%%", level), "battery level is critically low, land now", "battery", level)
		}

		if r.OnSnapshot != nil {
			r.OnSnapshot(snap)
		}
	}
}

// Snapshot returns a copy of the latest decoded telemetry.
func (r *Receiver) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Stop closes the socket and waits for the loop to exit. Safe to call on a
// receiver that never started.
func (r *Receiver) Stop() {
	if r.done == nil {
		return
	}
	_ = r.conn.Close()
	<-r.done
}
