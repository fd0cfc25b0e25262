// Package command implements the synchronous request/response control link
// to the device.
package command

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"dronegcs/app/codec"
	"dronegcs/app/metrics"
	"dronegcs/apperror"
	"dronegcs/logger"
)

// ErrorResponse is what Send returns alongside a transport error.
const ErrorResponse = "error"

const replyBufferSize = 1024

type Channel struct {
	conn    *net.UDPConn
	device  *net.UDPAddr
	timeout time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics

	// mu serializes Send so at most one command is in flight.
	mu     sync.Mutex
	stale  bool
	closed bool
}

// Open binds localAddr and targets deviceAddr. A zero timeout blocks on the
// reply until the socket is closed.
func Open(localAddr, deviceAddr string, timeout time.Duration, logger *logger.Logger, m *metrics.Metrics) (*Channel, error) {
	device, err := net.ResolveUDPAddr("udp", deviceAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving device address %s: %w", deviceAddr, err)
	}

	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving control address %s: %w", localAddr, err)
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("binding control socket %s: %w", localAddr, err)
	}

	logger.LogInfo("control channel opened", "local", conn.LocalAddr().String(), "device", device.String(), "timeout", timeout)

	return &Channel{
		conn:    conn,
		device:  device,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}, nil
}

func (c *Channel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Send transmits cmd and blocks for the paired reply, returned verbatim.
// Transport failures return ErrorResponse and the cause.
func (c *Channel) Send(cmd string) (string, error) {
	payload, err := codec.EncodeCommand(cmd)
	if err != nil {
		return ErrorResponse, apperror.InvalidRequest.Wrap(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrorResponse, net.ErrClosed
	}

	if c.stale {
		c.drain()
	}

	start := time.Now()
	reply, err := c.roundTrip(payload)
	c.metrics.CommandDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.CommandsTotal.WithLabelValues("error").Inc()
		c.logger.LogError(err, "control command failed", "command", string(payload))
		return ErrorResponse, err
	}

	if reply == codec.ResponseOK {
		c.metrics.CommandsTotal.WithLabelValues("ok").Inc()
	} else {
		c.metrics.CommandsTotal.WithLabelValues("other").Inc()
	}
	c.logger.LogDebug("control command answered", "command", string(payload), "response", reply)

	return reply, nil
}

func (c *Channel) roundTrip(payload []byte) (string, error) {
	if _, err := c.conn.WriteToUDP(payload, c.device); err != nil {
		return "", fmt.Errorf("sending %q: %w", payload, err)
	}

	deadline := time.Time{}
	if c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	buf := make([]byte, replyBufferSize)
	for {
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// a late reply would otherwise pair with the next command
				c.stale = true
			}
			return "", fmt.Errorf("awaiting reply to %q: %w", payload, err)
		}
		if !sameHost(from, c.device) {
			c.logger.LogDebug("ignoring datagram from unexpected peer", "peer", from.String())
			continue
		}
		return codec.DecodeResponse(buf[:n]), nil
	}
}

// drain discards replies that arrived after their command timed out.
func (c *Channel) drain() {
	buf := make([]byte, replyBufferSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	for {
		if _, _, err := c.conn.ReadFromUDP(buf); err != nil {
			break
		}
	}
	c.stale = false
}

// EnterControlMode puts the device in SDK mode. Only an exact "ok" succeeds.
func (c *Channel) EnterControlMode() error {
	reply, err := c.Send(codec.CmdCommand)
	if err != nil {
		return apperror.ControlModeRejected.Wrap(err)
	}
	if reply != codec.ResponseOK {
		return apperror.ControlModeRejected.SetMessage(fmt.Sprintf("device answered %q to command mode", reply))
	}
	c.logger.LogInfo("device entered command mode")
	return nil
}

// Close is idempotent. A Send blocked on a reply returns with an error.
func (c *Channel) Close() error {
	// closing the socket first unblocks an in-flight read before we take mu
	err := c.conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func sameHost(from, device *net.UDPAddr) bool {
	if from.Port != device.Port {
		return false
	}
	if device.IP == nil || device.IP.IsUnspecified() {
		return true
	}
	return from.IP.Equal(device.IP)
}
