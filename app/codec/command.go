// Package codec holds the stateless wire encodings shared by the session:
// control commands, telemetry datagrams and video frames.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CmdCommand   = "command"
	CmdTakeoff   = "takeoff"
	CmdLand      = "land"
	CmdStreamOn  = "streamon"
	CmdStreamOff = "streamoff"
	CmdEmergency = "emergency"

	ResponseOK = "ok"
)

type Direction string

const (
	Left    Direction = "left"
	Right   Direction = "right"
	Forward Direction = "forward"
	Back    Direction = "back"
	Up      Direction = "up"
	Down    Direction = "down"
)

var ErrEmptyCommand = errors.New("empty command")

// EncodeCommand turns a command string into the datagram payload.
func EncodeCommand(cmd string) ([]byte, error) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil, ErrEmptyCommand
	}
	return []byte(cmd), nil
}

func DecodeResponse(b []byte) string {
	return strings.TrimRight(string(b), "\r\n\x00")
}

func Move(dir Direction, cm int) (string, error) {
	switch dir {
	case Left, Right, Forward, Back, Up, Down:
	default:
		return "", fmt.Errorf("unknown direction %q", dir)
	}
	if cm < 20 || cm > 500 {
		return "", fmt.Errorf("distance %dcm out of range 20-500", cm)
	}
	return fmt.Sprintf("%s %d", dir, cm), nil
}

func Rotate(clockwise bool, deg int) (string, error) {
	if deg < 1 || deg > 360 {
		return "", fmt.Errorf("rotation %d out of range 1-360", deg)
	}
	if clockwise {
		return fmt.Sprintf("cw %d", deg), nil
	}
	return fmt.Sprintf("ccw %d", deg), nil
}

// Flip accepts l, r, f or b.
func Flip(dir string) (string, error) {
	switch dir {
	case "l", "r", "f", "b":
		return "flip " + dir, nil
	}
	return "", fmt.Errorf("unknown flip direction %q", dir)
}

func Speed(cmPerSec int) (string, error) {
	if cmPerSec < 10 || cmPerSec > 100 {
		return "", fmt.Errorf("speed %d out of range 10-100", cmPerSec)
	}
	return fmt.Sprintf("speed %d", cmPerSec), nil
}

// RC builds the continuous stick command; every channel is -100..100.
func RC(roll, pitch, throttle, yaw int) (string, error) {
	for _, v := range [...]int{roll, pitch, throttle, yaw} {
		if v < -100 || v > 100 {
			return "", fmt.Errorf("rc channel %d out of range -100..100", v)
		}
	}
	return fmt.Sprintf("rc %d %d %d %d", roll, pitch, throttle, yaw), nil
}
