package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const Unknown = "unknown"

// Snapshot is one decoded telemetry datagram. A nil field means the device
// did not report it or it could not be parsed.
type Snapshot struct {
	Timestamp         time.Time `json:"timestamp"`
	Battery           *int      `json:"battery"`
	Temperature       *float64  `json:"temperature"` // °C, mean of templ/temph
	Speed             *float64  `json:"speed"`       // mean of |vgx|,|vgy|,|vgz|
	Altitude          *float64  `json:"altitude"`    // cm
	BarometricHeight  *float64  `json:"barometricHeight"`
	TimeOfFlight      *float64  `json:"tof"` // cm to ground
	Pitch             *float64  `json:"pitch"`
	Roll              *float64  `json:"roll"`
	Yaw               *float64  `json:"yaw"`
	FlightTimeSeconds *int      `json:"flightTimeSeconds"`
}

// SplitTelemetry decodes "key:value;key:value;" into a map. Pairs without a
// colon are skipped; a trailing separator is tolerated.
func SplitTelemetry(text string) map[string]string {
	fields := make(map[string]string)
	for _, item := range strings.Split(text, ";") {
		key, value, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// ParseTelemetry decodes one datagram. failures counts fields that were
// present but could not be converted.
func ParseTelemetry(text string, at time.Time) (s Snapshot, failures int) {
	raw := SplitTelemetry(strings.TrimSpace(text))
	p := fieldParser{raw: raw}

	s = Snapshot{
		Timestamp:         at,
		Battery:           p.integer("bat"),
		Temperature:       p.mean(false, "templ", "temph"),
		Speed:             p.mean(true, "vgx", "vgy", "vgz"),
		Altitude:          p.float("h"),
		BarometricHeight:  p.float("baro"),
		TimeOfFlight:      p.float("tof"),
		Pitch:             p.float("pitch"),
		Roll:              p.float("roll"),
		Yaw:               p.float("yaw"),
		FlightTimeSeconds: p.integer("time"),
	}
	return s, p.failures
}

type fieldParser struct {
	raw      map[string]string
	failures int
}

func (p *fieldParser) value(key string) (float64, bool) {
	v, ok := p.raw[key]
	if !ok {
		return 0, false
	}
	// the device reports time as "12s" on some firmware
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "s"), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		p.failures++
		return 0, false
	}
	return f, true
}

func (p *fieldParser) float(key string) *float64 {
	f, ok := p.value(key)
	if !ok {
		return nil
	}
	return &f
}

func (p *fieldParser) integer(key string) *int {
	f, ok := p.value(key)
	if !ok {
		return nil
	}
	n := int(math.Round(f))
	return &n
}

func (p *fieldParser) mean(absolute bool, keys ...string) *float64 {
	var sum float64
	ok := true
	for _, k := range keys {
		f, present := p.value(k)
		if !present {
			ok = false
			continue
		}
		if absolute {
			f = math.Abs(f)
		}
		sum += f
	}
	if !ok {
		return nil
	}
	m := roundTenth(sum / float64(len(keys)))
	return &m
}

func roundTenth(f float64) float64 {
	return math.Round(f*10) / 10
}

// Strings renders every field for display, using "unknown" for missing ones.
func (s Snapshot) Strings() map[string]string {
	return map[string]string{
		"battery":          formatInt(s.Battery),
		"temperature":      formatTenth(s.Temperature),
		"speed":            formatTenth(s.Speed),
		"altitude":         formatFloat(s.Altitude),
		"barometricHeight": formatFloat(s.BarometricHeight),
		"tof":              formatFloat(s.TimeOfFlight),
		"pitch":            formatFloat(s.Pitch),
		"roll":             formatFloat(s.Roll),
		"yaw":              formatFloat(s.Yaw),
		"flightTime":       FormatFlightTime(s.FlightTimeSeconds),
	}
}

func formatInt(v *int) string {
	if v == nil {
		return Unknown
	}
	return strconv.Itoa(*v)
}

func formatTenth(v *float64) string {
	if v == nil {
		return Unknown
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func formatFloat(v *float64) string {
	if v == nil {
		return Unknown
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// FormatFlightTime renders seconds as HH:MM:SS.
func FormatFlightTime(seconds *int) string {
	if seconds == nil {
		return Unknown
	}
	s := *seconds
	if s < 0 {
		s = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
