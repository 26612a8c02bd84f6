// Package ais decodes aisstream.io frames into position reports and builds
// the subscription frames sent upstream.
package ais

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotAPosition is returned for well-formed frames that carry no position report.
var ErrNotAPosition = errors.New("ais: frame is not a position report")

// ParseError reports a frame that could not be decoded.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ais: parse frame: %s: %v", e.Reason, e.Err)
	}
	return "ais: parse frame: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// PositionReport is one decoded vessel position. Timestamp is the zero time
// when the frame carried none or it could not be parsed.
type PositionReport struct {
	Identifier       string
	Latitude         float64
	Longitude        float64
	SpeedOverGround  float64
	CourseOverGround float64
	TrueHeading      int
	Timestamp        time.Time
}

// HasTimestamp reports whether the upstream fix time is known.
func (r PositionReport) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

// Parse decodes a single frame. It returns ErrNotAPosition when the frame has no
// Message.PositionReport and a *ParseError when the frame is not a valid envelope.
// An unparseable time_utc does not fail the frame.
func Parse(frame []byte) (PositionReport, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return PositionReport{}, pe
		}
		return PositionReport{}, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if env.Message == nil || env.Message.PositionReport == nil {
		return PositionReport{}, ErrNotAPosition
	}
	if env.MetaData == nil || strings.TrimSpace(string(env.MetaData.MMSI)) == "" {
		return PositionReport{}, &ParseError{Reason: "missing MetaData.MMSI"}
	}

	pr := env.Message.PositionReport
	report := PositionReport{
		Identifier:       strings.TrimSpace(string(env.MetaData.MMSI)),
		Latitude:         pr.Latitude,
		Longitude:        pr.Longitude,
		SpeedOverGround:  pr.Sog,
		CourseOverGround: pr.Cog,
		TrueHeading:      int(pr.TrueHeading),
	}
	if ts, err := ParseTimestamp(env.MetaData.TimeUTC); err == nil {
		report.Timestamp = ts
	}
	return report, nil
}
