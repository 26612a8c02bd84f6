package ais

import (
	"bytes"
	"math"
	"strconv"
)

// envelope is the aisstream.io frame. Fields the bridge does not use are ignored.
type envelope struct {
	MetaData *metaData `json:"MetaData"`
	Message  *message  `json:"Message"`
}

type metaData struct {
	MMSI    mmsi   `json:"MMSI"`
	TimeUTC string `json:"time_utc"`
}

type message struct {
	PositionReport *positionReport `json:"PositionReport"`
}

type positionReport struct {
	Latitude    float64 `json:"Latitude"`
	Longitude   float64 `json:"Longitude"`
	Sog         float64 `json:"Sog"`
	Cog         float64 `json:"Cog"`
	TrueHeading heading `json:"TrueHeading"`
}

// mmsi accepts the identifier as a JSON string or a bare number.
type mmsi string

func (m *mmsi) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*m = mmsi(s)
		return nil
	}
	if _, err := strconv.ParseUint(string(b), 10, 64); err != nil {
		return &ParseError{Reason: "MMSI is not an integer", Err: err}
	}
	*m = mmsi(b)
	return nil
}

// heading accepts a whole or fractional number, or one quoted as a string.
// Fractions are truncated toward zero.
type heading int

func (h *heading) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*h = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = unq
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt32 || f < math.MinInt32 {
		return &ParseError{Reason: "TrueHeading is not a number", Err: err}
	}
	*h = heading(math.Trunc(f))
	return nil
}
