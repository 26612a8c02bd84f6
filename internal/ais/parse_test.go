package ais

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const positionFrame = `{
  "MessageType": "PositionReport",
  "MetaData": {"MMSI": 123456789, "ShipName": "TEST", "time_utc": "2024-01-15 10:30:00 Z UTC"},
  "Message": {"PositionReport": {
    "Latitude": 10.0, "Longitude": 20.0, "Sog": 5.2, "Cog": 90.0, "TrueHeading": 88,
    "NavigationalStatus": 0, "Valid": true
  }}
}`

func TestParsePositionReport(t *testing.T) {
	report, err := Parse([]byte(positionFrame))
	require.NoError(t, err)

	assert.Equal(t, "123456789", report.Identifier)
	assert.Equal(t, 10.0, report.Latitude)
	assert.Equal(t, 20.0, report.Longitude)
	assert.Equal(t, 5.2, report.SpeedOverGround)
	assert.Equal(t, 90.0, report.CourseOverGround)
	assert.Equal(t, 88, report.TrueHeading)
	require.True(t, report.HasTimestamp())
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), report.Timestamp)
}

func TestParseStringMMSI(t *testing.T) {
	report, err := Parse([]byte(`{"MetaData":{"MMSI":"211000001"},"Message":{"PositionReport":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, "211000001", report.Identifier)
	assert.False(t, report.HasTimestamp())
}

func TestParseNotAPosition(t *testing.T) {
	for _, frame := range []string{
		`{"Message":{}}`,
		`{}`,
		`{"MetaData":{"MMSI":1},"Message":{"ShipStaticData":{"Name":"X"}}}`,
	} {
		_, err := Parse([]byte(frame))
		assert.ErrorIs(t, err, ErrNotAPosition, frame)
	}
}

func TestParseErrors(t *testing.T) {
	for _, frame := range []string{
		`not json`,
		`{"Message":`,
		`{"Message":{"PositionReport":{}}}`,
		`{"MetaData":{"MMSI":"  "},"Message":{"PositionReport":{}}}`,
		`{"MetaData":{"MMSI":1},"Message":{"PositionReport":{"Latitude":"north"}}}`,
	} {
		_, err := Parse([]byte(frame))
		var pe *ParseError
		assert.True(t, errors.As(err, &pe), "frame %q: got %v", frame, err)
		assert.False(t, errors.Is(err, ErrNotAPosition))
	}
}

func TestParseBadTimestampKeepsReport(t *testing.T) {
	report, err := Parse([]byte(`{"MetaData":{"MMSI":1,"time_utc":"yesterday"},"Message":{"PositionReport":{"Latitude":1}}}`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, report.Latitude)
	assert.False(t, report.HasTimestamp())
}

func TestParseTimestamp(t *testing.T) {
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-15 10:30:00 Z UTC", base},
		{"2024-01-15 10:30:00 +0000 UTC", base},
		{"2024-01-15 10:30:00.5 +0000 UTC", base.Add(500 * time.Millisecond)},
		{"2024-01-15 10:30:00.123456789 +0000 UTC", base.Add(123456789 * time.Nanosecond)},
		{"2024-01-15 11:30:00 +0100 CET", base},
		{"2024-01-15 12:30:00 +0200 UTC", base},
		{"2024-01-15 05:30:00 -0500 UTC", base},
		{"2024-01-15 10:30:00 UTC", base},
		{"2024-01-15  10:30:00   +0000  UTC ", base},
		{"2024-01-15T10:30:00Z", base},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseTimestampFailures(t *testing.T) {
	for _, in := range []string{"", "   ", "15/01/2024", "2024-01-15", "2024-01-15 10:30:00 +0000 UTC extra"} {
		_, err := ParseTimestamp(in)
		assert.Error(t, err, in)
	}
}

func TestParseTrueHeadingForms(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`88`, 88},
		{`88.0`, 88},
		{`88.9`, 88},
		{`"511"`, 511},
		{`null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			frame := `{"MetaData":{"MMSI":1},"Message":{"PositionReport":{"TrueHeading":` + tt.raw + `}}}`
			report, err := Parse([]byte(frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, report.TrueHeading)
		})
	}

	_, err := Parse([]byte(`{"MetaData":{"MMSI":1},"Message":{"PositionReport":{"TrueHeading":"east"}}}`))
	var pe *ParseError
	assert.True(t, errors.As(err, &pe), "got %v", err)
}
