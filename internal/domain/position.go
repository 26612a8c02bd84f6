package domain

import "time"

// ProtocolAIS tags every record produced from the AIS stream.
const ProtocolAIS = "AIS"

// Attribute keys carried on AIS positions.
const (
	AttrType        = "type"
	AttrMMSI        = "MMSI"
	AttrTrueHeading = "trueHeading"
)

// Position is the normalized record handed to the tracking pipeline.
type Position struct {
	Protocol   string         `json:"protocol"`
	DeviceID   int64          `json:"deviceId"`
	ServerTime time.Time      `json:"serverTime"`
	DeviceTime time.Time      `json:"deviceTime"`
	FixTime    time.Time      `json:"fixTime"`
	Valid      bool           `json:"valid"`
	Latitude   float64        `json:"latitude"`
	Longitude  float64        `json:"longitude"`
	Altitude   float64        `json:"altitude"`
	Speed      float64        `json:"speed"`
	Course     float64        `json:"course"`
	Attributes map[string]any `json:"attributes"`
}
