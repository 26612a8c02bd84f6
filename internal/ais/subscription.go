package ais

import "sort"

// MessageTypePositionReport is the only message type the bridge subscribes to.
const MessageTypePositionReport = "PositionReport"

// WholeGlobe is the single bounding box used for every subscription. Filtering
// happens by MMSI, not by area.
var WholeGlobe = [][2][2]float64{{{-90, -180}, {90, 180}}}

// Subscription is the frame sent on connect and on every in-place update.
type Subscription struct {
	APIKey             string          `json:"APIKey"`
	BoundingBoxes      [][2][2]float64 `json:"BoundingBoxes"`
	FiltersShipMMSI    []string        `json:"FiltersShipMMSI"`
	FilterMessageTypes []string        `json:"FilterMessageTypes"`
}

// NewSubscription builds a subscription for the given identifiers, sorted so
// equal sets produce identical frames.
func NewSubscription(apiKey string, identifiers []string) Subscription {
	ids := append([]string(nil), identifiers...)
	sort.Strings(ids)
	return Subscription{
		APIKey:             apiKey,
		BoundingBoxes:      WholeGlobe,
		FiltersShipMMSI:    ids,
		FilterMessageTypes: []string{MessageTypePositionReport},
	}
}

// Encode renders the subscription frame.
func (s Subscription) Encode() ([]byte, error) {
	return json.Marshal(s)
}
