package domain

import (
	"context"
	"time"
)

// CarrierType classifies a tracked carrier.
type CarrierType int

const (
	// CarrierVessel is a ship identified by MMSI.
	CarrierVessel CarrierType = 0
)

func (t CarrierType) String() string {
	switch t {
	case CarrierVessel:
		return "VESSEL"
	default:
		return "UNKNOWN"
	}
}

// Carrier links a tracked device to the external identifier it reports under.
type Carrier struct {
	DeviceID  int64       `json:"id"`
	CarrierID string      `json:"carrierId"`
	Type      CarrierType `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
}

// IdentifierSource lists the identifiers that should currently be tracked.
type IdentifierSource interface {
	ListDesiredIdentifiers(ctx context.Context) ([]string, error)
}

// TargetResolver maps an identifier to the device ids tracking it.
type TargetResolver interface {
	LookupTargets(ctx context.Context, identifier string) ([]int64, error)
}

// PositionSink accepts normalized positions. Implementations must be safe for
// concurrent use.
type PositionSink interface {
	Deliver(ctx context.Context, p Position) error
}

// CarrierStore manages the carrier registry.
type CarrierStore interface {
	IdentifierSource
	TargetResolver
	ListCarriers(ctx context.Context) ([]Carrier, error)
	AddCarrier(ctx context.Context, c Carrier) (Carrier, error)
	RemoveCarrier(ctx context.Context, deviceID int64) error
}
