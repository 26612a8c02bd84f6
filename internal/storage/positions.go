package storage

import (
	"context"

	"github.com/Shugur-Network/aisbridge/internal/domain"
	apperrors "github.com/Shugur-Network/aisbridge/internal/errors"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PositionStore writes normalized positions to tc_positions. Safe for
// concurrent use; every call borrows its own pool connection.
type PositionStore struct {
	db *DB
}

// NewPositionStore returns a sink backed by db.
func NewPositionStore(db *DB) *PositionStore {
	return &PositionStore{db: db}
}

var _ domain.PositionSink = (*PositionStore)(nil)

const insertPosition = `INSERT INTO tc_positions
	(protocol, deviceid, servertime, devicetime, fixtime, valid,
	 latitude, longitude, altitude, speed, course, attributes)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Deliver stores one position.
func (s *PositionStore) Deliver(ctx context.Context, p domain.Position) error {
	attrs, err := encodeAttributes(p.Attributes)
	if err != nil {
		return apperrors.InternalError("encode position attributes", err)
	}

	metrics.DBOperations.WithLabelValues("position_insert").Inc()
	_, err = s.db.ExecuteCommand(ctx, insertPosition,
		p.Protocol, p.DeviceID, p.ServerTime, p.DeviceTime, p.FixTime, p.Valid,
		p.Latitude, p.Longitude, p.Altitude, p.Speed, p.Course, attrs)
	if err != nil {
		return apperrors.DatabaseError("insert position", err)
	}
	return nil
}

// encodeAttributes renders attributes as a JSON object; nil becomes {}.
func encodeAttributes(attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
