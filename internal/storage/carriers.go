package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/domain"
	apperrors "github.com/Shugur-Network/aisbridge/internal/errors"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// CarrierRegistry keeps the vessel-to-device mapping in tc_carriers. It is the
// identifier source for subscription sync and the resolver for dispatch.
type CarrierRegistry struct {
	db *DB
}

// NewCarrierRegistry returns a registry backed by db.
func NewCarrierRegistry(db *DB) *CarrierRegistry {
	return &CarrierRegistry{db: db}
}

var _ domain.CarrierStore = (*CarrierRegistry)(nil)

// ListDesiredIdentifiers returns every distinct carrier id.
func (r *CarrierRegistry) ListDesiredIdentifiers(ctx context.Context) ([]string, error) {
	metrics.DBOperations.WithLabelValues("carrier_list").Inc()
	rows, err := r.db.Query(ctx, `SELECT DISTINCT carrier_id FROM tc_carriers ORDER BY carrier_id`)
	if err != nil {
		return nil, apperrors.DatabaseError("list carrier ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperrors.DatabaseError("scan carrier ids", err)
	}
	return ids, nil
}

// LookupTargets returns the device ids registered under identifier.
func (r *CarrierRegistry) LookupTargets(ctx context.Context, identifier string) ([]int64, error) {
	metrics.DBOperations.WithLabelValues("lookup").Inc()
	rows, err := r.db.Query(ctx, `SELECT id FROM tc_carriers WHERE carrier_id = $1 ORDER BY id`, identifier)
	if err != nil {
		return nil, apperrors.DatabaseError("lookup targets", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, apperrors.DatabaseError("scan targets", err)
	}
	return ids, nil
}

// ListCarriers returns all registered carriers ordered by device id.
func (r *CarrierRegistry) ListCarriers(ctx context.Context) ([]domain.Carrier, error) {
	metrics.DBOperations.WithLabelValues("carrier_list").Inc()
	rows, err := r.db.Query(ctx, `SELECT id, carrier_id, type, created_at FROM tc_carriers ORDER BY id`)
	if err != nil {
		return nil, apperrors.DatabaseError("list carriers", err)
	}
	carriers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Carrier, error) {
		var c domain.Carrier
		var typ int
		err := row.Scan(&c.DeviceID, &c.CarrierID, &typ, &c.CreatedAt)
		c.Type = domain.CarrierType(typ)
		return c, err
	})
	if err != nil {
		return nil, apperrors.DatabaseError("scan carriers", err)
	}
	return carriers, nil
}

// AddCarrier registers a device under a carrier id.
func (r *CarrierRegistry) AddCarrier(ctx context.Context, c domain.Carrier) (domain.Carrier, error) {
	c, err := ValidateCarrier(c)
	if err != nil {
		return domain.Carrier{}, err
	}

	metrics.DBOperations.WithLabelValues("carrier_add").Inc()
	row, err := r.db.ExecuteQuery(ctx,
		`INSERT INTO tc_carriers (id, carrier_id, type) VALUES ($1, $2, $3) RETURNING created_at`,
		c.DeviceID, c.CarrierID, int(c.Type))
	if err != nil {
		return domain.Carrier{}, apperrors.DatabaseError("add carrier", err)
	}
	if err := row.Scan(&c.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.Carrier{}, apperrors.ConflictError(fmt.Sprintf("Carrier for device %d", c.DeviceID))
		}
		r.db.recordError("insert_failed", err)
		return domain.Carrier{}, apperrors.DatabaseError("add carrier", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

// RemoveCarrier deletes the carrier registered for deviceID.
func (r *CarrierRegistry) RemoveCarrier(ctx context.Context, deviceID int64) error {
	metrics.DBOperations.WithLabelValues("carrier_remove").Inc()
	tag, err := r.db.ExecuteCommand(ctx, `DELETE FROM tc_carriers WHERE id = $1`, deviceID)
	if err != nil {
		return apperrors.DatabaseError("remove carrier", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFoundError(fmt.Sprintf("Carrier for device %d", deviceID))
	}
	return nil
}

// ValidateCarrier checks and normalizes a carrier before it is stored.
func ValidateCarrier(c domain.Carrier) (domain.Carrier, error) {
	if c.DeviceID <= 0 {
		return c, apperrors.ValidationError("INVALID_DEVICE_ID", "id must be a positive device id")
	}
	c.CarrierID = strings.TrimSpace(c.CarrierID)
	if c.CarrierID == "" {
		return c, apperrors.ValidationError("MISSING_CARRIER_ID", "carrierId is required")
	}
	if strings.ContainsAny(c.CarrierID, " \t\r\n") {
		return c, apperrors.ValidationError("INVALID_CARRIER_ID", "carrierId must not contain whitespace")
	}
	if c.Type != domain.CarrierVessel {
		return c, apperrors.ValidationError("INVALID_CARRIER_TYPE", fmt.Sprintf("unsupported carrier type %d", c.Type))
	}
	c.CreatedAt = time.Time{}
	return c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
