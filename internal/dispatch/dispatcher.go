// Package dispatch fans decoded AIS reports out to the devices tracking them.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/ais"
	"github.com/Shugur-Network/aisbridge/internal/domain"
	apperrors "github.com/Shugur-Network/aisbridge/internal/errors"
	"github.com/Shugur-Network/aisbridge/internal/logger"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
	"github.com/Shugur-Network/aisbridge/internal/workers"
	"go.uber.org/zap"
)

// Options configure a Dispatcher.
type Options struct {
	Workers       int
	QueueSize     int
	ShutdownGrace time.Duration
	// OnUnresolved is called with identifiers that resolve to no device.
	OnUnresolved func(identifier string)
	Logger       *zap.Logger
	Now          func() time.Time
}

type job struct {
	report   ais.PositionReport
	received time.Time
}

// Dispatcher resolves reports to devices and delivers one position per device.
type Dispatcher struct {
	resolver     domain.TargetResolver
	sink         domain.PositionSink
	pool         *workers.WorkerPool[job]
	grace        time.Duration
	onUnresolved func(string)
	now          func() time.Time
	logger       *zap.Logger
}

// New creates a dispatcher. Start launches its workers.
func New(resolver domain.TargetResolver, sink domain.PositionSink, opts Options) *Dispatcher {
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.New("dispatch")
	}
	d := &Dispatcher{
		resolver:     resolver,
		sink:         sink,
		grace:        opts.ShutdownGrace,
		onUnresolved: opts.OnUnresolved,
		now:          opts.Now,
		logger:       opts.Logger,
	}
	d.pool = workers.NewWorkerPool(opts.Workers, opts.QueueSize, d.process,
		workers.WithErrorHandler(d.handleFailure),
		workers.WithQueueGauge[job](metrics.DispatchQueueDepth),
	)
	return d
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) error {
	return d.pool.Start(ctx)
}

// Submit queues a report without blocking and reports whether it was accepted.
func (d *Dispatcher) Submit(report ais.PositionReport) bool {
	err := d.pool.Submit(job{report: report, received: d.now()})
	switch {
	case err == nil:
		metrics.DispatchQueued.Inc()
		return true
	case errors.Is(err, workers.ErrQueueFull):
		metrics.DispatchDropped.WithLabelValues("queue_full").Inc()
		d.logger.Warn("Dispatch queue full, dropping report", zap.String("mmsi", report.Identifier))
	default:
		metrics.DispatchDropped.WithLabelValues("stopped").Inc()
		d.logger.Debug("Dispatcher not accepting reports", zap.String("mmsi", report.Identifier), zap.Error(err))
	}
	return false
}

// Stop drains queued reports for up to the shutdown grace, then cancels.
func (d *Dispatcher) Stop() error {
	err := d.pool.Stop(d.grace)
	if err != nil {
		d.logger.Warn("Dispatcher did not drain in time", zap.Duration("grace", d.grace), zap.Error(err))
	}
	return err
}

// Stats returns worker pool statistics.
func (d *Dispatcher) Stats() workers.Stats {
	return d.pool.Stats()
}

func (d *Dispatcher) process(ctx context.Context, j job) error {
	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	id := j.report.Identifier
	targets, err := d.resolver.LookupTargets(ctx, id)
	if err != nil {
		metrics.DispatchFailures.WithLabelValues("resolve").Inc()
		err = apperrors.RegistryError("lookup targets", err)
		d.logger.Error("Failed to resolve AIS identifier", zap.String("mmsi", id), zap.Error(err))
		return err
	}
	if len(targets) == 0 {
		metrics.UnresolvedIdentifiers.Inc()
		d.logger.Warn("No device found for MMSI", zap.String("mmsi", id))
		if d.onUnresolved != nil {
			d.onUnresolved(id)
		}
		return nil
	}

	var errs []error
	for _, deviceID := range targets {
		pos := BuildPosition(j.report, deviceID, d.now(), j.received)
		if err := d.sink.Deliver(ctx, pos); err != nil {
			metrics.DispatchFailures.WithLabelValues("deliver").Inc()
			err = apperrors.DeliveryError(deviceID, err)
			d.logger.Error("Failed to deliver position",
				zap.String("mmsi", id),
				zap.Int64("device_id", deviceID),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		metrics.IncrementRecordsDelivered()
	}
	return errors.Join(errs...)
}

// handleFailure only needs to report panics; process logs its own errors.
func (d *Dispatcher) handleFailure(j job, err error) {
	var pe *workers.PanicError
	if !errors.As(err, &pe) {
		return
	}
	metrics.DispatchFailures.WithLabelValues("panic").Inc()
	d.logger.Error("Recovered panic while dispatching report",
		zap.String("mmsi", j.report.Identifier),
		zap.Any("panic", pe.Value))
}

// BuildPosition maps a report onto the record delivered for one device. When
// the report carries no timestamp, fallback is used as device and fix time.
func BuildPosition(r ais.PositionReport, deviceID int64, serverTime, fallback time.Time) domain.Position {
	fix := fallback
	if r.HasTimestamp() {
		fix = r.Timestamp
	}
	return domain.Position{
		Protocol:   domain.ProtocolAIS,
		DeviceID:   deviceID,
		ServerTime: serverTime,
		DeviceTime: fix,
		FixTime:    fix,
		Valid:      true,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Altitude:   0,
		Speed:      r.SpeedOverGround,
		Course:     r.CourseOverGround,
		Attributes: map[string]any{
			domain.AttrType:        domain.ProtocolAIS,
			domain.AttrMMSI:        r.Identifier,
			domain.AttrTrueHeading: r.TrueHeading,
		},
	}
}
