package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/ais"
	"github.com/Shugur-Network/aisbridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeResolver struct {
	targets map[string][]int64
	err     error
	panicOn string
}

func (r *fakeResolver) LookupTargets(_ context.Context, id string) ([]int64, error) {
	if id == r.panicOn {
		panic("resolver exploded")
	}
	return r.targets[id], r.err
}

type recordingSink struct {
	mu        sync.Mutex
	positions []domain.Position
	failFor   int64
}

func (s *recordingSink) Deliver(_ context.Context, p domain.Position) error {
	if p.DeviceID == s.failFor {
		return errors.New("sink unavailable")
	}
	s.mu.Lock()
	s.positions = append(s.positions, p)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) snapshot() []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Position(nil), s.positions...)
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDispatcher(t *testing.T, r domain.TargetResolver, s domain.PositionSink, log *zap.Logger, onMiss func(string)) *Dispatcher {
	t.Helper()
	d := New(r, s, Options{
		Workers:       2,
		QueueSize:     16,
		ShutdownGrace: time.Second,
		OnUnresolved:  onMiss,
		Logger:        log,
		Now:           func() time.Time { return fixedNow },
	})
	require.NoError(t, d.Start(context.Background()))
	return d
}

func TestFrameToSingleRecord(t *testing.T) {
	frame := []byte(`{"MessageType":"PositionReport",
		"MetaData":{"MMSI":123456789,"time_utc":"2024-01-01 10:00:00.123456789 +0000 UTC"},
		"Message":{"PositionReport":{"Latitude":59.9,"Longitude":10.7,"Sog":12.3,"Cog":45.6,"TrueHeading":44}}}`)
	report, err := ais.Parse(frame)
	require.NoError(t, err)

	sink := &recordingSink{}
	d := newTestDispatcher(t, &fakeResolver{targets: map[string][]int64{"123456789": {42}}}, sink, zap.NewNop(), nil)
	require.True(t, d.Submit(report))
	require.NoError(t, d.Stop())

	got := sink.snapshot()
	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, "AIS", p.Protocol)
	assert.Equal(t, int64(42), p.DeviceID)
	assert.True(t, p.Valid)
	assert.Equal(t, 59.9, p.Latitude)
	assert.Equal(t, 10.7, p.Longitude)
	assert.Equal(t, 12.3, p.Speed)
	assert.Equal(t, 45.6, p.Course)
	assert.Zero(t, p.Altitude)
	assert.Equal(t, fixedNow, p.ServerTime)
	want := time.Date(2024, 1, 1, 10, 0, 0, 123456789, time.UTC)
	assert.True(t, want.Equal(p.FixTime))
	assert.True(t, want.Equal(p.DeviceTime))
	assert.Equal(t, map[string]any{"type": "AIS", "MMSI": "123456789", "trueHeading": 44}, p.Attributes)
}

func TestMultipleTargetsEachGetARecord(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(t, &fakeResolver{targets: map[string][]int64{"1": {10, 11, 12}}}, sink, zap.NewNop(), nil)
	require.True(t, d.Submit(ais.PositionReport{Identifier: "1"}))
	require.NoError(t, d.Stop())

	ids := []int64{}
	for _, p := range sink.snapshot() {
		ids = append(ids, p.DeviceID)
	}
	assert.ElementsMatch(t, []int64{10, 11, 12}, ids)
}

func TestUnresolvedIdentifierLogsOneWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var mu sync.Mutex
	var missed []string

	sink := &recordingSink{}
	d := newTestDispatcher(t, &fakeResolver{}, sink, zap.New(core), func(id string) {
		mu.Lock()
		missed = append(missed, id)
		mu.Unlock()
	})
	require.True(t, d.Submit(ais.PositionReport{Identifier: "999"}))
	require.NoError(t, d.Stop())

	assert.Empty(t, sink.snapshot())
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "999", entry.ContextMap()["mmsi"])
	assert.Equal(t, []string{"999"}, missed)
}

func TestPanicIsIsolatedToOneReport(t *testing.T) {
	sink := &recordingSink{}
	r := &fakeResolver{targets: map[string][]int64{"ok": {1}}, panicOn: "bad"}
	d := newTestDispatcher(t, r, sink, zap.NewNop(), nil)

	require.True(t, d.Submit(ais.PositionReport{Identifier: "bad"}))
	require.True(t, d.Submit(ais.PositionReport{Identifier: "ok"}))
	require.NoError(t, d.Stop())

	assert.Len(t, sink.snapshot(), 1)
	assert.Equal(t, int64(1), d.Stats().Failed)
}

func TestDeliveryFailureDoesNotStopOtherTargets(t *testing.T) {
	sink := &recordingSink{failFor: 2}
	d := newTestDispatcher(t, &fakeResolver{targets: map[string][]int64{"1": {1, 2, 3}}}, sink, zap.NewNop(), nil)
	require.True(t, d.Submit(ais.PositionReport{Identifier: "1"}))
	require.NoError(t, d.Stop())

	assert.Len(t, sink.snapshot(), 2)
}

func TestResolverErrorDropsReport(t *testing.T) {
	sink := &recordingSink{}
	d := newTestDispatcher(t, &fakeResolver{err: errors.New("db down")}, sink, zap.NewNop(), nil)
	require.True(t, d.Submit(ais.PositionReport{Identifier: "1"}))
	require.NoError(t, d.Stop())

	assert.Empty(t, sink.snapshot())
	assert.Equal(t, int64(1), d.Stats().Failed)
}

func TestSubmitAfterStopIsRejected(t *testing.T) {
	d := newTestDispatcher(t, &fakeResolver{}, &recordingSink{}, zap.NewNop(), nil)
	require.NoError(t, d.Stop())
	assert.False(t, d.Submit(ais.PositionReport{Identifier: "1"}))
}

func TestBuildPositionFallsBackToReceiptTime(t *testing.T) {
	received := time.Date(2024, 5, 5, 5, 5, 5, 0, time.UTC)
	p := BuildPosition(ais.PositionReport{Identifier: "7", TrueHeading: 511}, 9, fixedNow, received)

	assert.Equal(t, received, p.FixTime)
	assert.Equal(t, received, p.DeviceTime)
	assert.Equal(t, fixedNow, p.ServerTime)
	assert.Equal(t, 511, p.Attributes["trueHeading"])
}
