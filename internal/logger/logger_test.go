package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitRejectsBadOptions(t *testing.T) {
	assert.Error(t, Init(WithFormat("xml")))
	assert.Error(t, Init(WithLevel("loud")))
}

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "aisbridge.log")
	require.NoError(t, Init(WithLevel("debug"), WithFormat("json"), WithFile(path), WithComponent("test")))

	New("stream").Info("connected", zap.String("conn_id", "abc"))
	require.NoError(t, Shutdown())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"logger":"stream"`)
	assert.Contains(t, string(data), `"conn_id":"abc"`)
}

func TestUpdateLevel(t *testing.T) {
	require.NoError(t, Init(WithLevel("info"), WithFile(filepath.Join(t.TempDir(), "x.log"))))
	defer func() { _ = Shutdown() }()

	require.NoError(t, UpdateLevel("error"))
	assert.False(t, New("x").Core().Enabled(zap.WarnLevel))
	assert.Error(t, UpdateLevel("nope"))
}

func TestFromContextAddsIDs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := WithConnID(WithRequestID(context.Background(), "r1"), "c1")
	FromContext(ctx, base).Info("tagged")
	assert.Same(t, base, FromContext(context.Background(), base))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "r1", fields["request_id"])
	assert.Equal(t, "c1", fields["conn_id"])
}

func TestFromContextWithoutRoot(t *testing.T) {
	require.NoError(t, Init(WithFile(filepath.Join(t.TempDir(), "x.log"))))
	assert.NotNil(t, FromContext(WithConnID(context.Background(), "c1"), nil))
	require.NoError(t, Shutdown())

	assert.NotNil(t, FromContext(context.Background(), nil))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
