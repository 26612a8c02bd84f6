package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Shugur-Network/aisbridge/internal/ais"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeServer is a minimal aisstream stand-in. It records every subscription
// frame and exposes the server side of the latest connection.
type fakeServer struct {
	t      *testing.T
	srv    *httptest.Server
	subs   chan ais.Subscription
	connCh chan *websocket.Conn
	gone   chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	fs := &fakeServer{
		t:      t,
		subs:   make(chan ais.Subscription, 16),
		connCh: make(chan *websocket.Conn, 4),
		gone:   make(chan struct{}, 4),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.connCh <- conn
		defer func() { fs.gone <- struct{}{} }()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var sub ais.Subscription
			if json.Unmarshal(data, &sub) == nil {
				fs.subs <- sub
			}
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string { return "ws" + fs.srv.URL[4:] }

func (fs *fakeServer) conn() *websocket.Conn {
	select {
	case c := <-fs.connCh:
		return c
	case <-time.After(2 * time.Second):
		fs.t.Fatal("no connection accepted")
		return nil
	}
}

// waitGone blocks until the server side of a connection has been torn down.
func (fs *fakeServer) waitGone() {
	select {
	case <-fs.gone:
	case <-time.After(2 * time.Second):
		fs.t.Fatal("connection not closed")
	}
}

func (fs *fakeServer) nextSub() ais.Subscription {
	select {
	case s := <-fs.subs:
		return s
	case <-time.After(2 * time.Second):
		fs.t.Fatal("no subscription received")
		return ais.Subscription{}
	}
}

type recorder struct {
	mu      sync.Mutex
	reports []ais.PositionReport
	closes  []error
	gotOne  chan struct{}
	closed  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{gotOne: make(chan struct{}, 16), closed: make(chan struct{}, 4)}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnReport: func(p ais.PositionReport) {
			r.mu.Lock()
			r.reports = append(r.reports, p)
			r.mu.Unlock()
			r.gotOne <- struct{}{}
		},
		OnRemoteClose: func(err error) {
			r.mu.Lock()
			r.closes = append(r.closes, err)
			r.mu.Unlock()
			r.closed <- struct{}{}
		},
	}
}

func (r *recorder) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.closes)
}

func dialTest(t *testing.T, fs *fakeServer, ids []string, rec *recorder) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		URL:            fs.url(),
		APIKey:         "test-key",
		ConnectTimeout: 2 * time.Second,
		PingInterval:   time.Second,
	}, ids, rec.handlers(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialSendsSubscription(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c := dialTest(t, fs, []string{"987654321", "123456789"}, rec)

	sub := fs.nextSub()
	assert.Equal(t, "test-key", sub.APIKey)
	assert.Equal(t, []string{"123456789", "987654321"}, sub.FiltersShipMMSI)
	assert.Equal(t, []string{"PositionReport"}, sub.FilterMessageTypes)
	assert.Equal(t, ais.WholeGlobe, sub.BoundingBoxes)
	assert.True(t, c.IsOpen())
	assert.NotEmpty(t, c.ID())
}

func TestDialNotConfigured(t *testing.T) {
	_, err := Dial(context.Background(), Config{URL: "ws://x"}, nil, Handlers{}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDialUnreachable(t *testing.T) {
	fs := newFakeServer(t)
	url := fs.url()
	fs.srv.Close()

	_, err := Dial(context.Background(), Config{URL: url, APIKey: "k", ConnectTimeout: time.Second}, []string{"1"}, Handlers{}, nil)
	assert.Error(t, err)
}

func TestFramesAreParsedAndForwarded(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	dialTest(t, fs, []string{"123456789"}, rec)
	server := fs.conn()
	fs.nextSub()

	frames := []struct {
		kind int
		data string
	}{
		{websocket.TextMessage, `not json`},
		{websocket.TextMessage, `{"Message":{}}`},
		{websocket.BinaryMessage, `{"MetaData":{"MMSI":123456789,"time_utc":"2024-01-15 10:30:00 Z UTC"},"Message":{"PositionReport":{"Latitude":10,"Longitude":20,"Sog":5.2,"Cog":90,"TrueHeading":88}}}`},
		{websocket.TextMessage, `{"MetaData":{"MMSI":"123456789","time_utc":"garbage"},"Message":{"PositionReport":{"Latitude":11}}}`},
	}
	for _, f := range frames {
		require.NoError(t, server.WriteMessage(f.kind, []byte(f.data)))
	}

	for i := 0; i < 2; i++ {
		select {
		case <-rec.gotOne:
		case <-time.After(2 * time.Second):
			t.Fatal("report not forwarded")
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.reports, 2)
	assert.Equal(t, 10.0, rec.reports[0].Latitude)
	assert.Equal(t, 88, rec.reports[0].TrueHeading)
	assert.True(t, rec.reports[0].HasTimestamp())
	assert.Equal(t, 11.0, rec.reports[1].Latitude)
	assert.False(t, rec.reports[1].HasTimestamp())
	assert.Empty(t, rec.closes, "bad frames must not close the connection")
}

func TestUpdateSubscriptionResendsFullSet(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c := dialTest(t, fs, []string{"A"}, rec)
	fs.nextSub()

	require.NoError(t, c.UpdateSubscription([]string{"B", "A"}))
	assert.Equal(t, []string{"A", "B"}, fs.nextSub().FiltersShipMMSI)
}

func TestRemoteCloseInvokesCallbackOnce(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c := dialTest(t, fs, []string{"A"}, rec)
	server := fs.conn()

	_ = server.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second))
	_ = server.Close()

	select {
	case <-rec.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("remote close not reported")
	}
	<-c.Done()
	assert.False(t, c.IsOpen())
	assert.ErrorIs(t, c.UpdateSubscription([]string{"A"}), ErrClientClosed)

	_ = c.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.closeCount())
}

func TestLocalCloseDoesNotInvokeCallback(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c := dialTest(t, fs, []string{"A"}, rec)
	fs.conn()

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not exit")
	}
	assert.False(t, c.IsOpen())
	assert.Zero(t, rec.closeCount())
}

func TestDialClosesWhenSubscriptionSendFails(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()

	c, err := Dial(context.Background(), Config{
		URL:            fs.url(),
		APIKey:         "test-key",
		ConnectTimeout: 2 * time.Second,
		WriteTimeout:   time.Nanosecond,
	}, []string{"A"}, rec.handlers(), zaptest.NewLogger(t))

	require.Error(t, err)
	assert.Nil(t, c)
	fs.waitGone()
	assert.Empty(t, fs.subs)
	assert.Zero(t, rec.closeCount(), "dial failures are not remote closes")
}

func TestUpdateSubscriptionFailureClosesAndNotifies(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	c := dialTest(t, fs, []string{"A"}, rec)
	fs.nextSub()

	c.writeMu.Lock()
	c.cfg.WriteTimeout = time.Nanosecond
	c.writeMu.Unlock()

	require.Error(t, c.UpdateSubscription([]string{"A", "B"}))
	assert.False(t, c.IsOpen())

	select {
	case <-rec.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("failed send not reported as a close")
	}
	fs.waitGone()
	assert.ErrorIs(t, c.UpdateSubscription([]string{"A"}), ErrClientClosed)
	assert.Equal(t, 1, rec.closeCount())
}

func TestBinaryFrameWithInvalidUTF8IsParsed(t *testing.T) {
	fs := newFakeServer(t)
	rec := newRecorder()
	dialTest(t, fs, []string{"123456789"}, rec)
	server := fs.conn()
	fs.nextSub()

	frame := []byte(`{"MetaData":{"MMSI":123456789,"ShipName":"` + "\xff\xfe" + `"},"Message":{"PositionReport":{"Latitude":12,"TrueHeading":88.0}}}`)
	require.NoError(t, server.WriteMessage(websocket.BinaryMessage, frame))

	select {
	case <-rec.gotOne:
	case <-time.After(2 * time.Second):
		t.Fatal("report not forwarded")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "123456789", rec.reports[0].Identifier)
	assert.Equal(t, 12.0, rec.reports[0].Latitude)
	assert.Equal(t, 88, rec.reports[0].TrueHeading)
}
