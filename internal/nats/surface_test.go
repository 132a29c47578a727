package nats

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agusx1211/spatial-eq/internal/control"
)

type fakeConn struct {
	handlers  map[string]nats.MsgHandler
	published map[string][][]byte
	subErr    error
	drained   bool
	closed    bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		handlers:  map[string]nats.MsgHandler{},
		published: map[string][][]byte{},
	}
}

func (f *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.handlers[subject] = cb
	return &nats.Subscription{Subject: subject}, nil
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.published[subject] = append(f.published[subject], data)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func (f *fakeConn) Close() { f.closed = true }

func (f *fakeConn) request(t *testing.T, subject, data string) map[string]interface{} {
	t.Helper()
	h, ok := f.handlers[subject]
	require.True(t, ok, subject)
	h(&nats.Msg{Subject: subject, Reply: "_INBOX.1", Data: []byte(data)})

	replies := f.published["_INBOX.1"]
	require.NotEmpty(t, replies)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(replies[len(replies)-1], &out))
	return out
}

func newTestSurface(t *testing.T, state StateFunc) (*Surface, *fakeConn, chan control.Command) {
	t.Helper()
	conn := newFakeConn()
	cmds := make(chan control.Command, 1)
	s := NewSurface(conn, "eq.living", state, cmds)
	require.NoError(t, s.Start())
	return s, conn, cmds
}

func TestCommandIsQueued(t *testing.T) {
	_, conn, cmds := newTestSurface(t, nil)

	resp := conn.request(t, "eq.living.command", `{"action":"set_band_gain","index":2,"value":-3}`)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, control.Command{Action: control.ActionBandGain, Index: 2, Value: -3}, <-cmds)
}

func TestCommandErrors(t *testing.T) {
	_, conn, cmds := newTestSurface(t, nil)

	resp := conn.request(t, "eq.living.command", `not json`)
	assert.Contains(t, resp["error"], "malformed")

	resp = conn.request(t, "eq.living.command", `{"value":1}`)
	assert.Equal(t, "missing action", resp["error"])

	cmds <- control.Command{}
	resp = conn.request(t, "eq.living.command", `{"action":"reset"}`)
	assert.Equal(t, "busy", resp["error"])
}

func TestFireAndForgetCommand(t *testing.T) {
	_, conn, cmds := newTestSurface(t, nil)
	conn.handlers["eq.living.command"](&nats.Msg{Data: []byte(`{"action":"stop_all"}`)})

	assert.Equal(t, control.ActionStopAll, (<-cmds).Action)
	assert.Empty(t, conn.published)
}

func TestStateRequest(t *testing.T) {
	st := control.State{Power: true, Volume: 0.5, EqPreset: "Flat"}
	var fail error
	_, conn, _ := newTestSurface(t, func() (control.State, error) { return st, fail })

	resp := conn.request(t, "eq.living.state.get", "")
	assert.Equal(t, true, resp["power"])
	assert.Equal(t, "Flat", resp["eq_preset"])

	fail = errors.New("engine not initialized")
	resp = conn.request(t, "eq.living.state.get", "")
	assert.Equal(t, "engine not initialized", resp["error"])
}

func TestPublishState(t *testing.T) {
	s, conn, _ := newTestSurface(t, nil)
	s.PublishState(control.State{SpatialPreset: "Stadium"})

	require.Len(t, conn.published["eq.living.state"], 1)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(conn.published["eq.living.state"][0], &doc))
	assert.Equal(t, "Stadium", doc["spatial_preset"])
}

func TestStartFailsOnSubscribeError(t *testing.T) {
	conn := newFakeConn()
	conn.subErr = errors.New("permissions violation")
	s := NewSurface(conn, "eq", nil, make(chan control.Command))
	assert.Error(t, s.Start())
}

func TestCloseDrains(t *testing.T) {
	s, conn, _ := newTestSurface(t, nil)
	s.Close()
	assert.True(t, conn.drained)
	assert.False(t, conn.closed)
}
