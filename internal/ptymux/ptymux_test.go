package ptymux

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplexer_RegisterListClose(t *testing.T) {
	m := New(t.TempDir())

	s1 := &Session{ID: "one", Mode: ModeLocal, done: make(chan struct{})}
	s2 := &Session{ID: "two", Mode: ModeRemote, done: make(chan struct{})}
	m.register(s1)
	m.register(s2)

	ids := m.List()
	assert.ElementsMatch(t, []string{"one", "two"}, ids)

	require.True(t, m.Close("one"))
	assert.ElementsMatch(t, []string{"two"}, m.List())

	require.False(t, m.Close("one"), "closing an already-removed id reports false")
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := &Session{ID: "x", done: make(chan struct{})}
	s.close("first")
	require.NotPanics(t, func() { s.close("second") })
}

func TestControlFrame_RecognizesResizeAndPing(t *testing.T) {
	var cf controlFrame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"resize","cols":100,"rows":40}`), &cf))
	assert.Equal(t, "resize", cf.Type)
	assert.Equal(t, 100, cf.Cols)
	assert.Equal(t, 40, cf.Rows)

	require.NoError(t, json.Unmarshal([]byte(`{"type":"ping"}`), &cf))
	assert.Equal(t, "ping", cf.Type)
}

func TestIsExpectedClose(t *testing.T) {
	assert.True(t, isExpectedClose(nil))
	assert.True(t, isExpectedClose(io.EOF))
	assert.True(t, isExpectedClose(context.Canceled))
	assert.False(t, isExpectedClose(errors.New("boom")))
}
