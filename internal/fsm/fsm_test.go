package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type light string
type signal string

const (
	red    light = "red"
	green  light = "green"
	yellow light = "yellow"

	next  signal = "next"
	fault signal = "fault"
)

func table(action func(context.Context, light, light, signal) error) []Transition[light, signal] {
	return []Transition[light, signal]{
		{From: red, Event: next, To: green, Action: action},
		{From: green, Event: next, To: yellow},
		{From: yellow, Event: next, To: red},
	}
}

func TestFireFollowsTable(t *testing.T) {
	var seen []light
	m, err := New(red, table(func(_ context.Context, from, to light, _ signal) error {
		seen = append(seen, from, to)
		return nil
	}))
	require.NoError(t, err)

	for _, want := range []light{green, yellow, red} {
		got, err := m.Fire(context.Background(), next)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, []light{red, green}, seen)
	assert.Equal(t, red, m.State())
}

func TestFireRejectsUnknownEdge(t *testing.T) {
	m, err := New(red, table(nil))
	require.NoError(t, err)

	assert.False(t, m.Can(fault))
	got, err := m.Fire(context.Background(), fault)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, red, got)
	assert.Contains(t, err.Error(), "state=red event=fault")
}

func TestGuardAndActionAbort(t *testing.T) {
	stop := errors.New("stop")
	m, err := New(red, []Transition[light, signal]{
		{From: red, Event: next, To: green, Guard: func(context.Context, light, signal) error { return stop }},
		{From: green, Event: next, To: yellow, Action: func(context.Context, light, light, signal) error { return stop }},
	})
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), next)
	require.ErrorIs(t, err, stop)
	assert.Equal(t, red, m.State())
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(red, []Transition[light, signal]{
		{From: red, Event: next, To: green},
		{From: red, Event: next, To: yellow},
	})
	require.Error(t, err)
}
