package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type listener struct {
	calls *[]string
	name  string
}

func TestEmitter_FiresInRegistrationOrder(t *testing.T) {
	e := New[*listener]()
	var calls []string
	a := &listener{calls: &calls, name: "a"}
	b := &listener{calls: &calls, name: "b"}
	c := &listener{calls: &calls, name: "c"}
	e.Add(a)
	e.Add(b)
	e.Add(c)

	e.Fire(func(l *listener) { *l.calls = append(*l.calls, l.name) })

	require.Equal(t, []string{"a", "b", "c"}, calls)
}

func TestEmitter_Remove(t *testing.T) {
	e := New[*listener]()
	var calls []string
	a := &listener{calls: &calls, name: "a"}
	b := &listener{calls: &calls, name: "b"}
	e.Add(a)
	e.Add(b)
	e.Remove(a)

	e.Fire(func(l *listener) { *l.calls = append(*l.calls, l.name) })

	require.Equal(t, []string{"b"}, calls)
	require.Equal(t, 1, e.Len())
}

func TestEmitter_ListenerRemovesItselfDuringFire(t *testing.T) {
	e := New[*listener]()
	var calls []string
	a := &listener{calls: &calls, name: "a"}
	b := &listener{calls: &calls, name: "b"}
	e.Add(a)
	e.Add(b)

	// The in-flight fan-out still reaches b; the next one does not
	// reach a.
	e.Fire(func(l *listener) {
		*l.calls = append(*l.calls, l.name)
		if l.name == "a" {
			e.Remove(a)
		}
	})
	require.Equal(t, []string{"a", "b"}, calls)

	calls = nil
	e.Fire(func(l *listener) { *l.calls = append(*l.calls, l.name) })
	require.Equal(t, []string{"b"}, calls)
}

func TestEmitter_RemoveAllDuringFire(t *testing.T) {
	e := New[*listener]()
	var calls []string
	a := &listener{calls: &calls, name: "a"}
	b := &listener{calls: &calls, name: "b"}
	e.Add(a)
	e.Add(b)

	e.Fire(func(l *listener) {
		*l.calls = append(*l.calls, l.name)
		e.RemoveAll()
	})

	require.Equal(t, []string{"a", "b"}, calls)
	require.Equal(t, 0, e.Len())
}
