package shutdown

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsInReverseOrderOnce(t *testing.T) {
	m := New(time.Second)
	m.SetOutput(io.Discard)

	var order []string
	m.Register("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.Register("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown())

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestShutdownCollectsErrors(t *testing.T) {
	m := New(time.Second)
	m.SetOutput(io.Discard)

	boom := errors.New("boom")
	m.Register("db", func(context.Context) error { return boom })
	m.Register("ok", func(context.Context) error { return nil })

	err := m.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "db")
}

type closer struct{ closed bool }

func (c *closer) Close() error {
	c.closed = true
	return nil
}

func TestCloseResource(t *testing.T) {
	c := &closer{}
	require.NoError(t, CloseResource(c)(context.Background()))
	assert.True(t, c.closed)
}
