package subcmd

import (
	"context"
	"testing"

	"github.com/gogotrans/geotrack/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	noop := func(context.Context, *state.Config) error { return nil }
	mods := []Mod{{Name: "run", Main: noop}, {Name: "at", Main: noop}}

	m, err := Parse("at", mods)
	require.NoError(t, err)
	assert.Equal(t, "at", m.Name)

	_, err = Parse("", mods)
	assert.Error(t, err)
	_, err = Parse("fly", mods)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known=run,at")
	assert.Panics(t, func() { _, _ = Parse("x", []Mod{{}}) })
}
