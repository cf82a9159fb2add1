package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrall/janus/internal/ir"
	"github.com/mkrall/janus/internal/validate"
)

func TestFixturesPassStaticValidation(t *testing.T) {
	procs := []*ir.Procedure{
		FibProcedure(),
		CountProcedure(),
		DoubleProcedure(),
		MaskProcedure(),
	}
	res := validate.ResolverFunc(func(name string) (int, bool) {
		for _, p := range procs {
			if p.Name == name {
				return len(p.Params), true
			}
		}
		return 0, false
	})
	for _, p := range procs {
		assert.Empty(t, validate.Procedure(p, res), "fixture %q must be legal", p.Name)
	}
}

func TestBuildersReturnFreshCopies(t *testing.T) {
	a := FibProcedure()
	b := FibProcedure()
	require.NotSame(t, a, b)

	a.Params[0] = "mutated"
	assert.Equal(t, "x1", b.Params[0])
}
