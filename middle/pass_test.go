package middle

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chxd/dldt/ir"
)

type stubPass struct {
	name          string
	after, before []string
}

func (p stubPass) Name() string        { return p.name }
func (p stubPass) Enabled() bool       { return true }
func (p stubPass) RunAfter() []string  { return p.after }
func (p stubPass) RunBefore() []string { return p.before }
func (p stubPass) Run(*ir.Graph) error { return nil }

func names(passes []Pass) []string {
	out := make([]string, len(passes))
	for ii, p := range passes {
		out[ii] = p.Name()
	}
	return out
}

func positions(passes []Pass) map[string]int {
	pos := make(map[string]int, len(passes))
	for ii, p := range passes {
		pos[p.Name()] = ii
	}
	return pos
}

func TestSchedule(t *testing.T) {
	scheduled := must.M1(Schedule([]Pass{
		stubPass{name: "c", after: []string{"a"}},
		stubPass{name: "b", after: []string{"c"}},
		stubPass{name: "a", before: []string{"b"}},
	}))
	pos := positions(scheduled)
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["c"], pos["b"])
}

func TestScheduleVacuousConstraints(t *testing.T) {
	// Constraints naming passes outside the set are ignored.
	scheduled := must.M1(Schedule([]Pass{
		stubPass{name: "a", after: []string{"NotRegistered"}},
		stubPass{name: "b", before: []string{"AlsoMissing"}},
	}))
	assert.Equal(t, []string{"a", "b"}, names(scheduled))
}

func TestScheduleRegistrationOrderBreaksTies(t *testing.T) {
	scheduled := must.M1(Schedule([]Pass{
		stubPass{name: "z"},
		stubPass{name: "a"},
		stubPass{name: "m"},
	}))
	assert.Equal(t, []string{"z", "a", "m"}, names(scheduled))
}

func TestScheduleCycle(t *testing.T) {
	_, err := Schedule([]Pass{
		stubPass{name: "a", after: []string{"b"}},
		stubPass{name: "b", after: []string{"a"}},
	})
	require.ErrorContains(t, err, "cyclic")
}

func TestScheduleDuplicateName(t *testing.T) {
	_, err := Schedule([]Pass{
		stubPass{name: "a"},
		stubPass{name: "a"},
	})
	require.ErrorContains(t, err, "a")
}

func TestRegisteredPassOrder(t *testing.T) {
	scheduled := must.M1(Schedule(registeredPasses))
	pos := positions(scheduled)
	require.Contains(t, pos, NameMiddleStart)
	require.Contains(t, pos, NameMiddleFinish)

	assert.Less(t, pos[NameMiddleStart], pos["EltwiseInputReshape"])
	assert.Less(t, pos["EltwiseInputReshape"], pos["EltwiseChecker"])
	assert.Less(t, pos["EltwiseChecker"], pos["ConvertMulAddToScaleShift"])
	assert.Less(t, pos["ConvertMulAddToScaleShift"], pos[NameMiddleFinish])
}
