// Package middle implements the middle-end of the conversion pipeline:
// graph-rewriting passes that run between the front-end import and the
// back-end emission.
//
// Passes declare ordering constraints against other passes by name (RunAfter,
// RunBefore); the scheduler turns the constraints into a topological order.
// The anchor passes MiddleStart and MiddleFinish exist only to be named in
// constraints.
package middle

import (
	"github.com/chxd/dldt/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Pass is a single graph-rewriting step of the middle-end.
type Pass interface {
	// Name identifies the pass; other passes use it in ordering constraints.
	Name() string
	// Enabled reports whether the pass runs. Disabled passes still take part
	// in scheduling, so constraints naming them keep working.
	Enabled() bool
	// RunAfter lists passes that must run before this one.
	RunAfter() []string
	// RunBefore lists passes that must run after this one.
	RunBefore() []string
	// Run applies the pass to the graph.
	Run(g *ir.Graph) error
}

var registeredPasses []Pass

// RegisterPass adds a pass to the global registry used by RunAll.
// Registration order breaks ties between unconstrained passes.
func RegisterPass(p Pass) {
	registeredPasses = append(registeredPasses, p)
}

// Schedule orders the passes so every RunAfter/RunBefore constraint holds.
// Constraints naming a pass not present in the set are vacuous and ignored.
// It returns an error if the constraints are cyclic.
func Schedule(passes []Pass) ([]Pass, error) {
	byName := make(map[string]int, len(passes))
	for ii, p := range passes {
		if _, found := byName[p.Name()]; found {
			return nil, errors.Errorf("two passes registered under the name %q", p.Name())
		}
		byName[p.Name()] = ii
	}

	// successors[i] lists the passes that must run after pass i.
	successors := make([][]int, len(passes))
	pending := make([]int, len(passes)) // Number of unmet predecessors.
	addEdge := func(from, to int) {
		successors[from] = append(successors[from], to)
		pending[to]++
	}
	for ii, p := range passes {
		for _, name := range p.RunAfter() {
			if jj, found := byName[name]; found {
				addEdge(jj, ii)
			}
		}
		for _, name := range p.RunBefore() {
			if jj, found := byName[name]; found {
				addEdge(ii, jj)
			}
		}
	}

	// Kahn's algorithm; registration order keeps the result deterministic.
	scheduled := make([]Pass, 0, len(passes))
	ready := make([]int, 0, len(passes))
	for ii := range passes {
		if pending[ii] == 0 {
			ready = append(ready, ii)
		}
	}
	for len(ready) > 0 {
		ii := ready[0]
		ready = ready[1:]
		scheduled = append(scheduled, passes[ii])
		for _, jj := range successors[ii] {
			pending[jj]--
			if pending[jj] == 0 {
				ready = append(ready, jj)
			}
		}
	}
	if len(scheduled) != len(passes) {
		return nil, errors.Errorf("pass ordering constraints are cyclic: scheduled %d of %d passes",
			len(scheduled), len(passes))
	}
	return scheduled, nil
}

// RunAll schedules all registered passes and runs the enabled ones over the
// graph, in order.
func RunAll(g *ir.Graph) error {
	scheduled, err := Schedule(registeredPasses)
	if err != nil {
		return err
	}
	for _, p := range scheduled {
		if !p.Enabled() {
			klog.V(1).Infof("middle pass %s: disabled, skipping", p.Name())
			continue
		}
		klog.V(1).Infof("middle pass %s: running on graph %q", p.Name(), g.Name)
		if err := p.Run(g); err != nil {
			return errors.WithMessagef(err, "middle pass %s", p.Name())
		}
	}
	return nil
}

// Anchor pass names.
const (
	NameMiddleStart  = "MiddleStart"
	NameMiddleFinish = "MiddleFinish"
)

// middleStart and middleFinish are no-op separator passes: the first and last
// anchors other middle passes order themselves against.
type middleStart struct{}

func (middleStart) Name() string        { return NameMiddleStart }
func (middleStart) Enabled() bool       { return true }
func (middleStart) RunAfter() []string  { return nil }
func (middleStart) RunBefore() []string { return nil }
func (middleStart) Run(*ir.Graph) error { return nil }

type middleFinish struct{}

func (middleFinish) Name() string        { return NameMiddleFinish }
func (middleFinish) Enabled() bool       { return true }
func (middleFinish) RunAfter() []string  { return []string{NameMiddleStart} }
func (middleFinish) RunBefore() []string { return nil }
func (middleFinish) Run(*ir.Graph) error { return nil }

func init() {
	RegisterPass(middleStart{})
	RegisterPass(middleFinish{})
}
