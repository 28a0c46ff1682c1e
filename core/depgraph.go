package core

import (
	"math"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Dependency records an inter-encoder data dependency: the producing
// encoder signals after (SignalIndex, SignalStages) and the dependent
// encoder waits before (WaitIndex, WaitStages).
type Dependency struct {
	// SignalIndex is the frame command index after which the producer
	// signals.
	SignalIndex int

	// SignalStages are the producer stages that must complete.
	SignalStages Stages

	// WaitIndex is the frame command index before which the dependent
	// waits.
	WaitIndex int

	// WaitStages are the dependent stages that are held back.
	WaitStages Stages
}

// Merged combines two dependencies between the same encoder pair, keeping
// the latest signal position and the earliest wait position. That is the
// minimal pair still satisfying all underlying accesses.
func (d Dependency) Merged(other Dependency) Dependency {
	merged := d
	if other.SignalIndex > merged.SignalIndex {
		merged.SignalIndex = other.SignalIndex
	}
	if other.WaitIndex < merged.WaitIndex {
		merged.WaitIndex = other.WaitIndex
	}
	merged.SignalStages |= other.SignalStages
	merged.WaitStages |= other.WaitStages
	return merged
}

// DependencyTable is the lower-triangular matrix of inter-encoder
// dependencies, indexed by (dependent encoder, producing encoder) with
// dependent > producer.
type DependencyTable struct {
	encoderCount int
	present      []bool
	deps         []Dependency
}

// NewDependencyTable creates an empty table for the given number of
// encoders.
func NewDependencyTable(encoderCount int) *DependencyTable {
	n := encoderCount * (encoderCount - 1) / 2
	if n < 0 {
		n = 0
	}
	return &DependencyTable{
		encoderCount: encoderCount,
		present:      make([]bool, n),
		deps:         make([]Dependency, n),
	}
}

// EncoderCount returns the table dimension.
func (t *DependencyTable) EncoderCount() int {
	return t.encoderCount
}

// offset maps (dependent, producer) with dependent > producer to the
// triangular index.
func (t *DependencyTable) offset(dependent, producer int) int {
	return dependent*(dependent-1)/2 + producer
}

// Add inserts a dependency, merging with any existing entry for the same
// encoder pair. The dependent must execute after the producer.
func (t *DependencyTable) Add(dependent, producer int, dep Dependency) {
	if dependent <= producer {
		panic("framegraph: dependency must point backwards in encoder order")
	}
	i := t.offset(dependent, producer)
	if t.present[i] {
		t.deps[i] = t.deps[i].Merged(dep)
		return
	}
	t.present[i] = true
	t.deps[i] = dep
}

// Get returns the dependency for an encoder pair, if present.
func (t *DependencyTable) Get(dependent, producer int) (Dependency, bool) {
	if dependent <= producer {
		return Dependency{}, false
	}
	i := t.offset(dependent, producer)
	if !t.present[i] {
		return Dependency{}, false
	}
	return t.deps[i], true
}

// Len returns the number of stored dependencies.
func (t *DependencyTable) Len() int {
	n := 0
	for _, p := range t.present {
		if p {
			n++
		}
	}
	return n
}

// ForEach visits every stored dependency.
func (t *DependencyTable) ForEach(fn func(dependent, producer int, dep Dependency)) {
	for dependent := 1; dependent < t.encoderCount; dependent++ {
		for producer := 0; producer < dependent; producer++ {
			i := t.offset(dependent, producer)
			if t.present[i] {
				fn(dependent, producer, t.deps[i])
			}
		}
	}
}

// ReducedEdge is a surviving dependency after transitive reduction.
type ReducedEdge struct {
	Dependent int
	Producer  int
	Dep       Dependency
}

// Reduced computes the transitive reduction of the table and returns the
// minimal edge set. An edge (i,k) is dropped when some intermediate
// encoder j with k < j < i is reachable from i and reaches k; the fences
// materializing the surviving chain already order i after k.
//
// All-pairs shortest paths over the dependency digraph (unit edge
// weights) come from gonum's Floyd–Warshall; finite distance means
// reachable.
func (t *DependencyTable) Reduced() []ReducedEdge {
	if t.encoderCount == 0 {
		return nil
	}

	g := simple.NewDirectedGraph()
	t.ForEach(func(dependent, producer int, _ Dependency) {
		g.SetEdge(simple.Edge{F: simple.Node(int64(dependent)), T: simple.Node(int64(producer))})
	})

	paths, _ := path.FloydWarshall(g)
	reachable := func(from, to int) bool {
		if from == to {
			return false
		}
		if g.Node(int64(from)) == nil || g.Node(int64(to)) == nil {
			return false
		}
		return !math.IsInf(paths.Weight(int64(from), int64(to)), 1)
	}

	var edges []ReducedEdge
	t.ForEach(func(dependent, producer int, dep Dependency) {
		for j := producer + 1; j < dependent; j++ {
			if reachable(dependent, j) && reachable(j, producer) {
				return
			}
		}
		edges = append(edges, ReducedEdge{Dependent: dependent, Producer: producer, Dep: dep})
	})
	return edges
}
