package duel

import (
	"fmt"
	"math/rand"

	"go.uber.org/zap"
)

// FragmentState is the lifecycle stage of a fragment.
type FragmentState int

const (
	FragUnverified FragmentState = iota
	FragVerified
	FragRunning
	FragSuccess
	FragRunFailed
	FragVerifyFailed
)

func (s FragmentState) String() string {
	switch s {
	case FragUnverified:
		return "unverified"
	case FragVerified:
		return "verified"
	case FragRunning:
		return "running"
	case FragSuccess:
		return "success"
	case FragRunFailed:
		return "runFailed"
	case FragVerifyFailed:
		return "verifyFailed"
	default:
		return "unknown"
	}
}

// Done reports whether s is a terminal state.
func (s FragmentState) Done() bool {
	return s >= FragSuccess
}

// Fragment is the unit of a mutation: a verifiable change to the state that
// may apply deltas, nest fragments and enqueue triggered ones.
//
// Verify must not have side effects. Run returns false when the operation
// could not complete; deltas it already applied are kept.
type Fragment interface {
	Base() *FragmentBase
	Verify(d *Duel) bool
	Run(d *Duel) bool
}

// Scoped fragments bracket their deltas with a scope.
type Scoped interface {
	Scope(d *Duel) ScopeDelta
}

// FragmentBase carries the bookkeeping shared by every fragment. Embed it
// and initialize it with newFragmentBase.
type FragmentBase struct {
	ID     uint16
	Result FragmentState
	Parent Fragment
	// Flatten folds the fragments this one triggers into its parent's queue.
	Flatten        bool
	RequiredStatus Status

	mutation *Mutation
	self     Fragment
	queue    int

	// duel a fragment is verified against outside of a mutation
	verifyDuel *Duel
}

func newFragmentBase(flatten bool) FragmentBase {
	return FragmentBase{Flatten: flatten, RequiredStatus: StatusPlaying, queue: -1}
}

func (b *FragmentBase) Base() *FragmentBase { return b }

// Default verification; fragments override it.
func (b *FragmentBase) Verify(*Duel) bool { return true }

// Mutation returns the mutation the fragment runs in, nil before it is applied.
func (b *FragmentBase) Mutation() *Mutation { return b.mutation }

// Duel returns the duel the fragment runs in. A fragment verified before it
// is applied, as for propositions, has a duel but no mutation.
func (b *FragmentBase) Duel() *Duel {
	if b.mutation == nil {
		return b.verifyDuel
	}
	return b.mutation.duel
}

// State is a shortcut to the duel state.
func (b *FragmentBase) State() *State { return b.Duel().State }

// Rand returns the duel's seeded random source.
func (b *FragmentBase) Rand() *rand.Rand { return b.Duel().rng }

// ApplyFrag runs f as a child of this fragment, synchronously.
func (b *FragmentBase) ApplyFrag(f Fragment) FragmentState {
	if b.mutation == nil {
		panic("duel: ApplyFrag on a fragment that is not running")
	}
	// changes made so far are reported under this fragment, not the child
	b.AttribFinalizeUpdate()
	return b.mutation.apply(f, b.self)
}

// EnqueueFragment defers f until this fragment, or the nearest ancestor
// owning the queue, completes.
func (b *FragmentBase) EnqueueFragment(f Fragment) {
	if b.mutation == nil || b.queue < 0 {
		panic("duel: EnqueueFragment on a fragment that is not running")
	}
	b.mutation.queues[b.queue] = append(b.mutation.queues[b.queue], f)
}

// ApplyDelta applies and records a delta. A failed delta is not recorded.
func (b *FragmentBase) ApplyDelta(dl Delta) error {
	return b.mutation.applyDelta(dl)
}

// AttribFinalizeUpdate dispatches the attribute changes recorded since the
// last call.
func (b *FragmentBase) AttribFinalizeUpdate() {
	b.Duel().finalizeAttributes(b.self)
}

// depth counts the ancestors of the fragment.
func (b *FragmentBase) depth() int {
	n := 0
	for p := b.Parent; p != nil; p = p.Base().Parent {
		n++
	}
	return n
}

// apply runs the full fragment algorithm for f under parent (nil for roots).
func (m *Mutation) apply(f Fragment, parent Fragment) FragmentState {
	d := m.duel
	b := f.Base()
	if b.Result != FragUnverified {
		d.logger.Error("fragment applied twice", zap.String("fragment", fragName(f)))
		return b.Result
	}

	m.nextFragID++
	if m.nextFragID > d.Settings.FragmentCap {
		d.logger.Error("fragment cap reached, fragment rejected",
			zap.String("fragment", fragName(f)),
			zap.Int("cap", d.Settings.FragmentCap))
		b.Result = FragVerifyFailed
		return b.Result
	}
	b.ID = uint16(m.nextFragID)
	b.mutation = m
	b.self = f
	b.Parent = parent

	if d.State.Status != b.RequiredStatus || !f.Verify(d) {
		b.Result = FragVerifyFailed
		return b.Result
	}
	b.Result = FragVerified

	ownsQueue := !b.Flatten || parent == nil
	if ownsQueue {
		b.queue = len(m.queues)
		m.queues = append(m.queues, nil)
	} else {
		b.queue = parent.Base().queue
	}

	var scope ScopeDelta
	if s, ok := f.(Scoped); ok {
		scope = s.Scope(d)
	}
	if scope != nil {
		_ = m.applyDelta(scope)
	}
	if d.preFragment(f) && scope != nil {
		_ = m.applyDelta(&ScopePreparationEndDelta{})
	}

	b.Result = FragRunning
	if m.runProtected(f) {
		b.Result = FragSuccess
	} else {
		b.Result = FragRunFailed
		d.logger.Debug("fragment run failed", zap.String("fragment", fragName(f)), zap.Uint16("id", b.ID))
	}

	d.finalizeAttributes(f)
	d.Listeners.dispatchFragment(f, b.Result)

	if scope != nil {
		_ = m.applyDelta(&ScopeEndDelta{Interrupted: b.Result != FragSuccess})
	}

	if ownsQueue {
		q := b.queue
		for i := 0; i < len(m.queues[q]); i++ {
			m.apply(m.queues[q][i], parent)
		}
		m.queues[q] = nil
	}
	return b.Result
}

// runProtected runs f, turning a panic into a failed run.
func (m *Mutation) runProtected(f Fragment) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.duel.logger.Error("panic in fragment",
				zap.String("fragment", fragName(f)),
				zap.Uint16("id", f.Base().ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			ok = false
		}
	}()
	return f.Run(m.duel)
}

func fragName(f Fragment) string {
	return fmt.Sprintf("%T", f)
}

// FragFunc is an ad-hoc fragment built from closures.
type FragFunc struct {
	FragmentBase
	Name     string
	VerifyFn func(f *FragFunc, d *Duel) bool
	RunFn    func(f *FragFunc, d *Duel) bool
}

// NewFragFunc creates a closure fragment.
func NewFragFunc(name string, flatten bool, run func(f *FragFunc, d *Duel) bool) *FragFunc {
	return &FragFunc{FragmentBase: newFragmentBase(flatten), Name: name, RunFn: run}
}

func (f *FragFunc) Verify(d *Duel) bool {
	if f.VerifyFn == nil {
		return true
	}
	return f.VerifyFn(f, d)
}

func (f *FragFunc) Run(d *Duel) bool {
	if f.RunFn == nil {
		return true
	}
	return f.RunFn(f, d)
}
