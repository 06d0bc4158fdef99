package variable

import (
	"github.com/hashicorp/go-set/v3"

	"github.com/NERVsystems/infernode/tools/rebar/internal/ice"
	"github.com/NERVsystems/infernode/tools/rebar/lifetime"
	"github.com/NERVsystems/infernode/tools/rebar/typeset"
)

// Status is a variable's standing with respect to its lifetime.
type Status int

const (
	Unknown Status = iota
	Live
	Interrupted
	Consumed
)

func (s Status) String() string {
	switch s {
	case Live:
		return "live"
	case Interrupted:
		return "interrupted"
	case Consumed:
		return "consumed"
	}
	return "unknown"
}

// Terminal is the point of the program that produced a live variable.
type Terminal interface {
	String() string
}

// LiveVariable pairs a live variable with the terminal that produced it.
type LiveVariable struct {
	Variable *Variable
	Terminal Terminal
}

type entry struct {
	status   Status
	terminal Terminal
}

// Association records, for one diagram, which variables are live, which
// were interrupted by a lifetime and which were consumed.
type Association struct {
	types       *typeset.Set
	entries     map[*Variable]*entry
	order       []*Variable // first-registration order
	interrupted map[*lifetime.Lifetime][]*Variable
	consumed    *set.Set[*Variable]
}

// NewAssociation returns an empty association. Variable lifetimes are read
// from types.
func NewAssociation(types *typeset.Set) *Association {
	return &Association{
		types:       types,
		entries:     make(map[*Variable]*entry),
		interrupted: make(map[*lifetime.Lifetime][]*Variable),
		consumed:    set.New[*Variable](0),
	}
}

func (a *Association) entry(v *Variable) *entry {
	e, ok := a.entries[v]
	if !ok {
		e = &entry{}
		a.entries[v] = e
		a.order = append(a.order, v)
	}
	return e
}

// MarkVariableLive records that v was produced at t and is still usable.
func (a *Association) MarkVariableLive(v *Variable, t Terminal) {
	if a.consumed.Contains(v) {
		ice.Panicf("%v marked live at %v after being consumed", v, t)
	}
	e := a.entry(v)
	e.status, e.terminal = Live, t
}

// MarkVariableConsumed records that v was moved or released.
func (a *Association) MarkVariableConsumed(v *Variable) {
	a.entry(v).status = Consumed
	a.consumed.Insert(v)
}

// AddVariableInterruptedByLifetime records that v may not be used while
// references with lifetime l exist.
func (a *Association) AddVariableInterruptedByLifetime(v *Variable, l *lifetime.Lifetime) {
	a.entry(v).status = Interrupted
	a.interrupted[l] = append(a.interrupted[l], v)
}

// GetVariablesInterruptedByLifetime returns the variables interrupted by l
// in the order they were added.
func (a *Association) GetVariablesInterruptedByLifetime(l *lifetime.Lifetime) []*Variable {
	return append([]*Variable(nil), a.interrupted[l]...)
}

// Status returns v's current status.
func (a *Association) Status(v *Variable) Status {
	if e, ok := a.entries[v]; ok {
		return e.status
	}
	return Unknown
}

// IsVariableConsumed reports whether v was ever consumed.
func (a *Association) IsVariableConsumed(v *Variable) bool {
	return a.consumed.Contains(v)
}

func (a *Association) lifetimeOf(v *Variable) *lifetime.Lifetime {
	return a.types.Lifetime(v.Type)
}

// LiveVariablesWithLifetime returns the live variables whose lifetime is l.
func (a *Association) LiveVariablesWithLifetime(l *lifetime.Lifetime) []LiveVariable {
	var out []LiveVariable
	for _, v := range a.order {
		if e := a.entries[v]; e.status == Live && a.lifetimeOf(v) == l {
			out = append(out, LiveVariable{Variable: v, Terminal: e.terminal})
		}
	}
	return out
}

// TryGetBoundedLifetimeWithLiveVariables returns the first bounded lifetime
// that still has live variables, together with all of them.
func (a *Association) TryGetBoundedLifetimeWithLiveVariables() (*lifetime.Lifetime, []LiveVariable, bool) {
	for _, v := range a.order {
		if a.entries[v].status != Live {
			continue
		}
		if l := a.lifetimeOf(v); l.IsBounded() {
			return l, a.LiveVariablesWithLifetime(l), true
		}
	}
	return nil, nil, false
}

// TryGetLiveVariableWithUnboundedLifetime returns a live variable that
// owns its value, i.e. whose lifetime is unbounded or static.
func (a *Association) TryGetLiveVariableWithUnboundedLifetime() (LiveVariable, bool) {
	for _, v := range a.order {
		e := a.entries[v]
		if e.status != Live {
			continue
		}
		if k := a.lifetimeOf(v).Kind(); k == lifetime.KindUnbounded || k == lifetime.KindStatic {
			return LiveVariable{Variable: v, Terminal: e.terminal}, true
		}
	}
	return LiveVariable{}, false
}
