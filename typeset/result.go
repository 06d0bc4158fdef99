package typeset

import "github.com/NERVsystems/infernode/tools/rebar/internal/ice"

// Result receives the failures found while unifying. Unification never
// stops at a failure; it reports and continues.
type Result interface {
	SetTypeMismatch()
	SetExpectedMutable()
	AddFailedTypeConstraint(c Constraint)
}

// FieldResult is implemented by results that want to hear about fields an
// indefinite fielded type needs but a concrete type lacks.
type FieldResult interface {
	MissingField(name string)
}

// Recorder is a Result that keeps every event.
type Recorder struct {
	TypeMismatches    int
	ExpectedMutables  int
	FailedConstraints []Constraint
	MissingFields     []string
}

func (r *Recorder) SetTypeMismatch()    { r.TypeMismatches++ }
func (r *Recorder) SetExpectedMutable() { r.ExpectedMutables++ }

func (r *Recorder) AddFailedTypeConstraint(c Constraint) {
	r.FailedConstraints = append(r.FailedConstraints, c)
}

func (r *Recorder) MissingField(name string) {
	r.MissingFields = append(r.MissingFields, name)
}

// Events returns the number of recorded failures.
func (r *Recorder) Events() int {
	return r.TypeMismatches + r.ExpectedMutables + len(r.FailedConstraints) + len(r.MissingFields)
}

// RequireSuccess is used when the caller has already established that a
// unification cannot fail. Any failure is an internal compiler error.
var RequireSuccess Result = requireSuccess{}

type requireSuccess struct{}

func (requireSuccess) SetTypeMismatch() {
	ice.Panicf("unexpected type mismatch")
}

func (requireSuccess) SetExpectedMutable() {
	ice.Panicf("unexpected mutability mismatch")
}

func (requireSuccess) AddFailedTypeConstraint(c Constraint) {
	ice.Panicf("unexpected failed constraint %s", c.Key())
}

func (requireSuccess) MissingField(name string) {
	ice.Panicf("unexpected missing field %q", name)
}
