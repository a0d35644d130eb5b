package highlight

// Ref refers to a highlight that may or may not be persisted yet. Callers
// must go through ID to obtain a store id, which forces handling of the
// not-yet-real case.
type Ref struct {
	id    string
	draft *Candidate
}

// ExistingRef refers to a stored highlight by id.
func ExistingRef(id string) Ref {
	return Ref{id: id}
}

// PendingRef refers to an unpersisted candidate.
func PendingRef(c Candidate) Ref {
	return Ref{draft: &c}
}

// ID returns the store id and true when the ref is to a persisted highlight.
func (r Ref) ID() (string, bool) {
	return r.id, r.id != ""
}

// Pending returns the draft candidate and true when the ref is unpersisted.
func (r Ref) Pending() (Candidate, bool) {
	if r.draft == nil {
		return Candidate{}, false
	}
	return *r.draft, true
}

// IsZero reports whether the ref points at nothing.
func (r Ref) IsZero() bool {
	return r.id == "" && r.draft == nil
}
