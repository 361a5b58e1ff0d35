package eventsourcing

// Applier folds one event into an aggregate state and returns the next state.
//
// A nil state means the aggregate does not exist yet: the first event must
// establish its identity and initial fields. Appliers must be pure and
// deterministic — the same state and event always produce the same result —
// and must report unusual-but-well-formed event content as an error rather
// than panicking. Panics are reserved for programming-contract violations.
type Applier[T any, E Event] func(state *T, event E) (*T, error)

// Aggregate describes one aggregate family: the type discriminator recorded
// on envelopes and the fold step that derives state from events. State is
// purely a function of the ordered event sequence; in-memory instances are
// disposable caches reconstructible at any time from the store.
type Aggregate[T any, E Event] struct {
	// Type is the aggregate_type discriminator stamped on envelopes.
	Type string
	// Apply is the fold step.
	Apply Applier[T, E]
}

// ApplyAll folds Apply left to right over events, starting from no state.
// It short-circuits on the first error, discarding subsequent events, and
// returns ErrEmptyHistory when events is empty: an aggregate must be born
// from at least one event.
func (a Aggregate[T, E]) ApplyAll(events []E) (*T, error) {
	var state *T
	for _, event := range events {
		next, err := a.Apply(state, event)
		if err != nil {
			return nil, err
		}
		state = next
	}
	if state == nil {
		return nil, ErrEmptyHistory
	}
	return state, nil
}

// FoldEnvelopes folds the payloads of an ordered envelope list into state,
// which may be nil (no prior state) or a snapshot-bootstrapped value.
// Unlike ApplyAll it tolerates an empty list, returning state unchanged:
// a snapshot with no newer events is already current.
func (a Aggregate[T, E]) FoldEnvelopes(state *T, envelopes []EventEnvelope[E]) (*T, error) {
	for _, envelope := range envelopes {
		next, err := a.Apply(state, envelope.Data)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}
