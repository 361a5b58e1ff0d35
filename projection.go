package eventsourcing

import "context"

// HistorySource streams the full event history a projection derives from.
// Unlike an aggregate stream it may span many aggregates; the only ordering
// guarantee is the one the source itself provides.
type HistorySource[E Event] func(ctx context.Context) ([]EventEnvelope[E], error)

// Projection is a read-side fold with the same shape as an aggregate's apply
// step but decoupled from any single aggregate identity.
//
// Replay is the only supported recovery path after a schema migration,
// detected corruption or missed events: it discards whatever state existed
// and re-derives from the full history.
type Projection[T any, E Event] struct {
	// Apply folds one event into the projection state; nil state means the
	// projection is empty.
	Apply Applier[T, E]
	// History yields every event the projection is derived from.
	History HistorySource[E]
}

// Replay discards prior state and re-folds the entire history from empty.
// An empty history yields a nil state without error: a projection spanning
// many aggregates may legitimately have nothing to show yet.
func (p Projection[T, E]) Replay(ctx context.Context) (*T, error) {
	envelopes, err := p.History(ctx)
	if err != nil {
		return nil, err
	}
	var state *T
	for _, envelope := range envelopes {
		next, err := p.Apply(state, envelope.Data)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}
