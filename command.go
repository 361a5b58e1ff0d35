package eventsourcing

// Command expresses an intent to change one aggregate.
type Command interface {
	AggregateID() string
}
