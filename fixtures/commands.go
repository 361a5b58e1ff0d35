package fixtures

// TestCommand credits Amount to the ledger identified by ID.
type TestCommand struct {
	ID     string
	Amount int64
}

func (c TestCommand) AggregateID() string { return c.ID }

// TestCommandBuilder provides a fluent API for constructing test commands.
type TestCommandBuilder struct {
	id     string
	amount int64
}

// NewTestCommand creates a new TestCommandBuilder with sensible defaults.
func NewTestCommand() *TestCommandBuilder {
	return &TestCommandBuilder{id: LedgerID.String(), amount: 1}
}

// WithID sets the aggregate ID.
func (b *TestCommandBuilder) WithID(id string) *TestCommandBuilder {
	b.id = id
	return b
}

// WithAmount sets the credited amount.
func (b *TestCommandBuilder) WithAmount(amount int64) *TestCommandBuilder {
	b.amount = amount
	return b
}

// Build constructs the TestCommand.
func (b *TestCommandBuilder) Build() TestCommand {
	return TestCommand{ID: b.id, Amount: b.amount}
}
