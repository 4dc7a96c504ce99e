package llm

import "context"

// Client is the narrow surface the agent depends on. All three operations
// are plain text-in, text-out completions so tests can substitute
// deterministic fakes.
type Client interface {
	// Summarize condenses a raw schema snapshot into a short natural-language
	// summary suitable as SQL-generation context.
	Summarize(ctx context.Context, schema string) (string, error)
	// GenerateSQL turns a user question plus a schema summary into a single
	// SQL statement, or the NO_SQL sentinel.
	GenerateSQL(ctx context.Context, question, schemaSummary string) (string, error)
	// Answer phrases an execution result as the final user-facing reply.
	Answer(ctx context.Context, question, result string) (string, error)
}
