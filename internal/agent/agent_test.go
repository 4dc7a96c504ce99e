package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/tabletalk/tabletalk/internal/memory"
	"github.com/tabletalk/tabletalk/internal/store"
)

type fakeLLM struct {
	summarizeCalls int
	generateCalls  int
	answerCalls    int

	summary      string
	summarizeErr error
	sqlFn        func(question, summary string) (string, error)
	answerFn     func(question, result string) (string, error)
}

func (f *fakeLLM) Summarize(_ context.Context, _ string) (string, error) {
	f.summarizeCalls++
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	if f.summary == "" {
		return "summary of the schema", nil
	}
	return f.summary, nil
}

func (f *fakeLLM) GenerateSQL(_ context.Context, question, summary string) (string, error) {
	f.generateCalls++
	if f.sqlFn != nil {
		return f.sqlFn(question, summary)
	}
	return NoSQLSentinel, nil
}

func (f *fakeLLM) Answer(_ context.Context, question, result string) (string, error) {
	f.answerCalls++
	if f.answerFn != nil {
		return f.answerFn(question, result)
	}
	return "answer: " + result, nil
}

func newTestAgent(t *testing.T, client *fakeLLM) (*Agent, *store.Store, *memory.Store) {
	t.Helper()
	primary, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = primary.Close() })

	mem, err := memory.Open(":memory:")
	if err != nil {
		t.Fatalf("memory.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = mem.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(primary, mem, client, logger, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, primary, mem
}

func seedEmployees(t *testing.T, primary *store.Store) {
	t.Helper()
	ctx := context.Background()
	err := primary.CreateTableFrom(ctx, "employees", []store.ColumnDef{
		{Name: "id", Type: "INTEGER"},
		{Name: "name", Type: "TEXT"},
		{Name: "country", Type: "TEXT"},
	}, [][]any{{1, "Ana", "Spain"}})
	if err != nil {
		t.Fatalf("seed employees: %v", err)
	}
}

func TestHashSnapshotDeterministic(t *testing.T) {
	a := HashSnapshot("CREATE TABLE a (id INTEGER)\nCREATE TABLE b (id INTEGER)")
	b := HashSnapshot("CREATE TABLE a (id INTEGER)\nCREATE TABLE b (id INTEGER)")
	if a != b {
		t.Fatalf("hashes differ: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("hash length = %d", len(a))
	}
	if HashSnapshot("CREATE TABLE a (id INTEGER)") == a {
		t.Fatal("different snapshots should hash differently")
	}
}

func TestEmptySchemaSkipsSummaryLLM(t *testing.T) {
	client := &fakeLLM{}
	a, _, mem := newTestAgent(t, client)

	answer := a.Respond(context.Background(), "how many employees?")
	if client.summarizeCalls != 0 {
		t.Fatalf("summarize calls = %d, want 0", client.summarizeCalls)
	}
	if answer == "" {
		t.Fatal("expected a non-empty answer")
	}

	interactions, err := mem.ListInteractions(context.Background())
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if len(interactions) != 1 {
		t.Fatalf("log length = %d", len(interactions))
	}
	if interactions[0].SQLResult != ResultNoData {
		t.Fatalf("SQLResult = %q", interactions[0].SQLResult)
	}
}

func TestSummaryCacheHitSkipsRegeneration(t *testing.T) {
	client := &fakeLLM{}
	a, primary, _ := newTestAgent(t, client)
	seedEmployees(t, primary)

	ctx := context.Background()
	a.Respond(ctx, "first question")
	a.Respond(ctx, "second question")

	if client.summarizeCalls != 1 {
		t.Fatalf("summarize calls = %d, want 1", client.summarizeCalls)
	}
}

func TestSchemaDriftInvalidatesCache(t *testing.T) {
	client := &fakeLLM{}
	a, primary, mem := newTestAgent(t, client)
	seedEmployees(t, primary)

	ctx := context.Background()
	a.Respond(ctx, "first question")

	err := primary.CreateTableFrom(ctx, "departments", []store.ColumnDef{
		{Name: "id", Type: "INTEGER"},
		{Name: "name", Type: "TEXT"},
	}, nil)
	if err != nil {
		t.Fatalf("create departments: %v", err)
	}
	a.Respond(ctx, "second question")

	if client.summarizeCalls != 2 {
		t.Fatalf("summarize calls = %d, want 2", client.summarizeCalls)
	}

	snapshot, err := primary.Schema(ctx)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	record, err := mem.GetSummary(ctx)
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if record.SchemaHash != HashSnapshot(snapshot) {
		t.Fatal("cache record should hold the hash of the new snapshot")
	}
}

func TestRespondEndToEndCountsEmployees(t *testing.T) {
	client := &fakeLLM{
		sqlFn: func(_, _ string) (string, error) {
			return "SELECT COUNT(*) FROM employees WHERE LOWER(country) = LOWER('Spain')", nil
		},
		answerFn: func(_, result string) (string, error) {
			if !strings.Contains(result, "1") {
				return "", errors.New("expected a one-row count in the result")
			}
			return "Based on the current records, there is exactly one employee located in Spain. " +
				"The data shows a single matching entry for that country, so the team presence there is minimal. " +
				"If you would like a breakdown by role, department, or any other attribute, I can prepare that as well. " +
				"Feel free to ask about other countries too.", nil
		},
	}
	a, primary, mem := newTestAgent(t, client)
	seedEmployees(t, primary)

	ctx := context.Background()
	answer := a.Respond(ctx, "How many employees are in Spain?")

	words := len(strings.Fields(answer))
	if words < 40 || words > 100 {
		t.Fatalf("answer word count = %d", words)
	}

	interactions, err := mem.ListInteractions(ctx)
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if len(interactions) != 1 {
		t.Fatalf("log length = %d", len(interactions))
	}
	entry := interactions[0]
	if !strings.Contains(entry.SQLQuery, "COUNT(*)") {
		t.Fatalf("SQLQuery = %q", entry.SQLQuery)
	}
	if entry.SQLResult != "[(1)]" {
		t.Fatalf("SQLResult = %q", entry.SQLResult)
	}
	if entry.FinalAnswer != answer {
		t.Fatal("logged answer should match the returned answer")
	}
}

func TestRespondRejectsUnsafeSQL(t *testing.T) {
	client := &fakeLLM{
		sqlFn: func(_, _ string) (string, error) {
			return "UPDATE employees SET country = 'nowhere'", nil
		},
	}
	a, primary, mem := newTestAgent(t, client)
	seedEmployees(t, primary)

	ctx := context.Background()
	a.Respond(ctx, "wipe the countries")

	interactions, err := mem.ListInteractions(ctx)
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if interactions[0].SQLResult != ResultInvalidSQL {
		t.Fatalf("SQLResult = %q", interactions[0].SQLResult)
	}

	result, err := primary.Execute(ctx, "SELECT country FROM employees")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Rows[0][0] != "Spain" {
		t.Fatal("table must not have been mutated")
	}
}

func TestRespondMapsExecutionErrors(t *testing.T) {
	cases := []struct {
		name string
		sql  string
		want string
	}{
		{"missing table", "SELECT * FROM missing_table", ResultTableNotFound},
		{"syntax error", "SELECT FROM WHERE", ResultSyntaxError},
		{"missing column", "SELECT ghost FROM employees", ResultExecutionError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeLLM{
				sqlFn: func(_, _ string) (string, error) { return tc.sql, nil },
			}
			a, primary, mem := newTestAgent(t, client)
			seedEmployees(t, primary)

			ctx := context.Background()
			a.Respond(ctx, "a question")

			interactions, err := mem.ListInteractions(ctx)
			if err != nil {
				t.Fatalf("ListInteractions() error = %v", err)
			}
			if interactions[0].SQLResult != tc.want {
				t.Fatalf("SQLResult = %q, want %q", interactions[0].SQLResult, tc.want)
			}
		})
	}
}

func TestRespondRefusalIsByteExact(t *testing.T) {
	const refusal = "I'm sorry, I cannot answer that question at the moment. Is there any other query I can help with?"
	client := &fakeLLM{
		answerFn: func(_, result string) (string, error) {
			if result == ResultNoData {
				return refusal, nil
			}
			return "unexpected", nil
		},
	}
	a, _, _ := newTestAgent(t, client)

	answer := a.Respond(context.Background(), "what is the meaning of life?")
	if answer != refusal {
		t.Fatalf("answer = %q", answer)
	}
}

func TestRespondSurvivesLLMOutage(t *testing.T) {
	client := &fakeLLM{
		sqlFn: func(_, _ string) (string, error) {
			return "", errors.New("connection refused")
		},
		answerFn: func(_, _ string) (string, error) {
			return "", errors.New("connection refused")
		},
	}
	a, primary, mem := newTestAgent(t, client)
	seedEmployees(t, primary)

	ctx := context.Background()
	answer := a.Respond(ctx, "how many employees?")
	if answer != FallbackAnswer {
		t.Fatalf("answer = %q", answer)
	}

	interactions, err := mem.ListInteractions(ctx)
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if interactions[0].SQLResult != ResultServiceUnavailable {
		t.Fatalf("SQLResult = %q", interactions[0].SQLResult)
	}
}

func TestRespondLogsTwoEntriesForRepeatedQuestion(t *testing.T) {
	client := &fakeLLM{
		sqlFn: func(_, _ string) (string, error) {
			return "SELECT name FROM employees", nil
		},
	}
	a, primary, mem := newTestAgent(t, client)
	seedEmployees(t, primary)

	ctx := context.Background()
	first := a.Respond(ctx, "list employee names")
	second := a.Respond(ctx, "list employee names")
	if first != second {
		t.Fatalf("answers differ: %q vs %q", first, second)
	}

	interactions, err := mem.ListInteractions(ctx)
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if len(interactions) != 2 {
		t.Fatalf("log length = %d, want 2", len(interactions))
	}
}

func TestRespondStripsMarkdownFromGeneratedSQL(t *testing.T) {
	client := &fakeLLM{
		sqlFn: func(_, _ string) (string, error) {
			return "```sql\nSELECT name FROM employees\n```", nil
		},
	}
	a, primary, mem := newTestAgent(t, client)
	seedEmployees(t, primary)

	ctx := context.Background()
	a.Respond(ctx, "list names")

	interactions, err := mem.ListInteractions(ctx)
	if err != nil {
		t.Fatalf("ListInteractions() error = %v", err)
	}
	if interactions[0].SQLResult != "[(Ana)]" {
		t.Fatalf("SQLResult = %q", interactions[0].SQLResult)
	}
}
