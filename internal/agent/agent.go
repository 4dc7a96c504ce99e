package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/memory"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/store"
)

// Pipeline result strings. The final-answer stage consumes these verbatim,
// so their exact spelling is part of the contract.
const (
	// NoSchemaSummary stands in for a schema summary when the database has no
	// tables at all; it bypasses both the cache and the summary LLM call.
	NoSchemaSummary = "no_sql"
	// NoSQLSentinel is what the SQL generator returns when no relevant query
	// exists for the question.
	NoSQLSentinel = "NO_SQL"

	ResultNoData             = "No relevant data found."
	ResultInvalidSQL         = "Invalid SQL query detected."
	ResultTableNotFound      = "Table not found."
	ResultSyntaxError        = "SQL syntax error."
	ResultExecutionError     = "SQL execution error."
	ResultDatabaseError      = "Database error."
	ResultServiceUnavailable = "Service temporarily unavailable."
)

// FallbackAnswer is returned when even the final-answer LLM call fails; the
// pipeline never surfaces a raw error to the user.
const FallbackAnswer = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."

type Agent struct {
	store        *store.Store
	memory       *memory.Store
	llm          llm.Client
	log          *slog.Logger
	queryTimeout time.Duration

	// refreshMu only avoids redundant summary LLM calls when concurrent
	// requests miss the cache for the same new hash; the last-writer-wins
	// upsert is already correct without it.
	refreshMu sync.Mutex
}

type Config struct {
	QueryTimeout time.Duration
}

func New(primary *store.Store, mem *memory.Store, client llm.Client, logger *slog.Logger, cfg Config) (*Agent, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary store is required")
	}
	if mem == nil {
		return nil, fmt.Errorf("memory store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	queryTimeout := cfg.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}
	return &Agent{
		store:        primary,
		memory:       mem,
		llm:          client,
		log:          logger,
		queryTimeout: queryTimeout,
	}, nil
}

// Respond runs the full pipeline for one question: fingerprint the schema,
// resolve the cached summary, generate and validate SQL, execute it, phrase
// the final answer, and log the interaction. It never returns an error; every
// failure collapses into a user-facing sentence.
func (a *Agent) Respond(ctx context.Context, question string) string {
	observability.IncrementQuestions()

	snapshot, err := a.store.Schema(ctx)
	if err != nil {
		a.log.WarnContext(ctx, "schema snapshot failed", slog.Any("error", err))
		snapshot = ""
	}

	summary, summaryErr := a.schemaSummary(ctx, snapshot)

	var sqlQuery, sqlResult string
	switch {
	case summaryErr != nil:
		sqlResult = ResultServiceUnavailable
	default:
		var genErr error
		sqlQuery, genErr = a.generateSQL(ctx, question, summary)
		switch {
		case genErr != nil:
			a.log.WarnContext(ctx, "sql generation failed", slog.Any("error", genErr))
			sqlQuery = ""
			sqlResult = ResultServiceUnavailable
		case strings.EqualFold(strings.TrimSpace(sqlQuery), NoSQLSentinel):
			sqlResult = ResultNoData
		case !IsSafeSQL(sqlQuery):
			observability.IncrementSQLRejected()
			sqlResult = ResultInvalidSQL
		default:
			sqlResult = a.executeSQL(ctx, sqlQuery)
		}
	}

	answer := a.finalAnswer(ctx, question, sqlResult)

	// Logging happens after the answer is computed so a log failure can never
	// mask a successfully produced reply.
	if err := a.memory.AppendInteraction(ctx, question, sqlQuery, sqlResult, answer); err != nil {
		a.log.WarnContext(ctx, "interaction log write failed", slog.Any("error", err))
	}
	return answer
}

// HashSnapshot computes the stable content hash of a schema snapshot.
func HashSnapshot(snapshot string) string {
	digest := sha256.Sum256([]byte(snapshot))
	return hex.EncodeToString(digest[:])
}

// schemaSummary resolves the summary for the given snapshot through the
// singleton cache. Invalidation is purely hash-driven: any schema drift
// regenerates, and an unchanged schema never re-calls the LLM.
func (a *Agent) schemaSummary(ctx context.Context, snapshot string) (string, error) {
	if strings.TrimSpace(snapshot) == "" {
		return NoSchemaSummary, nil
	}

	hash := HashSnapshot(snapshot)
	if record, err := a.memory.GetSummary(ctx); err == nil && record.SchemaHash == hash {
		observability.IncrementSchemaCacheHit()
		return record.Summary, nil
	} else if err != nil && !errors.Is(err, memory.ErrNoSummary) {
		a.log.WarnContext(ctx, "schema cache read failed", slog.Any("error", err))
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	// Another request may have refreshed while this one waited on the lock.
	if record, err := a.memory.GetSummary(ctx); err == nil && record.SchemaHash == hash {
		observability.IncrementSchemaCacheHit()
		return record.Summary, nil
	}

	observability.IncrementSchemaCacheMiss()
	start := time.Now()
	summary, err := a.llm.Summarize(ctx, snapshot)
	observability.ObserveLLMCall("summarize", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("generate schema summary: %w", err)
	}

	if err := a.memory.PutSummary(ctx, hash, summary); err != nil {
		a.log.WarnContext(ctx, "schema cache write failed", slog.Any("error", err))
	}
	return summary, nil
}

func (a *Agent) generateSQL(ctx context.Context, question, summary string) (string, error) {
	start := time.Now()
	sqlQuery, err := a.llm.GenerateSQL(ctx, question, summary)
	observability.ObserveLLMCall("generate_sql", time.Since(start), err)
	if err != nil {
		return "", err
	}
	return llm.StripMarkdownFences(sqlQuery), nil
}

// executeSQL runs a validated query against the primary store and maps any
// failure to one of the fixed result strings.
func (a *Agent) executeSQL(ctx context.Context, sqlQuery string) string {
	execCtx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	result, err := a.store.Execute(execCtx, sqlQuery)
	if err != nil {
		var execErr *store.ExecError
		if errors.As(err, &execErr) {
			switch execErr.Kind {
			case store.KindNotFound:
				return ResultTableNotFound
			case store.KindSyntax:
				return ResultSyntaxError
			case store.KindExecution:
				return ResultExecutionError
			}
		}
		return ResultDatabaseError
	}
	if len(result.Rows) == 0 {
		return ResultNoData
	}
	return formatRows(result.Rows)
}

func (a *Agent) finalAnswer(ctx context.Context, question, sqlResult string) string {
	start := time.Now()
	answer, err := a.llm.Answer(ctx, question, sqlResult)
	observability.ObserveLLMCall("answer", time.Since(start), err)
	if err != nil {
		a.log.WarnContext(ctx, "final answer generation failed", slog.Any("error", err))
		return FallbackAnswer
	}
	return strings.TrimSpace(answer)
}

func formatRows(rows [][]any) string {
	var b strings.Builder
	b.WriteString("[")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, value := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%v", value)
		}
		b.WriteString(")")
	}
	b.WriteString("]")
	return b.String()
}
