// Package pgplugin implements the "default" profiler backend plugin,
// persisting statement/cursor/record-source definitions and request
// timings to Postgres. Grounded on internal/database/database.go's
// pool lifecycle and internal/database/migrations.go's embedded-goose
// pattern from the teacher.
package pgplugin

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for goose
	"github.com/pressly/goose/v3"

	"github.com/nmslite/profilerd/internal/profiler/plugin"
)

// Migrate runs the embedded schema migrations against dsn using
// goose, the same shape as database.RunMigrations in the teacher.
func Migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(EmbeddedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run pgplugin migrations: %w", err)
	}
	return nil
}

// Plugin is the Postgres-backed profiler.Plugin. One instance is
// shared by every session referencing the "default" plugin name
// while it stays in the profiler manager's active-plugin map.
type Plugin struct {
	pool        *pgxpool.Pool
	frequencyHz uint64
}

// New constructs a Plugin bound to an already-open pool. Pool
// ownership stays with the caller (it's shared process-wide, not
// per-plugin-instance).
func New(pool *pgxpool.Pool) *Plugin {
	return &Plugin{pool: pool}
}

func (p *Plugin) Init(ctx context.Context, frequencyHz uint64) error {
	p.frequencyHz = frequencyHz
	return p.pool.Ping(ctx)
}

func (p *Plugin) StartSession(ctx context.Context, description, options string, timestamp time.Time) (plugin.Session, error) {
	sess := &session{
		id:         time.Now().UnixNano(),
		instanceID: uuid.NewString(),
		pool:       p.pool,
		statements: make(map[int64]bool),
		cursors:    make(map[int64]bool),
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO profiler_sessions (id, plugin_instance_id, description, options, started_at) VALUES ($1, $2, $3, $4, $5)`,
		sess.id, sess.instanceID, description, options, timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert profiler session: %w", err)
	}

	return sess, nil
}

// Flush is a no-op for pgplugin: every call already writes
// synchronously, so there is nothing buffered to push out. Real
// backends that batch writes (compare internal/poller/batchWriter.go)
// would flush a pending buffer here.
func (p *Plugin) Flush(ctx context.Context) error {
	return nil
}

type session struct {
	id         int64
	instanceID string
	pool       *pgxpool.Pool
	statements map[int64]bool
	cursors    map[int64]bool
}

func (s *session) ID() int64 { return s.id }

func (s *session) Flags() plugin.Flags {
	return plugin.FlagRecordTimings
}

func (s *session) DefineStatement(ctx context.Context, statementID, parentStatementID int64, kind, packageName, routineName, sqlText string) error {
	s.statements[statementID] = true
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiler_statements (session_id, statement_id, parent_statement_id, kind, package_name, routine_name, sql_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, statement_id) DO NOTHING`,
		s.id, statementID, parentStatementID, kind, packageName, routineName, sqlText)
	if err != nil {
		return fmt.Errorf("insert profiler statement: %w", err)
	}
	return nil
}

func (s *session) DefineCursor(ctx context.Context, statementID, cursorID int64, name string, line, column uint32) error {
	s.cursors[cursorID] = true
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiler_cursors (session_id, statement_id, cursor_id, name, line, column_no)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, statement_id, cursor_id) DO NOTHING`,
		s.id, statementID, cursorID, name, line, column)
	if err != nil {
		return fmt.Errorf("insert profiler cursor: %w", err)
	}
	return nil
}

func (s *session) DefineRecordSource(ctx context.Context, statementID, cursorID int64, sequence, level uint32, description string, parentSequence uint32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiler_record_sources (session_id, statement_id, cursor_id, sequence, level, description, parent_sequence)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, statement_id, cursor_id, sequence) DO NOTHING`,
		s.id, statementID, cursorID, sequence, level, description, parentSequence)
	if err != nil {
		return fmt.Errorf("insert profiler record source: %w", err)
	}
	return nil
}

func (s *session) OnRequestFinish(ctx context.Context, statementID, profileRequestID int64, timestamp time.Time, stats plugin.Stats) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiler_request_stats (session_id, statement_id, profile_request_id, finished_at, elapsed_nanos, reads, writes, fetches)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.id, statementID, profileRequestID, timestamp, stats.ElapsedNanos, stats.Reads, stats.Writes, stats.Fetches)
	if err != nil {
		return fmt.Errorf("insert profiler request stats: %w", err)
	}
	return nil
}

func (s *session) Finish(ctx context.Context, timestamp time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE profiler_sessions SET finished_at = $2 WHERE id = $1`, s.id, timestamp)
	if err != nil {
		return fmt.Errorf("finish profiler session: %w", err)
	}
	return nil
}

func (s *session) Cancel(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE profiler_sessions SET cancelled = TRUE WHERE id = $1`, s.id)
	if err != nil {
		return fmt.Errorf("cancel profiler session: %w", err)
	}
	return nil
}

func (s *session) Flush(ctx context.Context) error {
	return nil
}
