// Package repo holds the SQL adapters. Statements stick to the subset MySQL
// and SQLite share (? placeholders, no NOW(), no dialect upserts) so the
// same code runs against MySQL in production and SQLite in tests.
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/go-sql-driver/mysql"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const tsLayout = "2006-01-02 15:04:05.000000"

// ts renders a time in a fixed-width UTC layout both engines compare correctly.
func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

// scanTime accepts what either driver hands back for a DATETIME column.
type scanTime struct {
	Time  time.Time
	Valid bool
}

func (s *scanTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		s.Time, s.Valid = time.Time{}, false
		return nil
	case time.Time:
		s.Time, s.Valid = x.UTC(), true
		return nil
	case []byte:
		return s.parse(string(x))
	case string:
		return s.parse(x)
	}
	return fmt.Errorf("repo: cannot scan %T into time", v)
}

func (s *scanTime) parse(raw string) error {
	for _, layout := range []string{tsLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			s.Time, s.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("repo: parse time %q", raw)
}

func (s scanTime) ptr() *time.Time {
	if !s.Valid {
		return nil
	}
	t := s.Time
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// placeholders returns "?, ?, ?" for n args.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// MySQL lock wait timeout and deadlock victim; both are safe to retry.
const (
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
	erDupEntry        = 1062
)

func isRetryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == erLockWaitTimeout || me.Number == erLockDeadlock
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == erDupEntry
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// translate maps driver errors to use case sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return usecase.ErrNotFound
	}
	if isRetryable(err) {
		return fmt.Errorf("%w: %v", usecase.ErrRetryable, err)
	}
	return err
}
