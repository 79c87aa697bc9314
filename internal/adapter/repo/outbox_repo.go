package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/aq2208/gcheckout-api/internal/usecase"
)

const (
	outboxPending = "PENDING"
	outboxSent    = "SENT"
	outboxFailed  = "FAILED"
)

const maxLastErr = 1000

type outboxWriter struct {
	q   dbtx
	now func() time.Time
}

func (w outboxWriter) Enqueue(ctx context.Context, channel string, payload []byte) error {
	now := ts(w.now())
	_, err := w.q.ExecContext(ctx, `
INSERT INTO outbox (channel, payload, status, retry_count, next_attempt_at, created_at)
VALUES (?, ?, ?, 0, ?, ?)`, channel, payload, outboxPending, now, now)
	return translate(err)
}

type MySQLOutboxRepo struct{ db *sql.DB }

func NewMySQLOutboxRepo(db *sql.DB) *MySQLOutboxRepo { return &MySQLOutboxRepo{db: db} }

func (r *MySQLOutboxRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]usecase.OutboxRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, channel, payload, retry_count FROM outbox
WHERE status = ? AND next_attempt_at <= ?
ORDER BY id LIMIT ?`, outboxPending, ts(now), limit)
	if err != nil {
		return nil, fmt.Errorf("outbox due: %w", err)
	}
	var due []usecase.OutboxRecord
	for rows.Next() {
		var rec usecase.OutboxRecord
		if err := rows.Scan(&rec.ID, &rec.Channel, &rec.Payload, &rec.RetryCount); err != nil {
			rows.Close()
			return nil, err
		}
		due = append(due, rec)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	claimed := due[:0]
	for _, rec := range due {
		res, err := r.db.ExecContext(ctx, `
UPDATE outbox SET next_attempt_at = ?
WHERE id = ? AND status = ? AND next_attempt_at <= ?`,
			ts(now.Add(lease)), rec.ID, outboxPending, ts(now))
		if err != nil {
			return claimed, fmt.Errorf("outbox claim %d: %w", rec.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			claimed = append(claimed, rec)
		}
	}
	return claimed, nil
}

func (r *MySQLOutboxRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET status = ?, sent_at = ?, last_error = NULL WHERE id = ?`,
		outboxSent, ts(at), id)
	return err
}

func (r *MySQLOutboxRepo) Reschedule(ctx context.Context, id int64, retryCount int, next time.Time, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE outbox SET retry_count = ?, next_attempt_at = ?, last_error = ? WHERE id = ? AND status = ?`,
		retryCount, ts(next), truncate(lastErr, maxLastErr), id, outboxPending)
	return err
}

func (r *MySQLOutboxRepo) MarkFailed(ctx context.Context, id int64, retryCount int, lastErr string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET status = ?, retry_count = ?, last_error = ? WHERE id = ?`,
		outboxFailed, retryCount, truncate(lastErr, maxLastErr), id)
	return err
}

// truncate caps s at n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var _ usecase.OutboxStore = (*MySQLOutboxRepo)(nil)
var _ usecase.OutboxWriter = outboxWriter{}
