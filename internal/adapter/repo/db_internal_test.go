package repo

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aq2208/gcheckout-api/internal/usecase"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"mysql lock wait timeout", &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, usecase.ErrRetryable},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}, usecase.ErrRetryable},
		{"wrapped deadlock", fmt.Errorf("decrement p1: %w", &mysql.MySQLError{Number: 1213}), usecase.ErrRetryable},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), usecase.ErrRetryable},
		{"no rows", sql.ErrNoRows, usecase.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tc.err), tc.want)
		})
	}

	other := &mysql.MySQLError{Number: 1064, Message: "syntax error"}
	got := translate(other)
	assert.Same(t, other, got)
	assert.NotErrorIs(t, got, usecase.ErrRetryable)
	assert.NoError(t, translate(nil))
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, isDuplicate(&mysql.MySQLError{Number: 1062}))
	assert.True(t, isDuplicate(errors.New("constraint failed: UNIQUE constraint failed: orders.idempotency_key (2067)")))
	assert.False(t, isDuplicate(&mysql.MySQLError{Number: 1205}))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	s := strings.Repeat("a", 999) + "é"
	got := truncate(s, 1000)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", 999), got)

	assert.Equal(t, "失败", truncate("失败了", 7))
	assert.Equal(t, "short", truncate("short", 1000))
}
