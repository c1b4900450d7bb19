package migrations

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	statements []string
}

func (r *recordingExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	return pgconn.CommandTag{}, nil
}

func TestApplyOrdersScripts(t *testing.T) {
	up, err := Names(Up)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_tracker.up.sql", "0002_outbox.up.sql"}, up)

	down, err := Names(Down)
	require.NoError(t, err)
	require.Equal(t, []string{"0002_outbox.down.sql", "0001_tracker.down.sql"}, down)

	exec := &recordingExecer{}
	applied, err := Apply(context.Background(), exec, Up)
	require.NoError(t, err)
	require.Equal(t, up, applied)
	require.True(t, strings.Contains(exec.statements[0], "CREATE TABLE IF NOT EXISTS users"))
	require.True(t, strings.Contains(exec.statements[1], "CREATE TABLE IF NOT EXISTS outbox"))
	require.Contains(t, exec.statements[0], "experience             BIGINT")
	require.Contains(t, exec.statements[0], "ALTER COLUMN experience TYPE BIGINT")
}
