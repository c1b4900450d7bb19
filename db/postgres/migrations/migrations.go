// Package migrations embeds the Postgres schema and applies it in order.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed *.sql
var files embed.FS

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Direction selects up or down scripts.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Names lists the scripts for a direction in execution order: ascending for up,
// descending for down.
func Names(dir Direction) ([]string, error) {
	entries, err := fs.Glob(files, "*."+string(dir)+".sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	if dir == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(entries)))
	}
	return entries, nil
}

// Apply executes every script of a direction. Up scripts are idempotent.
func Apply(ctx context.Context, db Execer, dir Direction) ([]string, error) {
	names, err := Names(dir)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(body)) == "" {
			continue
		}
		if _, err := db.Exec(ctx, string(body)); err != nil {
			return nil, fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return names, nil
}
