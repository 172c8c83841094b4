package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ApplyDDL выполняет map[имя]sql по возрастанию имени. Ожидается idempotent DDL (create ... if not exists).
func ApplyDDL(ctx context.Context, db *sql.DB, ddl map[string]string) error {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	for _, k := range keys {
		sqlText := strings.TrimSpace(ddl[k])
		if sqlText == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, sqlText); err != nil {
			// duplicate_object (42710): объект уже создан параллельным стартом
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "42710" {
				slog.InfoContext(ctx, "DDL skipped (already exists)", "step", k, "constraint", pgErr.ConstraintName)
				continue
			}
			e := strings.ToLower(err.Error())
			if strings.Contains(e, "already exists") {
				slog.InfoContext(ctx, "DDL skipped (already exists)", "step", k, "err", err)
				continue
			}
			return fmt.Errorf("DDL apply failed at %s: %w", k, err)
		}
		slog.DebugContext(ctx, "DDL applied", "step", k)
	}
	return nil
}

// Migrate создаёт таблицы и индексы приложения.
func Migrate(ctx context.Context, db *sql.DB) error {
	return ApplyDDL(ctx, db, Schema())
}
