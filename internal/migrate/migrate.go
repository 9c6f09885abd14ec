// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/and161185/pollbox/migrations"
)

// Up runs all pending migrations from the embedded filesystem.
func Up(ctx context.Context, dsn string, log *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(zapGooseLogger{l: log.Sugar().Named("migrate")})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err == nil {
		log.Info("schema ready", zap.Int64("version", v))
	}
	return nil
}

// zapGooseLogger routes goose output through zap.
type zapGooseLogger struct{ l *zap.SugaredLogger }

func (g zapGooseLogger) Fatalf(format string, v ...any) { g.l.Fatalf(format, v...) }
func (g zapGooseLogger) Printf(format string, v ...any) { g.l.Infof(format, v...) }
