package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_gateway_tables.sql
var createGatewayTablesSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createGatewayTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS conversation_messages;
				DROP TABLE IF EXISTS auto_reply_rules;
				DROP TABLE IF EXISTS quiz_answers;
				DROP TABLE IF EXISTS quiz_questions;
				DROP TABLE IF EXISTS quiz_sessions;
				DROP TABLE IF EXISTS quiz_takers;
				DROP TABLE IF EXISTS tenant_channel_configs;
			`)
			return err
		},
	)
}
