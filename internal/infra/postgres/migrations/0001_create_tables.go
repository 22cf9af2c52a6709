package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_tables.sql
var createTablesSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS respostas;
				DROP TABLE IF EXISTS notas_capacitacao;
				DROP TABLE IF EXISTS notas_entrevista;
				DROP TABLE IF EXISTS notas_dinamica;
				DROP TABLE IF EXISTS resultados;
				DROP TABLE IF EXISTS candidatos;
				DROP TABLE IF EXISTS provas;
			`)
			return err
		},
	)
}
