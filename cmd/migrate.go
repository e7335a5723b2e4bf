package cmd

import (
	"fmt"

	"github.com/jmehdipour/subscribers/internal/config"
	"github.com/jmehdipour/subscribers/internal/db"
	"github.com/jmehdipour/subscribers/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var withClickHouse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		driver := cfg.Database.Driver
		if driver == "" {
			driver = db.DriverMySQL
		}
		storeDB, err := db.Open(driver, cfg.Database.DSN, db.OptsFrom(cfg.Database))
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer storeDB.Close()

		if err := apply(storeDB, driver); err != nil {
			return err
		}
		fmt.Printf(">> %s migration complete\n", driver)

		if !withClickHouse {
			return nil
		}
		chDB, err := db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:     cfg.ClickHouse.DSN,
			SQLOpts: db.OptsFrom(cfg.ClickHouse),
		})
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer chDB.Close()

		if err := apply(chDB, "clickhouse"); err != nil {
			return err
		}
		fmt.Println(">> clickhouse migration complete")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&withClickHouse, "clickhouse", false, "also create the ClickHouse reporting tables")
}

func apply(dbx *sqlx.DB, dialect string) error {
	stmts, err := migrations.Statements(dialect)
	if err != nil {
		return err
	}
	for i, q := range stmts {
		if _, err := dbx.Exec(q); err != nil {
			return fmt.Errorf("%s migration statement %d: %w", dialect, i+1, err)
		}
	}
	return nil
}
