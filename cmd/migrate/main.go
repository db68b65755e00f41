package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	migrateV4 "github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/yourusername/auth-api/internal/config"
	"github.com/yourusername/auth-api/pkg/database"
)

func main() {
	_ = godotenv.Load()

	var (
		dsn    = os.Getenv("DATABASE_URL")
		source = envOr("DATABASE_MIGRATIONS_SOURCE", database.DefaultMigrationsSource)
		db     *sql.DB
		m      *migrateV4.Migrate
	)

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Schema migrations for the postgres credential store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				// Без DSN собираем его из DATABASE_* через общий конфиг
				dbCfg := config.DatabaseConfig{
					Host:     envOr("DATABASE_HOST", "localhost"),
					Port:     envOr("DATABASE_PORT", "5432"),
					User:     envOr("DATABASE_USER", "postgres"),
					Password: os.Getenv("DATABASE_PASSWORD"),
					DBName:   envOr("DATABASE_DBNAME", "auth_db"),
					SSLMode:  envOr("DATABASE_SSLMODE", "disable"),
				}
				dsn = dbCfg.PostgresConnectionString()
			}

			var err error
			db, err = sql.Open("postgres", dsn)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			m, err = database.NewMigrator(db, source)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if db != nil {
				_ = db.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", dsn, "Postgres DSN (env DATABASE_URL)")
	root.PersistentFlags().StringVar(&source, "source", source, "Migrations source (env DATABASE_MIGRATIONS_SOURCE)")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(m, m.Up())
		},
	}

	downCmd := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the given number of migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return report(m, m.Steps(-steps))
		},
	}

	forceCmd := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("version must be an integer, got %q", args[0])
			}
			return report(m, m.Force(version))
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return report(m, nil)
		},
	}

	root.AddCommand(upCmd, downCmd, forceCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// report печатает текущую версию схемы после операции
func report(m *migrateV4.Migrate, opErr error) error {
	if opErr != nil && !errors.Is(opErr, migrateV4.ErrNoChange) {
		return opErr
	}
	if errors.Is(opErr, migrateV4.ErrNoChange) {
		fmt.Println("no change")
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrateV4.ErrNilVersion):
		fmt.Println("version: none")
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("version: %d dirty: %t\n", version, dirty)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
