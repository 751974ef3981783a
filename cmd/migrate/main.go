package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/database"
	"github.com/saeid-a/FinCoachBack/internal/logger"
	"github.com/saeid-a/FinCoachBack/internal/services"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	log := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV"))

	rootCmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Schema migrations and data backfills",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("dir", "", "migrations directory (searched upwards from the working directory when empty)")

	rootCmd.AddCommand(upCmd(log))
	rootCmd.AddCommand(downCmd(log))
	rootCmd.AddCommand(versionCmd(log))
	rootCmd.AddCommand(backfillCmd(log))

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("migrate failed")
		os.Exit(1)
	}
}

func upCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newMigrator(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
			log.Info().Msg("migration up successful")
			return nil
		},
	}
}

func downCmd(log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			m, err := newMigrator(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			if steps > 0 {
				err = m.Steps(-steps)
			} else {
				err = m.Down()
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
			log.Info().Int("steps", steps).Msg("migration down successful")
			return nil
		},
	}
	cmd.Flags().Int("steps", 0, "number of migrations to roll back (all when zero)")
	return cmd
}

func versionCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := newMigrator(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				log.Info().Msg("no migrations applied")
				return nil
			}
			if err != nil {
				return err
			}
			log.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
			return nil
		},
	}
}

// backfillCmd moves course context out of legacy "[course:<type>:<id>]" message prefixes
// into messages.course_item_id. Safe to re-run.
func backfillCmd(log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill-course-tags",
		Short: "Rewrite legacy course-tagged messages into course_item_id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			batch, _ := cmd.Flags().GetInt("batch")
			dbURL, err := databaseURL()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			pool, err := database.Connect(ctx, dbURL, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			chat := services.NewChatService(pool, nil, nil, log)
			updated, err := chat.BackfillCourseTags(ctx, batch)
			if err != nil {
				return fmt.Errorf("backfill after %d rows: %w", updated, err)
			}
			log.Info().Int("updated", updated).Msg("course tag backfill finished")
			return nil
		},
	}
	cmd.Flags().Int("batch", 500, "rows per batch")
	return cmd
}

func databaseURL() (string, error) {
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return "", errors.New("DB_URL environment variable is required")
	}
	return dbURL, nil
}

func newMigrator(cmd *cobra.Command) (*migrate.Migrate, error) {
	dbURL, err := databaseURL()
	if err != nil {
		return nil, err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		if dir, err = findMigrationsDir(); err != nil {
			return nil, err
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return migrate.New("file://"+abs, dbURL)
}

// findMigrationsDir looks for a migrations directory above the working directory and
// next to the executable.
func findMigrationsDir() (string, error) {
	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		current := cwd
		for i := 0; i < 6; i++ {
			candidates = append(candidates, filepath.Join(current, "migrations"))
			parent := filepath.Dir(current)
			if parent == current {
				break
			}
			current = parent
		}
	}
	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, "migrations"),
			filepath.Join(exeDir, "..", "migrations"),
		)
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && info.IsDir() {
			return candidate, nil
		}
	}
	return "", errors.New("migrations directory not found")
}
