package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/database"
	"github.com/saeid-a/FinCoachBack/internal/logger"
	"github.com/saeid-a/FinCoachBack/internal/services"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	log := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV"))

	rootCmd := &cobra.Command{
		Use:           "sweeper",
		Short:         "Complete booked sessions whose end time has passed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(runCmd(log))
	rootCmd.AddCommand(serveCmd(log))
	rootCmd.AddCommand(lambdaCmd(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("sweeper failed")
		stop()
		os.Exit(1)
	}
}

func runCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a single sweep and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer pool.Close()

			result, err := services.NewSweeperService(pool, log).Run(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func serveCmd(log zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sweep on a fixed interval until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			pool, err := connect(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer pool.Close()

			sweeper := services.NewSweeperService(pool, log)
			group, ctx := errgroup.WithContext(cmd.Context())
			group.Go(func() error { return sweeper.Loop(ctx, interval) })
			log.Info().Dur("interval", interval).Msg("sweeper started")
			return group.Wait()
		},
	}
	cmd.Flags().Duration("interval", 5*time.Minute, "time between sweeps")
	return cmd
}

// lambdaCmd serves scheduled EventBridge invocations.
func lambdaCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda handler for scheduled events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer pool.Close()

			sweeper := services.NewSweeperService(pool, log)
			lambda.Start(func(ctx context.Context, event events.CloudWatchEvent) (*services.SweepResult, error) {
				now := event.Time
				if now.IsZero() {
					now = time.Now()
				}
				log.Info().Str("event_id", event.ID).Time("at", now).Msg("scheduled sweep")
				return sweeper.Run(ctx, now)
			})
			return nil
		},
	}
}

func connect(ctx context.Context, log zerolog.Logger) (*pgxpool.Pool, error) {
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return nil, errors.New("DB_URL environment variable is required")
	}
	return database.Connect(ctx, dbURL, log)
}
