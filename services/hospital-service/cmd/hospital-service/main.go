package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/knocktern/hospital-booking/libs/config"
	"github.com/knocktern/hospital-booking/libs/db"
	"github.com/knocktern/hospital-booking/libs/grpcx"
	"github.com/knocktern/hospital-booking/libs/runtime"
	"github.com/knocktern/hospital-booking/services/hospital-service/migrations"
	"github.com/spf13/cobra"
)

const serviceName = "hospital-service"

func main() {
	var configFile string
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Hospital appointment booking API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = config.String("CONFIG_FILE", "")
			}
			return config.Load(configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (json or yaml); env vars still win")

	root.AddCommand(serveCmd(), migrateCmd(), healthcheckCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			return serve(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				n, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, s := range statuses {
					state := "pending"
					if s.AppliedAt != nil {
						state = "applied " + s.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(out, "%03d %-32s %s\n", s.Version, s.Name, state)
				}
				return nil
			})
		},
	})
	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *db.Migrator) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

// healthcheckCmd probes the gRPC health service; used as a container
// HEALTHCHECK where no HTTP client is installed.
func healthcheckCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Exit non-zero unless the running server reports SERVING",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				port, err := config.Port("GRPC_PORT", "9090")
				if err != nil {
					return err
				}
				addr = "127.0.0.1:" + port
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return grpcx.Probe(ctx, addr, serviceName, 3*time.Second)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (default 127.0.0.1:$GRPC_PORT)")
	return cmd
}
