// Command oauthcallback sirve el endpoint de callback OAuth y tareas de
// mantenimiento (migraciones, purga de outer requests vencidos).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/oauthcallback/internal/config"
	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
	"github.com/dropDatabas3/oauthcallback/internal/store/migrate"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath = os.Getenv("CONFIG_PATH")
		envFile = ".env"
		cfg     *config.Config
	)

	root := &cobra.Command{
		Use:           "oauthcallback",
		Short:         "Servicio de callback OAuth multi-tenant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env es opcional: las variables del sistema siguen valiendo.
			_ = godotenv.Load(envFile)

			c, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg = c
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "oauthcallback",
				Version:     version,
			})
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "archivo YAML de configuración (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "archivo .env a precargar")

	conf := func() *config.Config { return cfg }
	root.AddCommand(
		newServeCmd(conf),
		newMigrateCmd(conf),
		newPurgeCmd(conf),
	)
	return root
}

func newMigrateCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones pendientes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := conf()
			res, err := migrate.UpDSN(cmd.Context(), cfg.Storage.Driver, cfg.Storage.DSN)
			if err != nil {
				return err
			}
			if len(res.Applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "sin migraciones pendientes")
				return nil
			}
			for _, v := range res.Applied {
				fmt.Fprintf(cmd.OutOrStdout(), "aplicada %05d\n", v)
			}
			return nil
		},
	}
}

func newPurgeCmd(conf func() *config.Config) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge-expired",
		Short: "Borra outer requests vencidos",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), conf())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.PurgeExpired(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "borrados %d\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "margen adicional tras el vencimiento")
	return cmd
}

func withLogger(ctx context.Context) context.Context {
	return logger.ToContext(ctx, logger.L())
}
