package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/authflow/internal/app"
	"github.com/dropDatabas3/authflow/internal/config"
	httpserver "github.com/dropDatabas3/authflow/internal/http"
	"github.com/dropDatabas3/authflow/internal/observability/logger"
)

func main() {
	var (
		cfgPath string
		envFile string
	)

	loadConfig := func() (*config.Config, error) {
		// .env primero: la config lee overrides del entorno.
		if envFile != "" {
			_ = godotenv.Load(envFile)
		} else {
			_ = godotenv.Load()
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{
			Env:         cfg.App.Env,
			Level:       cfg.Log.Level,
			ServiceName: "authflow",
		})
		return cfg, nil
	}

	root := &cobra.Command{
		Use:           "authflow",
		Short:         "Servicio de flujos de autenticación y ciclo de vida de cuentas",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "configs/config.yaml", "Ruta del YAML de configuración")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Ruta de un .env a cargar antes de la config")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if cfg.Flags.Migrate && cfg.Storage.Driver == "postgres" {
				if err := c.Migrate(ctx); err != nil {
					return err
				}
			}

			handler, err := c.Router()
			if err != nil {
				return err
			}
			logger.L().Info("servidor escuchando", logger.String("addr", cfg.Server.Addr))
			err = httpserver.Start(ctx, cfg.Server.Addr, handler)
			if err != nil {
				logger.L().Error("servidor terminó con error", logger.Err(err))
			}
			return err
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de esquema pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Migrate(ctx)
		},
	}

	configCheckCmd := &cobra.Command{
		Use:   "config-check",
		Short: "Valida la configuración y sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := cfg.AuthConfig(); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "Lista los providers configurados por tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for _, s := range cfg.Auth.PreProviders {
				fmt.Printf("%-10s %-20s sort=%d\n", "pre", s.Kind, s.Sort)
			}
			for _, s := range cfg.Auth.PrimaryProviders {
				fmt.Printf("%-10s %-20s sort=%d\n", "primary", s.Kind, s.Sort)
			}
			for _, s := range cfg.Auth.SecondaryProviders {
				fmt.Printf("%-10s %-20s sort=%d\n", "secondary", s.Kind, s.Sort)
			}
			return nil
		},
	}

	root.AddCommand(serveCmd, migrateCmd, configCheckCmd, providersCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
