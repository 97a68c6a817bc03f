package main

import (
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/modelgate/modelgate/internal/clientside"
	"github.com/modelgate/modelgate/internal/config"
)

var errRequiredClientID = errors.New("modelgate-client: --client-id is required")

func main() {
	v := config.NewClientViper()
	var flagEmail, flagPassword string

	cmd := &cobra.Command{
		Use:   "modelgate-client",
		Short: "Tunneling agent exposing a local inference daemon through modelgate-server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(v)
			if err != nil {
				return err
			}
			if cfg.ClientID == "" {
				return errRequiredClientID
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := clientside.New(clientside.Options{
				Config:       cfg,
				FlagEmail:    flagEmail,
				FlagPassword: flagPassword,
				Logger:       logger,
			})
			return client.Run(ctx)
		},
	}

	cmd.Flags().String("client-id", "", "unique identifier this agent registers as (required)")
	cmd.Flags().String("server-host", "", "modelgate-server host")
	cmd.Flags().String("control-port", "", "modelgate-server control port")
	cmd.Flags().String("proxy-port", "", "modelgate-server proxy port")
	cmd.Flags().String("local-service-addr", "", "address of the local inference daemon to expose")
	cmd.Flags().String("token-file", "", "path to persist the session token")
	cmd.Flags().StringVar(&flagEmail, "email", "", "account email, used when no token is on disk")
	cmd.Flags().StringVar(&flagPassword, "password", "", "account password, used when no token is on disk")

	_ = v.BindPFlag("client_id", cmd.Flags().Lookup("client-id"))
	_ = v.BindPFlag("server_host", cmd.Flags().Lookup("server-host"))
	_ = v.BindPFlag("control_port", cmd.Flags().Lookup("control-port"))
	_ = v.BindPFlag("proxy_port", cmd.Flags().Lookup("proxy-port"))
	_ = v.BindPFlag("local_service_addr", cmd.Flags().Lookup("local-service-addr"))
	_ = v.BindPFlag("token_file", cmd.Flags().Lookup("token-file"))

	if err := cmd.Execute(); err != nil {
		slog.Error("modelgate-client: exiting", "error", err)
		os.Exit(1)
	}
}
