package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evalscribe/evalscribe/internal/app"
	"github.com/evalscribe/evalscribe/internal/config"
	"github.com/evalscribe/evalscribe/internal/db"
	"github.com/evalscribe/evalscribe/internal/logging"
	"github.com/evalscribe/evalscribe/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logging.RecoverPanic("serve", nil)

		conn, err := db.Connect()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, conn)
		if err != nil {
			return err
		}
		defer application.Shutdown()

		srv := server.New(application.Orchestrator, application.Sessions, application.Logs, application.Curricula, config.Get())
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
