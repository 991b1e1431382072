package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mytourbook/tourbook-relay/pkg/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on, overrides PORT")
	serveCmd.Flags().StringP("addr", "a", "", "address to bind to")
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}

		for _, provider := range cfg.MissingCredentials() {
			slog.Warn("Credentials not configured, upstream calls will be rejected", "provider", provider)
		}

		s, err := server.NewServer(cfg)
		if err != nil {
			slog.Error("Failed to create server", "error", err)
			os.Exit(1)
		}

		for _, route := range s.Routes() {
			slog.Debug("Route", "method", route.Method, "path", route.Path)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := s.ListenAndServe(ctx); err != nil {
			slog.Error("Server stopped", "error", err)
			os.Exit(1)
		}
		slog.Info("Server stopped")
	},
}
