package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gruhno/caseforge/internal/config"
	"github.com/gruhno/caseforge/internal/server"
	"github.com/gruhno/caseforge/internal/store"
)

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only HTTP API",
	Long:  "Serves the process taxonomy, generated documents, use-case candidates, and batch job status over HTTP.",
	RunE:  runServeCmd,
}

var servePort int

func init() {
	serveCommand.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")

	rootCmd.AddCommand(serveCommand)
}

func runServeCmd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := server.New(server.Config{Port: servePort, StateDir: cfg.StateDir}, st)
	return srv.Start()
}
