package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/idea-forge/internal/server"
	"github.com/jonathan/idea-forge/internal/server/ratelimit"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status API server",
	Long: `Start an HTTP server that exposes the run artifacts, the run index and archive
listings, and accepts batch submissions whose progress streams as Server-Sent
Events. Set server.jwt_secret (or IDEA_FORGE_JWT_SECRET) to require bearer tokens.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	ctx, stop := withSignals(commandContext(cmd))
	defer stop()

	a, err := newApp(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	jwtCfg, err := cfg.Server.JWT()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if jwtCfg == nil {
		a.logger.Warn("no jwt secret configured; the API is unauthenticated")
	}

	opts := server.Options{
		Port:      cfg.Server.Port,
		Store:     a.store,
		Index:     a.index,
		Archiver:  a.archiver,
		Ledger:    a.ledger(),
		Batch:     a.batchOptions(nil),
		JWT:       jwtCfg,
		RateLimit: ratelimit.ForBudgets(cfg.Server.RequestsPerMinute, cfg.Server.BatchesPerHour),
		Logger:    a.logger,
	}
	// Without working agents the API still serves artifacts read-only.
	if runner, err := a.runner(ctx, a.mode()); err != nil {
		a.logger.Warn("batch submission disabled", "error", err)
	} else {
		opts.Runner = runner
	}

	srv, err := server.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start(ctx)
}
