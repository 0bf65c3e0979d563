package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilnrun/kiln/pkg/api"
	"github.com/kilnrun/kiln/pkg/auth"
	"github.com/kilnrun/kiln/pkg/config"
	"github.com/kilnrun/kiln/pkg/limits"
	"github.com/kilnrun/kiln/pkg/log"
	"github.com/kilnrun/kiln/pkg/orchestrator"
	"github.com/kilnrun/kiln/pkg/ratelimit"
	"github.com/kilnrun/kiln/pkg/runstore"
	"github.com/kilnrun/kiln/pkg/sandbox"
	"github.com/kilnrun/kiln/pkg/signing"
	"github.com/kilnrun/kiln/pkg/storage"
	"github.com/kilnrun/kiln/pkg/stream"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Kiln - Multi-tenant code execution gateway",
	Long: `Kiln accepts untrusted code over HTTP and executes it inside
strongly isolated, ephemeral containerd sandboxes, returning captured
output, resource usage, and signed URLs for any produced artifacts.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Kiln version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(serverCmd)
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the Kiln gateway server",
	Long: `Start the gateway: the HTTP API, the run orchestrator, and the
containerd-backed sandbox runner. Configuration comes from the optional
config file, overridden by KILN_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		return runServer(cfgPath)
	},
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML config file")
}

func runServer(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("main")

	signer, err := signing.NewSigner([]byte(cfg.SigningKey), cfg.BaseURL, cfg.URLTTL)
	if err != nil {
		return err
	}

	blobs, err := storage.NewStore(cfg.StorageRoot, signer)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create work root: %w", err)
	}

	tenants, err := auth.ParseKeys(cfg.APIKeys)
	if err != nil {
		return err
	}
	limiter := ratelimit.NewLimiter(cfg.DefaultRPS, cfg.DefaultBurst)
	for _, t := range tenants.Tenants() {
		if t.RPS > 0 || t.Burst > 0 {
			rps, burst := t.RPS, t.Burst
			if rps <= 0 {
				rps = cfg.DefaultRPS
			}
			if burst <= 0 {
				burst = cfg.DefaultBurst
			}
			limiter.SetKeyLimits(t.Token, rps, burst)
		}
	}

	runner, err := sandbox.NewContainerdRunner(sandbox.ContainerdConfig{
		SocketPath:      cfg.ContainerdSocket,
		Images:          cfg.Images,
		SeccompProfile:  cfg.SeccompProfile,
		ApparmorProfile: cfg.ApparmorProfile,
		DisableSecurity: cfg.DisableSandboxSecurity,
	})
	if err != nil {
		return err
	}
	defer runner.Close()

	policy := limits.Policy{Defaults: cfg.LimitDefaults, Maximums: cfg.LimitMaximums}
	orch := orchestrator.New(runner, blobs, runstore.NewStore(), policy, cfg.WorkRoot)

	server := api.NewServer(orch, blobs, signer, stream.NewHub(), tenants, limiter)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.ListenAddr); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
