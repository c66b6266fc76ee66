package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/affiliate-orderflow/internal/config"
	"github.com/imrishuroy/affiliate-orderflow/internal/logger"
)

var (
	flagUsername    string
	flagPassword    string
	flagDownloadDir string
	flagHeadless    bool
	flagForceLogin  bool
)

var rootCmd = &cobra.Command{
	Use:   "affiliate-syncer",
	Short: "Sync affiliate orders into the ledger and resolve their landing pages",
	Long: `affiliate-syncer logs in to the affiliate portal when needed, downloads the
last week of orders, saves them to the order ledger and resolves the final
destination URL of every order that does not have one yet.`,
	SilenceUsage: true,
	RunE:         runSync,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one sync (default)",
	Example: `  # use credentials from .env
  affiliate-syncer run

  # override credentials and discard the cached session
  affiliate-syncer run -u me@example.com -p secret --force-login`,
	SilenceUsage: true,
	RunE:         runSync,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagUsername, "username", "u", "", "portal username (overrides DHGATE_USERNAME)")
	pf.StringVarP(&flagPassword, "password", "p", "", "portal password (overrides DHGATE_PASSWORD)")
	pf.StringVar(&flagDownloadDir, "download-dir", "", "directory for archived reports (overrides DOWNLOAD_DIR)")
	pf.BoolVar(&flagHeadless, "headless", true, "run the browser headless (overrides HEADLESS)")
	pf.BoolVar(&flagForceLogin, "force-login", false, "discard cached credentials and log in again")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(runCmd, lambdaCmd)
}

// loadConfig reads the environment and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	o := config.Overrides{
		Username:    flagUsername,
		Password:    flagPassword,
		DownloadDir: flagDownloadDir,
	}
	if cmd.Flags().Changed("headless") {
		o.Headless = &flagHeadless
	}
	cfg.Apply(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := newClients(ctx, cfg)
	if err != nil {
		return err
	}
	s := newRunner(cfg, clients, flagForceLogin, *log)

	sum, err := s.Run(ctx)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "sync failed: "+sum.String())
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sync completed: "+sum.String())
	return nil
}
