package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkeye/meshroom/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagName     string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "peer",
	Short: "Headless mesh participant for the signaling relay",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		cfg, err := config.LoadPeer()
		if err != nil {
			return err
		}
		peerCfg = cfg
		if flagServer != "" {
			peerCfg.ServerURL = flagServer
		}
		level := peerCfg.LogLevel
		if flagLogLevel != "" {
			level = flagLogLevel
		}
		zerolog.SetGlobalLevel(config.ParseLevel(level))
		return nil
	},
}

var peerCfg *config.PeerConfig

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "", "relay base URL (overrides server_url)")
	rootCmd.PersistentFlags().StringVarP(&flagName, "name", "n", "", "display name used for the session")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	rootCmd.AddCommand(joinCmd, historyCmd, checkCmd)
}

// Execute runs the root command; it is called once by main.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		cancel()
		os.Exit(1)
	}
}
