package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/client"
	"github.com/fentz26/familydash/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "familydash",
	Short: "familydash - household organizer",
	Long:  `familydash keeps a household's chores, meals and reminders on one weekly calendar, synced across devices.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("api") {
			apiAddr = c.APIURL
		}
		cfg = c
		log.SetLevel(c.LogLevel())
		return nil
	},
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	configPath string
	apiAddr    string
	cfg        *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(weekCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(configCmd)
}

// newClient returns an API client honoring the configured request timeout.
func newClient() *client.Client {
	c := client.New(apiAddr)
	if cfg != nil {
		c.SetTimeout(cfg.Sync.RequestTimeout)
	}
	return c
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
