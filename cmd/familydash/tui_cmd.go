package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/fentz26/familydash/internal/client"
	"github.com/fentz26/familydash/internal/tui"
	"github.com/spf13/cobra"
)

// daemonProbeTimeout bounds each readiness check.
const daemonProbeTimeout = 500 * time.Millisecond

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive week view",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	c := newClient()
	if !isDaemonRunning(c) {
		fmt.Println("⚡ familydash daemon not running. Starting background service...")
		if err := startDaemon(c); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	app := tui.New(c)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func isDaemonRunning(c *client.Client) bool {
	ctx, cancel := context.WithTimeout(context.Background(), daemonProbeTimeout)
	defer cancel()
	return c.Ping(ctx) == nil
}

func startDaemon(c *client.Client) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	// Start "familydash daemon" in background with the same config
	cmd := exec.Command(exe, "daemon", "--config", configPath)
	// Detach process so it survives TUI exit
	configureDaemonProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}
	if err := cmd.Process.Release(); err != nil {
		return err
	}

	fmt.Print("   Waiting for daemon...")
	for i := 0; i < 20; i++ { // Wait up to 5 seconds
		if isDaemonRunning(c) {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", c.BaseURL())
}
