package main

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/fentz26/familydash/internal/reconcile"
	"github.com/fentz26/familydash/internal/snapshot"
	"github.com/spf13/cobra"
)

var (
	syncSnapshot string
	syncRemote   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the local snapshot with the daemon",
	Long: `Runs one reconciliation pass: fetches the daemon's tasks, merges them into
the local snapshot by creation time and pushes back local tasks the daemon
lacks. With --remote, asks the daemon to run its own pass instead.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncSnapshot, "snapshot", "", "Path to the local snapshot (default from config)")
	syncCmd.Flags().BoolVar(&syncRemote, "remote", false, "Trigger a pass inside the daemon")
}

func runSync(cmd *cobra.Command, args []string) error {
	c := newClient()
	if syncRemote {
		rep, err := c.ForceSync(cmd.Context())
		if err != nil {
			return err
		}
		printReport(rep)
		return nil
	}

	path := syncSnapshot
	if path == "" {
		path = cfg.SnapshotPath
	}
	engine := reconcile.NewEngine(c, snapshot.NewFile(path), reconcile.Options{
		PassTimeout: cfg.Sync.PassTimeout,
		Logger:      log.Default(),
	})
	rep, err := engine.SyncNow(cmd.Context())
	if err != nil {
		return err
	}
	printReport(rep)
	return nil
}

func printReport(rep reconcile.Report) {
	fmt.Printf("Remote %d, local %d, merged %d\n", rep.Remote, rep.Local, rep.Merged)
	if rep.Pushed > 0 || rep.PushFailed > 0 {
		fmt.Printf("Pushed %d, failed %d\n", rep.Pushed, rep.PushFailed)
	}
	if rep.Emitted {
		fmt.Println("Snapshot updated")
	}
}
