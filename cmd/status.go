package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jcdickinson/doxylink/internal/config"
	"github.com/jcdickinson/doxylink/internal/daemon"
	"github.com/jcdickinson/doxylink/internal/rpc"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured roles and loaded tag files",
	Run:   runStatus,
}

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) {
	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Status(context.Background())
	if err != nil {
		log.Fatalf("status failed: %v", err)
	}

	if statusJSON {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
		return
	}

	if len(resp.Roles) == 0 {
		fmt.Println("no roles configured")
		return
	}

	for _, r := range resp.Roles {
		state := "not loaded"
		if r.Loaded {
			state = fmt.Sprintf("%d entries, %d skipped", r.Entries, r.Skipped)
			if r.FromCache {
				state += ", from cache"
			}
		}
		fmt.Printf("  %s: %s -> %s [%s]\n", r.Role, r.Source, r.RootDir, state)
	}
}

var reloadCmd = &cobra.Command{
	Use:   "reload [role...]",
	Short: "Re-read tag files (all roles when none are named)",
	Run:   runReload,
}

func runReload(cmd *cobra.Command, args []string) {
	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Reload(context.Background(), args)
	if err != nil {
		log.Fatalf("reload failed: %v", err)
	}

	failed := false
	for _, r := range resp.Results {
		if r.Error != "" {
			failed = true
			fmt.Printf("  %s: %s\n", r.Role, r.Error)
			continue
		}
		from := ""
		if r.FromCache {
			from = " (from cache)"
		}
		fmt.Printf("  %s: %d entries, %d skipped%s\n", r.Role, r.Entries, r.Skipped, from)
	}
	if failed {
		os.Exit(1)
	}
}

var unresolvedCmd = &cobra.Command{
	Use:   "unresolved [role]",
	Short: "List symbols that could not be resolved during rewrites",
	Args:  cobra.MaximumNArgs(1),
	Run:   runUnresolved,
}

var (
	unresolvedClear    bool
	unresolvedDocument string
)

func init() {
	unresolvedCmd.Flags().BoolVar(&unresolvedClear, "clear", false, "forget the listed references")
	unresolvedCmd.Flags().StringVar(&unresolvedDocument, "document", "", "only references from this markdown file")
}

func runUnresolved(cmd *cobra.Command, args []string) {
	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	req := rpc.UnresolvedRequest{Document: absPath(unresolvedDocument), Clear: unresolvedClear}
	if len(args) == 1 {
		req.Role = args[0]
	}
	resp, err := client.Unresolved(context.Background(), req)
	if err != nil {
		log.Fatalf("unresolved failed: %v", err)
	}

	if unresolvedClear {
		fmt.Printf("cleared %d reference(s)\n", resp.Cleared)
		return
	}
	if len(resp.Unresolved) == 0 {
		fmt.Println("no unresolved references")
		return
	}
	for _, u := range resp.Unresolved {
		fmt.Printf("  %s:%s x%d  %s\n", u.Role, u.Symbol, u.Occurrences, u.Document)
	}
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	Run:   runStop,
}

func runStop(cmd *cobra.Command, args []string) {
	client := daemon.NewClient(config.SocketPath())
	if !client.IsAvailable() {
		fmt.Println("daemon is not running")
		return
	}

	// The daemon may drop the connection as it exits.
	client.Shutdown(context.Background())
	fmt.Println("daemon stopped")
}
