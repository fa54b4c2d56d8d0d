package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jcdickinson/doxylink/internal/rpc"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <role> <symbol>",
	Short: "Resolve a C++ symbol against a role's tag file",
	Long: `Resolve a C++ symbol against a role's tag file.

The symbol may carry an explicit title ("Volume <PolyVox::Volume>") and an
argument list ("getVoxelAt(uint16_t)"). Arguments after the role are joined
with spaces, so quoting is optional.`,
	Args: cobra.MinimumNArgs(2),
	Run:  runResolve,
}

var (
	resolveTrace    bool
	resolveJSON     bool
	resolveDocument string
)

func init() {
	resolveCmd.Flags().BoolVar(&resolveTrace, "trace", false, "show how many candidates survived each stage")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "output as JSON")
	resolveCmd.Flags().StringVar(&resolveDocument, "document", "", "markdown file the reference appears in (for relative root_dir)")
}

func runResolve(cmd *cobra.Command, args []string) {
	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	resp, err := client.Resolve(context.Background(), rpc.ResolveRequest{
		Role:     args[0],
		Symbol:   strings.Join(args[1:], " "),
		Document: absPath(resolveDocument),
		Trace:    resolveTrace,
	})
	if err != nil {
		log.Fatalf("resolve failed: %v", err)
	}

	if resolveJSON {
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(out))
	} else {
		printResolve(resp)
	}

	if !resp.Resolved {
		os.Exit(1)
	}
}

func printResolve(resp *rpc.ResolveResponse) {
	if resp.Resolved {
		fmt.Printf("%s -> %s\n", resp.Title, resp.URL)
		fmt.Printf("  %s %s (%s)\n", resp.Kind, resp.Key, resp.Stage)
	} else {
		fmt.Printf("%s: unresolved\n", resp.Title)
	}
	if resp.Warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", resp.Warning)
	}

	if t := resp.Trace; t != nil {
		fmt.Printf("  name:       %s\n", t.Name)
		if t.Arguments != "" {
			fmt.Printf("  arguments:  %s\n", t.Arguments)
		}
		if t.Modifiers != "" {
			fmt.Printf("  modifiers:  %s\n", t.Modifiers)
		}
		fmt.Printf("  piecewise:  %d\n", t.Piecewise)
		reverted := ""
		if t.ClassReverted {
			reverted = " (none class-like, reverted)"
		}
		fmt.Printf("  classes:    %d%s\n", t.Classes, reverted)
		fmt.Printf("  templates:  %d left\n", t.NoTemplates)
		if t.Ambiguous {
			fmt.Println("  ambiguous:  yes, smallest key chosen")
		}
	}
}
