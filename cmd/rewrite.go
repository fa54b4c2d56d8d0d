package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/jcdickinson/doxylink/internal/daemon"
	"github.com/jcdickinson/doxylink/internal/rpc"
	"github.com/spf13/cobra"
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite <file...>",
	Short: "Rewrite role links in markdown files into Doxygen URLs",
	Long: `Rewrite role links such as [](cpp:PolyVox::Volume) into links to the
Doxygen HTML. Use "-" to read from stdin. Without --write the result is
printed to stdout.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runRewrite,
}

var (
	rewriteWrite    bool
	rewriteManifest bool
	rewriteStrict   bool
)

func init() {
	rewriteCmd.Flags().BoolVarP(&rewriteWrite, "write", "w", false, "write the result back to each file")
	rewriteCmd.Flags().BoolVar(&rewriteManifest, "manifest", false, "add front matter listing the resolved links")
	rewriteCmd.Flags().BoolVar(&rewriteStrict, "strict", false, "exit non-zero if any link is unresolved")
}

func runRewrite(cmd *cobra.Command, args []string) {
	client, err := connectDaemon()
	if err != nil {
		log.Fatalf("failed to connect to daemon: %v", err)
	}

	unresolved := 0
	for _, path := range args {
		n, err := rewriteFile(client, path)
		if err != nil {
			log.Fatalf("rewriting %s: %v", path, err)
		}
		unresolved += n
	}

	if rewriteStrict && unresolved > 0 {
		fmt.Fprintf(os.Stderr, "%d unresolved link(s)\n", unresolved)
		os.Exit(1)
	}
}

func rewriteFile(client *daemon.Client, path string) (int, error) {
	var (
		src      []byte
		err      error
		document string
	)
	if path == "-" {
		src, err = io.ReadAll(os.Stdin)
	} else {
		src, err = os.ReadFile(path)
		document = absPath(path)
	}
	if err != nil {
		return 0, err
	}

	resp, err := client.Rewrite(context.Background(), rpc.RewriteRequest{
		Document: document,
		Markdown: string(src),
		Manifest: rewriteManifest,
	})
	if err != nil {
		return 0, err
	}

	for _, w := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "%s: %s\n", path, w)
	}
	unresolved := 0
	for _, l := range resp.Links {
		if !l.Resolved {
			unresolved++
		}
	}

	if rewriteWrite && path != "-" {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		return unresolved, os.WriteFile(path, []byte(resp.Markdown), info.Mode().Perm())
	}
	fmt.Print(resp.Markdown)
	return unresolved, nil
}

func absPath(path string) string {
	if path == "" {
		return ""
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
