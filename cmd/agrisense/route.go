package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/agrisense/plugin/ai/locale"
	"github.com/hrygo/agrisense/plugin/ai/router"
)

var routeCmd = &cobra.Command{
	Use:   "route [text]",
	Short: "Print the routing decision for one query as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		routerService, err := newRouter(p)
		if err != nil {
			return err
		}

		d := routerService.Route(cmd.Context(), router.Request{
			Text:     strings.Join(args, " "),
			Language: p.Language(),
		})
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch [file]",
	Short: "Route every line of a file (or stdin) and print JSON lines in input order",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		routerService, err := newRouter(p)
		if err != nil {
			return err
		}

		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrapf(err, "failed to open %s", args[0])
			}
			defer f.Close()
			in = f
		}

		lines, err := readLines(in)
		if err != nil {
			return err
		}
		workers, _ := cmd.Flags().GetInt("workers")
		decisions, err := routeBatch(cmd.Context(), routerService, lines, p.Language(), workers)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, d := range decisions {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().Int("workers", runtime.NumCPU(), "number of queries routed concurrently")
}

// readLines returns the non-blank lines of r.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read input")
	}
	return lines, nil
}

// routeBatch routes lines with at most workers in flight. The result is in
// input order regardless of completion order.
func routeBatch(ctx context.Context, svc router.RouterService, lines []string, lang locale.Language, workers int) ([]*router.Decision, error) {
	if workers <= 0 {
		workers = 1
	}
	out := make([]*router.Decision, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, line := range lines {
		i, line := i, line
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = svc.Route(gctx, router.Request{Text: line, Language: lang})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
