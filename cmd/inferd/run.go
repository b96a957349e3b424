package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"inferd/internal/app"
	"inferd/pkg/types"
)

// withApp runs fn against a short-lived in-process App and prints its
// result as indented JSON.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) (any, error)) error {
	a, err := c.newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	out, err := fn(cmd.Context(), a)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newClassifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "classify TEXT...",
		Short:   "Classify text and print the result",
		Example: "  inferd classify finish the quarterly report by friday",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Classify(ctx, types.ClassifyRequest{Text: strings.Join(args, " ")})
			})
		},
	}
}

func newCompleteCmd(c *cli) *cobra.Command {
	var req types.CompleteRequest
	cmd := &cobra.Command{
		Use:   "complete PROMPT...",
		Short: "Run a raw completion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Prompt = strings.Join(args, " ")
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Complete(ctx, req)
			})
		},
	}
	cmd.Flags().IntVar(&req.MaxTokens, "max-tokens", 256, "Maximum new tokens")
	cmd.Flags().Float64Var(&req.Temperature, "temperature", 0.7, "Sampling temperature")
	cmd.Flags().StringSliceVar(&req.Stop, "stop", nil, "Stop sequences (repeatable)")
	return cmd
}

func newIdeasCmd(c *cli) *cobra.Command {
	var file, focus string
	var count int
	readIdea := func(cmd *cobra.Command) (string, error) {
		var b []byte
		var err error
		if file == "" || file == "-" {
			b, err = io.ReadAll(cmd.InOrStdin())
		} else {
			b, err = os.ReadFile(file)
		}
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(string(b)) == "" {
			return "", fmt.Errorf("idea is empty")
		}
		return string(b), nil
	}

	ideas := &cobra.Command{Use: "ideas", Short: "Rewrite markdown ideas"}
	ideas.PersistentFlags().StringVarP(&file, "file", "f", "-", "Markdown file with the idea; - reads stdin")
	ideas.PersistentFlags().StringVar(&focus, "focus", "", "Optional focus or extra instructions")

	mutations := &cobra.Command{Use: "mutations", Short: "Generate variations of an idea", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		idea, err := readIdea(cmd)
		if err != nil {
			return err
		}
		return c.withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Mutations(ctx, types.MutationsRequest{Idea: idea, Count: count, Focus: focus})
		})
	}}
	mutations.Flags().IntVarP(&count, "count", "n", 5, "Number of mutations (max 10)")

	expand := &cobra.Command{Use: "expand", Short: "Expand an idea into a fuller document", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		idea, err := readIdea(cmd)
		if err != nil {
			return err
		}
		return c.withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Expand(ctx, types.IdeaRequest{Idea: idea, Focus: focus})
		})
	}}
	reorganize := &cobra.Command{Use: "reorganize", Short: "Restructure an idea without adding content", Args: cobra.NoArgs, RunE: func(cmd *cobra.Command, args []string) error {
		idea, err := readIdea(cmd)
		if err != nil {
			return err
		}
		return c.withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
			return a.Reorganize(ctx, types.IdeaRequest{Idea: idea, Focus: focus})
		})
	}}
	ideas.AddCommand(mutations, expand, reorganize)
	return ideas
}

func newWarmupCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "warmup",
		Short: "Start the local server, wait for readiness, then stop it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.App) (any, error) {
				return a.Warmup(ctx)
			})
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print /status of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.cfg.HTTP.Addr
			}
			return fetchStatus(cmd.Context(), baseURL(addr), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Server address (defaults to http.addr)")
	return cmd
}

func baseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func fetchStatus(ctx context.Context, base string, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/status", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("inferd not reachable at %s: %w", base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status: HTTP %d", resp.StatusCode)
	}
	var st types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
