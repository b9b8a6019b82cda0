package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"seedlink/internal/server"
)

func newResolveCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve one link and print the result as JSON",
		Long: `Resolve runs a single lookup and prints the same JSON document the
/getlink route returns. Logs go to stderr. The exit status is 1 when no
link could be resolved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			svc, err := newService(cfg, logger)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout.Std())
			defer cancel()

			res, err := svc.GetLink(ctx, args[0])
			_, body := server.Response(res, err, cfg.DebugHTMLLimit)
			if werr := printJSON(cmd.OutOrStdout(), body); werr != nil && err == nil {
				return werr
			}
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
