// Package cli implements the skyreader command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/blackmichael/skyreader/internal/app"
	"github.com/blackmichael/skyreader/internal/config"
	"github.com/blackmichael/skyreader/internal/logging"
	"github.com/blackmichael/skyreader/internal/render"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type options struct {
	configPath string
	verbose    bool
	output     string

	out    io.Writer
	errOut io.Writer
}

// NewRootCommand builds the skyreader command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	o := &options{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "skyreader",
		Short: "Read Bluesky timelines and threads from the terminal",
		Long: `skyreader reads Bluesky timelines, profiles, feeds and threads with
duplicate replies removed, moderation applied and reply threads
reconstructed. It can also like and repost.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.output != "text" && o.output != "json" {
				return fmt.Errorf("unknown output format %q", o.output)
			}
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&o.configPath, "config", os.Getenv("SKYREADER_CONFIG"), "Path to config file")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVarP(&o.output, "output", "o", "text", "Output format: text, json")

	root.AddCommand(
		newLoginCmd(o),
		newLogoutCmd(o),
		newTimelineCmd(o),
		newProfileCmd(o),
		newFeedCmd(o),
		newListCmd(o),
		newSearchCmd(o),
		newThreadCmd(o),
		newNotificationsCmd(o),
		newMutationCmd(o, "like", "Like a post"),
		newMutationCmd(o, "unlike", "Remove your like from a post"),
		newMutationCmd(o, "repost", "Repost a post"),
		newMutationCmd(o, "unrepost", "Remove your repost of a post"),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (o *options) renderer() *render.Renderer {
	return render.New(o.out)
}

// open loads configuration and signs in. The returned close func saves the
// (possibly refreshed) session and releases the database.
func (o *options) open(ctx context.Context, moderate bool) (*app.App, func(), error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "text", o.errOut)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(cfg, logger, o.renderer())
	if err != nil {
		return nil, nil, err
	}
	if err := a.SignIn(ctx); err != nil {
		a.Close()
		return nil, nil, err
	}
	if moderate {
		a.LoadModeration(ctx)
	}

	closeFn := func() {
		if err := a.SaveSession(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to save session", "error", err)
		}
		a.Close()
	}
	return a, closeFn, nil
}

func (o *options) printJSON(v any) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
