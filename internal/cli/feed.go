package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackmichael/skyreader/internal/feed"
)

type pageFlags struct {
	cursor string
	group  bool
}

func (f *pageFlags) bind(cmd *cobra.Command, group bool) {
	cmd.Flags().StringVar(&f.cursor, "cursor", "", "Continue from a cursor printed by the previous page")
	if group {
		cmd.Flags().BoolVar(&f.group, "group", false, "Group dense runs of reposts")
	}
}

func (o *options) runFeed(cmd *cobra.Command, src feed.Source, flags *pageFlags) error {
	a, done, err := o.open(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer done()

	page, err := a.Feeds.LoadPage(cmd.Context(), src, feed.LoadOptions{
		Cursor: flags.cursor,
		// A fresh command run has no earlier pages to de-duplicate against.
		Reset: flags.cursor == "",
		Group: flags.group || a.Config.GroupReposts,
	})
	if err != nil {
		return fmt.Errorf("load %s: %w", src.Kind, err)
	}

	if o.output == "json" {
		return o.printJSON(page)
	}
	o.renderer().Feed(page)
	return nil
}

func newTimelineCmd(o *options) *cobra.Command {
	var flags pageFlags
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show your following timeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runFeed(cmd, feed.Source{Kind: feed.SourceTimeline}, &flags)
		},
	}
	flags.bind(cmd, true)
	return cmd
}

func newProfileCmd(o *options) *cobra.Command {
	var flags pageFlags
	var view string
	cmd := &cobra.Command{
		Use:   "profile <actor>",
		Short: "Show an account's posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch view {
			case feed.ViewPosts, feed.ViewReplies, feed.ViewMedia:
			default:
				return fmt.Errorf("unknown view %q (want replies, media or empty)", view)
			}
			return o.runFeed(cmd, feed.Source{Kind: feed.SourceAuthor, Actor: args[0], View: view}, &flags)
		},
	}
	flags.bind(cmd, true)
	cmd.Flags().StringVar(&view, "view", feed.ViewPosts, "Which posts: empty for posts, replies, or media")
	return cmd
}

func newFeedCmd(o *options) *cobra.Command {
	var flags pageFlags
	cmd := &cobra.Command{
		Use:   "feed <feed-uri>",
		Short: "Show a custom feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runFeed(cmd, feed.Source{Kind: feed.SourceCustom, URI: args[0]}, &flags)
		},
	}
	flags.bind(cmd, false)
	return cmd
}

func newListCmd(o *options) *cobra.Command {
	var flags pageFlags
	cmd := &cobra.Command{
		Use:   "list <list-uri>",
		Short: "Show posts from the members of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runFeed(cmd, feed.Source{Kind: feed.SourceList, URI: args[0]}, &flags)
		},
	}
	flags.bind(cmd, false)
	return cmd
}

func newSearchCmd(o *options) *cobra.Command {
	var flags pageFlags
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search posts, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.runFeed(cmd, feed.Source{Kind: feed.SourceSearch, Query: args[0]}, &flags)
		},
	}
	flags.bind(cmd, false)
	return cmd
}

func newNotificationsCmd(o *options) *cobra.Command {
	var cursor string
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show your notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := o.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer done()

			page, err := a.Notifications.LoadPage(cmd.Context(), cursor)
			if err != nil {
				return fmt.Errorf("load notifications: %w", err)
			}
			if o.output == "json" {
				return o.printJSON(page)
			}
			o.renderer().Notifications(page)
			return nil
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "Continue from a cursor printed by the previous page")
	return cmd
}
