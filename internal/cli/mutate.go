package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blackmichael/skyreader/internal/postmeta"
)

func newMutationCmd(o *options, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <post-uri>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := o.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer done()

			run := map[string]func(context.Context, postmeta.Target) (postmeta.Meta, error){
				"like":     a.Mutations.Like,
				"unlike":   a.Mutations.Unlike,
				"repost":   a.Mutations.Repost,
				"unrepost": a.Mutations.Unrepost,
			}[name]

			posts, err := a.Client.Posts(cmd.Context(), []string{args[0]})
			if err != nil {
				return fmt.Errorf("load post: %w", err)
			}
			if len(posts) == 0 {
				return fmt.Errorf("post %s not found", args[0])
			}
			post := &posts[0]

			meta, err := run(cmd.Context(), postmeta.Target{
				URI:     post.URI,
				CID:     post.CID,
				Current: postmeta.FromPost(post),
			})
			if err != nil {
				// The renderer already showed the notice.
				return err
			}
			if o.output == "json" {
				return o.printJSON(map[string]any{"uri": post.URI, "meta": meta})
			}
			o.renderer().Meta(post.URI, meta)
			return nil
		},
	}
}
