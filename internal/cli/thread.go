package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newThreadCmd(o *options) *cobra.Command {
	var expand []string
	cmd := &cobra.Command{
		Use:   "thread <post-uri>",
		Short: "Show a post with its ancestors and replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, done, err := o.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer done()

			for _, branch := range expand {
				a.Threads.Memory().Set(branch, args[0], true)
			}
			layout, err := a.Threads.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load thread: %w", err)
			}
			if o.output == "json" {
				return o.printJSON(layout)
			}
			o.renderer().Thread(layout)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&expand, "expand", nil, "Post uris whose collapsed replies to show")
	return cmd
}
