package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfianlosari/arinventory/internal/viewer"
)

func newViewCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "Follow an item and print display transitions until interrupted or deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := sess()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			out := cmd.OutOrStdout()

			ctrl, err := viewer.NewController(args[0], s.repo, s.cache, s.renderer, viewer.Options{
				Logger: s.logg,
				OnItemDeleted: func() {
					fmt.Fprintln(out, "item deleted")
					cancel()
				},
				OnDisplay: func(d viewer.Display) {
					fmt.Fprintln(out, describeDisplay(d))
				},
				OnError: func(err error) {
					fmt.Fprintf(cmd.ErrOrStderr(), "view error: %v\n", err)
				},
			})
			if err != nil {
				return err
			}
			if err := ctrl.Start(ctx); err != nil {
				return err
			}
			defer ctrl.Stop()
			<-ctx.Done()
			return nil
		},
	}
}

func describeDisplay(d viewer.Display) string {
	var b strings.Builder
	b.WriteString(d.State.String())
	if d.Key != "" {
		b.WriteString(" ")
		b.WriteString(d.Key)
	}
	if d.Entity != nil {
		fmt.Fprintf(&b, " root=%s layers=%d textures=%d prims=%d",
			d.Entity.RootLayer, len(d.Entity.Layers), len(d.Entity.Textures), len(d.Entity.Prims))
	}
	return b.String()
}
