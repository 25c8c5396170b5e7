package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/alfianlosari/arinventory/internal/assets"
	"github.com/alfianlosari/arinventory/internal/editor"
	pkgerrors "github.com/alfianlosari/arinventory/pkg/errors"
)

func newUploadCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <id> <file.usdz>",
		Short: "Upload a USDZ model and its thumbnail, then save the item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read model file")
			}
			out := cmd.OutOrStdout()
			form, err := loadEditForm(cmd, sess(), args[0], func(o *editor.Options) {
				o.OnChange = progressPrinter(cmd)
			})
			if err != nil {
				return err
			}
			if err := form.UploadModel(cmd.Context(), data); err != nil {
				return err
			}
			if err := form.Save(cmd.Context()); err != nil {
				return err
			}
			state := form.State()
			fmt.Fprintf(out, "model: %s\n", state.ModelURL)
			if state.ThumbnailURL != "" {
				fmt.Fprintf(out, "thumbnail: %s\n", state.ThumbnailURL)
			}
			return nil
		},
	}
}

// progressPrinter prints one line per progress tick.
func progressPrinter(cmd *cobra.Command) func(editor.State) {
	var mu sync.Mutex
	last := 0
	return func(s editor.State) {
		mu.Lock()
		defer mu.Unlock()
		if s.UploadProgress == nil || s.ProgressTicks == last {
			return
		}
		last = s.ProgressTicks
		p := s.UploadProgress
		fmt.Fprintf(cmd.ErrOrStderr(), "uploading %s: %s (%.0f%%)\n",
			p.Stage, assets.FormatProgress(p.CompletedBytes, p.TotalBytes), p.FractionCompleted*100)
	}
}

func newRemoveModelCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rm-model <id>",
		Short: "Delete an item's model and thumbnail and clear its links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := loadEditForm(cmd, sess(), args[0])
			if err != nil {
				return err
			}
			if err := form.DeleteModel(cmd.Context()); err != nil {
				return err
			}
			return form.Save(cmd.Context())
		},
	}
}

func newFetchCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <id>",
		Short: "Download an item's model into the local cache and print its path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := sess()
			item, err := s.repo.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !item.HasModel() {
				return pkgerrors.New(pkgerrors.CodeValidation, "item has no model")
			}
			path, err := s.cache.FetchLocalFile(cmd.Context(), *item.ModelLink)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
