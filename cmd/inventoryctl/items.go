package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfianlosari/arinventory/internal/editor"
	"github.com/alfianlosari/arinventory/internal/items"
)

func newListCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List items in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := sess().repo.List(cmd.Context())
			if err != nil {
				return err
			}
			return printItems(cmd.OutOrStdout(), list)
		},
	}
}

func newWatchCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the item list on every change until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			s := sess()
			sub, err := s.repo.ListItems(ctx, items.ListObserver{
				OnUpdate: func(list []items.InventoryItem) {
					fmt.Fprintf(out, "--- %d items\n", len(list))
					_ = printItems(out, list)
				},
				OnError: func(err error) {
					fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
				},
			})
			if err != nil {
				return err
			}
			defer sub.Cancel()
			<-ctx.Done()
			return nil
		},
	}
}

func newGetCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one item as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := sess().repo.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(item)
		},
	}
}

func newAddCmd(sess func() *session) *cobra.Command {
	var (
		name     string
		quantity int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := sess()
			form, err := editor.NewAddForm(s.repo, s.pipeline, editor.Options{Logger: s.logg})
			if err != nil {
				return err
			}
			form.SetName(name)
			form.SetQuantity(quantity)
			if err := form.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), form.ID())
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "item name")
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 0, "item quantity")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newEditCmd(sess func() *session) *cobra.Command {
	var (
		name     string
		quantity int
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an item's name or quantity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			form, err := loadEditForm(cmd, sess(), args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("name") {
				form.SetName(name)
			}
			if cmd.Flags().Changed("quantity") {
				form.SetQuantity(quantity)
			}
			return form.Save(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "new item name")
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 0, "new item quantity")
	return cmd
}

func newRemoveCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an item and, best effort, its blobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := sess()
			form, err := editor.NewEditForm(items.InventoryItem{ID: args[0]}, s.repo, s.pipeline, editor.Options{Logger: s.logg})
			if err != nil {
				return err
			}
			return form.DeleteItem(cmd.Context())
		},
	}
}

func loadEditForm(cmd *cobra.Command, s *session, id string, opts ...func(*editor.Options)) (*editor.Form, error) {
	item, err := s.repo.Get(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	o := editor.Options{Logger: s.logg}
	for _, fn := range opts {
		fn(&o)
	}
	return editor.NewEditForm(item, s.repo, s.pipeline, o)
}

func printItems(w io.Writer, list []items.InventoryItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tQUANTITY\tMODEL")
	for _, item := range list {
		model := "-"
		if item.HasModel() {
			model = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", item.ID, item.Name, item.Quantity, model)
	}
	return tw.Flush()
}
