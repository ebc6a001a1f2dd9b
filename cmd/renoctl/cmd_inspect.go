package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/store"
	"github.com/capitalize-ai/renovation-planner/internal/store/sqlite"
)

func (c *cli) inspectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "inspect", Short: "Inspect stored conversations"}
	cmd.AddCommand(c.inspectConversationCmd())
	return cmd
}

func (c *cli) inspectConversationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conversation <id>",
		Short: "Show a conversation with its messages and actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(ctx context.Context, st *sqlite.Store) error {
				conv, err := st.GetConversation(ctx, args[0])
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("conversation %s not found", args[0])
				} else if err != nil {
					return err
				}
				messages, err := st.ListMessages(ctx, conv.ID)
				if err != nil {
					return err
				}
				view := model.NewConversationView(conv, messages)
				if c.jsonOutput() {
					return printJSON(cmd.OutOrStdout(), view)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "conversation %s  project %s  contractor %s  last activity %s\n",
					conv.ID, conv.ProjectID, conv.ContractorID, conv.LastActivityAt.Format("2006-01-02 15:04:05"))
				tw := newTable(cmd.OutOrStdout(), table.Row{"#", "Sender", "Kind", "Content", "Action", "Status"})
				for _, m := range view.Messages {
					var actionType, status string
					if m.Action != nil {
						actionType, status = string(m.Action.Type), string(m.Action.Status)
					}
					tw.AppendRow(table.Row{m.Sequence, m.Sender, m.Kind, truncate(m.Display, 60), actionType, status})
				}
				tw.Render()
				return nil
			})
		},
	}
}
