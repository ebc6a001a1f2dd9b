package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/renovation-planner/internal/diff"
	"github.com/capitalize-ai/renovation-planner/internal/model"
	"github.com/capitalize-ai/renovation-planner/internal/service"
	"github.com/capitalize-ai/renovation-planner/internal/store/sqlite"
)

func (c *cli) actionsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "actions", Short: "List actions awaiting a decision or a retry"}
	cmd.AddCommand(
		c.actionsByStatusCmd("pending", model.ActionStatusPending, "List actions awaiting a homeowner decision"),
		c.actionsByStatusCmd("failed", model.ActionStatusFailed, "List failed actions that can be retried"),
	)
	return cmd
}

func (c *cli) actionsByStatusCmd(use string, status model.ActionStatus, short string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(ctx context.Context, st *sqlite.Store) error {
				actions, err := st.ListActionsByStatus(ctx, status, limit)
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return printJSON(cmd.OutOrStdout(), actions)
				}
				if len(actions) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No %s actions.\n", status)
					return nil
				}

				tw := newTable(cmd.OutOrStdout(), table.Row{"ID", "Conversation", "Type", "Summary", "Attempts", "Problem", "Updated"})
				for _, a := range actions {
					problem := a.ValidationError
					if a.Failure != nil {
						problem = a.Failure.Kind + ": " + a.Failure.Message
					}
					tw.AppendRow(table.Row{
						a.ID, a.ConversationID, a.Type, truncate(a.Summary, 40), a.Attempts,
						truncate(problem, 50), a.UpdatedAt.Format("2006-01-02 15:04:05"),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of actions")
	return cmd
}

func (c *cli) analysesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "analyses", Short: "Inspect offer analyses"}
	cmd.AddCommand(c.analysesListCmd(), c.analysesDiffCmd())
	return cmd
}

func (c *cli) analysesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <offer-id>",
		Short: "List the analyses of an offer, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(ctx context.Context, st *sqlite.Store) error {
				resp, err := service.NewAnalysisService(st).History(ctx, args[0])
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return printJSON(cmd.OutOrStdout(), resp)
				}
				tw := newTable(cmd.OutOrStdout(), table.Row{"ID", "Created", "Updates", "Previous", "Summary"})
				for _, a := range resp.Analyses {
					tw.AppendRow(table.Row{
						a.ID, a.CreatedAt.Format("2006-01-02 15:04:05"), a.HasConversationUpdates,
						a.PreviousAnalysisID, truncate(a.Summary, 60),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func (c *cli) analysesDiffCmd() *cobra.Command {
	var against string
	cmd := &cobra.Command{
		Use:   "diff <analysis-id>",
		Short: "Diff an analysis against an earlier one (default: its predecessor)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(ctx context.Context, st *sqlite.Store) error {
				d, err := service.NewAnalysisService(st).Diff(ctx, args[0], against)
				if err != nil {
					return err
				}
				if c.jsonOutput() {
					return printJSON(cmd.OutOrStdout(), d)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "--- %s\n+++ %s  (+%d -%d)\n", d.BeforeID, d.AfterID, d.Added, d.Removed)
				for _, l := range d.Lines {
					prefix := " "
					switch l.Kind {
					case diff.LineAdded:
						prefix = "+"
					case diff.LineRemoved:
						prefix = "-"
					}
					fmt.Fprintln(cmd.OutOrStdout(), prefix + l.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&against, "against", "", "analysis ID to compare against")
	return cmd
}
