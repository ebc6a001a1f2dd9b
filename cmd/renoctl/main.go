// Package main is the operator CLI for the renovation planner.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/capitalize-ai/renovation-planner/internal/store/sqlite"
)

// cli carries the configuration shared by every command.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetEnvPrefix("RENO")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "renoctl",
		Short:         "Operate the renovation planner",
		Long:          "renoctl migrates the database and inspects conversations, actions and analyses.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("sqlite-path", "data/renovation.db", "SQLite database path")
	root.PersistentFlags().Bool("json", false, "output JSON")
	_ = c.v.BindPFlag("sqlite-path", root.PersistentFlags().Lookup("sqlite-path"))
	_ = c.v.BindPFlag("json", root.PersistentFlags().Lookup("json"))

	root.AddCommand(c.migrateCmd(), c.inspectCmd(), c.actionsCmd(), c.analysesCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (c *cli) jsonOutput() bool {
	return c.v.GetBool("json")
}

// withStore opens the migrated database for the duration of fn.
func (c *cli) withStore(ctx context.Context, fn func(context.Context, *sqlite.Store) error) error {
	st, err := sqlite.OpenAndMigrate(c.v.GetString("sqlite-path"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	return fn(ctx, st)
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(ctx context.Context, st *sqlite.Store) error {
				version, err := sqlite.Version(st.DB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "database at schema version %d\n", version)
				return nil
			})
		},
	}
}

func newTable(w io.Writer, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
