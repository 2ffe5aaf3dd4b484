package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadharvest/internal/db"
	"github.com/sells-group/leadharvest/internal/store"
)

var optoutCmd = &cobra.Command{
	Use:   "optout",
	Short: "Manage the contact suppression list",
	Long:  "Commands for adding, removing, listing, and importing opt-out entries. Entries are email addresses or bare domains.",
}

// -- optout add --

var optoutAddCmd = &cobra.Command{
	Use:   "add <email-or-domain>",
	Short: "Add an entry to the suppression list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		entry, err := st.AddOptOut(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "optout add")
		}

		fmt.Printf("Added %s (%s)\n", entry.Value, entry.Kind)
		return nil
	},
}

// -- optout remove --

var optoutRemoveCmd = &cobra.Command{
	Use:   "remove <email-or-domain>",
	Short: "Remove an entry from the suppression list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.RemoveOptOut(ctx, args[0]); err != nil {
			return eris.Wrap(err, "optout remove")
		}

		fmt.Printf("Removed %s\n", strings.ToLower(strings.TrimSpace(args[0])))
		return nil
	},
}

// -- optout list --

var optoutListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suppression entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		entries, err := st.ListOptOuts(ctx)
		if err != nil {
			return eris.Wrap(err, "optout list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No opt-out entries.")
			return nil
		}

		formatOptOuts(os.Stdout, entries)
		return nil
	},
}

// -- optout import --

var optoutImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-import suppression entries from a file, one per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "optout import: open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		values, err := readOptOutValues(f)
		if err != nil {
			return eris.Wrap(err, "optout import")
		}
		if len(values) == 0 {
			fmt.Fprintln(os.Stderr, "No entries to import.")
			return nil
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		n, err := importOptOuts(cmd, st, values)
		if err != nil {
			return eris.Wrap(err, "optout import")
		}

		fmt.Printf("Imported %d entries\n", n)
		return nil
	},
}

func init() {
	optoutCmd.AddCommand(optoutAddCmd)
	optoutCmd.AddCommand(optoutRemoveCmd)
	optoutCmd.AddCommand(optoutListCmd)
	optoutCmd.AddCommand(optoutImportCmd)
	rootCmd.AddCommand(optoutCmd)
}

// readOptOutValues parses one entry per line, skipping blanks and
// #-comments. Duplicates within the file are collapsed.
func readOptOutValues(r io.Reader) ([]string, error) {
	seen := map[string]bool{}
	var values []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		values = append(values, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "read entries")
	}
	return values, nil
}

// importOptOuts persists values through the fastest path the store supports.
// Postgres gets a single bulk upsert; other stores insert row by row.
func importOptOuts(cmd *cobra.Command, st store.Store, values []string) (int64, error) {
	ctx := cmd.Context()

	if pg, ok := st.(*store.PostgresStore); ok {
		now := time.Now().UTC()
		rows := make([][]any, 0, len(values))
		for _, v := range values {
			rows = append(rows, []any{uuid.NewString(), v, string(store.KindOfOptOut(v)), now})
		}
		return db.BulkUpsert(ctx, pg.Pool(), db.UpsertConfig{
			Table:        "opt_outs",
			Columns:      []string{"id", "value", "kind", "created_at"},
			ConflictKeys: []string{"value"},
			UpdateCols:   []string{"kind"},
		}, rows)
	}

	var n int64
	for _, v := range values {
		if _, err := st.AddOptOut(ctx, v); err != nil {
			zap.L().Warn("opt-out import entry failed", zap.String("value", v), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// formatOptOuts writes a tabular list of suppression entries to w.
func formatOptOuts(out io.Writer, entries []store.OptOutEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VALUE\tKIND\tADDED")
	_, _ = fmt.Fprintln(w, "-----\t----\t-----")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Value, e.Kind, e.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
