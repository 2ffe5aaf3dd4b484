package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/leadharvest/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured lead providers and their limits",
	RunE: func(_ *cobra.Command, _ []string) error {
		reg := buildRegistry()
		formatProviders(os.Stdout, reg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// formatProviders writes a tabular view of registered providers to w.
func formatProviders(out io.Writer, reg *provider.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tRATE\tQUOTA")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t-----")

	for _, id := range reg.IDs() {
		p := reg.Get(id)
		if p == nil {
			continue
		}

		rd := p.RateLimit()
		rate := fmt.Sprintf("%d/%s", rd.Count, rd.Window)

		qs := p.QuotaStatus()
		quota := "unlimited"
		if qs.Limit > 0 {
			quota = fmt.Sprintf("%d/%d per %s", qs.Used, qs.Limit, qs.Period)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID(), p.Name(), rate, quota)
	}
	_ = w.Flush()
}
