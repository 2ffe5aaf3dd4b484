package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadharvest/internal/collector"
	"github.com/sells-group/leadharvest/internal/compliance"
	"github.com/sells-group/leadharvest/internal/enrich"
	"github.com/sells-group/leadharvest/internal/model"
	"github.com/sells-group/leadharvest/internal/normalize"
	"github.com/sells-group/leadharvest/internal/orchestrator"
)

var (
	harvestLocation  string
	harvestCategory  string
	harvestProviders []string
	harvestLimit     int
	harvestDryRun    bool
	harvestApproval  bool
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Run the harvesting pipeline for a location and category",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		reg := buildRegistry()
		zap.L().Info("providers registered", zap.Strings("ids", reg.IDs()))

		limits := providerLimits(reg.IDs(), harvestLimit)

		run, err := st.CreateRun(ctx, model.RunRequest{
			Location:        harvestLocation,
			Category:        harvestCategory,
			Providers:       harvestProviders,
			ProviderLimits:  limits,
			DryRun:          harvestDryRun,
			RequireApproval: harvestApproval,
		})
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		filter := compliance.NewFilter(st)
		o := orchestrator.New(
			st,
			collector.New(reg),
			normalize.NewDeduper(cfg.Dedupe, cfg.Providers.Priority),
			enrich.New(cfg.Enrich, enrich.WithSuppressor(filter)),
			filter,
		)

		result, err := o.Execute(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "execute run")
		}

		zap.L().Info("harvest finished",
			zap.String("run_id", result.ID),
			zap.String("status", string(result.Status)),
			zap.Int("total_leads", result.Counters.TotalLeads),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// providerLimits builds the per-provider result caps for a run. An explicit
// override applies to every provider; otherwise each provider gets its
// configured default.
func providerLimits(ids []string, override int) map[string]int {
	limits := map[string]int{}
	for _, id := range ids {
		if override > 0 {
			limits[id] = override
			continue
		}
		if d := providerDefaultLimit(id); d > 0 {
			limits[id] = d
		}
	}
	return limits
}

func providerDefaultLimit(id string) int {
	switch id {
	case "google_places":
		return cfg.Providers.GooglePlaces.DefaultLimit
	case "geoapify":
		return cfg.Providers.Geoapify.DefaultLimit
	case "tomtom":
		return cfg.Providers.TomTom.DefaultLimit
	case "osm":
		return cfg.Providers.OSM.DefaultLimit
	default:
		return 0
	}
}

func init() {
	harvestCmd.Flags().StringVar(&harvestLocation, "location", "", "location query, e.g. \"Berlin\" (required)")
	harvestCmd.Flags().StringVar(&harvestCategory, "category", "", "business category, e.g. \"restaurant\"")
	harvestCmd.Flags().StringSliceVar(&harvestProviders, "providers", nil, "provider ids to query (default all registered)")
	harvestCmd.Flags().IntVar(&harvestLimit, "limit", 0, "max results per provider (0 = provider default)")
	harvestCmd.Flags().BoolVar(&harvestDryRun, "dry-run", false, "run the pipeline without persisting leads")
	harvestCmd.Flags().BoolVar(&harvestApproval, "require-approval", false, "flag the run's leads for manual review")
	_ = harvestCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(harvestCmd)
}
