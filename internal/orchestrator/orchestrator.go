// Package orchestrator drives the harvesting stages for one run and owns
// the run's lifecycle state.
package orchestrator

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadharvest/internal/collector"
	"github.com/sells-group/leadharvest/internal/enrich"
	"github.com/sells-group/leadharvest/internal/model"
	"github.com/sells-group/leadharvest/internal/normalize"
	"github.com/sells-group/leadharvest/internal/scorer"
	"github.com/sells-group/leadharvest/internal/store"
)

// Orchestrator executes collect, normalize, enrich and score strictly in
// sequence and persists the outcome. It is the only component that mutates
// run state.
type Orchestrator struct {
	store      store.Store
	collector  *collector.Collector
	deduper    *normalize.Deduper
	enricher   *enrich.Enricher
	suppressor enrich.Suppressor
}

// New builds an Orchestrator. suppressor may be nil when no opt-out list
// is configured.
func New(st store.Store, c *collector.Collector, d *normalize.Deduper, e *enrich.Enricher, suppressor enrich.Suppressor) *Orchestrator {
	return &Orchestrator{
		store:      st,
		collector:  c,
		deduper:    d,
		enricher:   e,
		suppressor: suppressor,
	}
}

// Execute runs the full pipeline for a queued run and returns the run in
// its terminal state. Cancellation of ctx fails the run at the next stage
// boundary; the status write itself is never cancelled.
func (o *Orchestrator) Execute(ctx context.Context, runID string) (*model.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "orchestrator: load run %s", runID)
	}
	if run.Status != model.RunStatusQueued {
		return nil, eris.Errorf("orchestrator: run %s is %s, expected queued", runID, run.Status)
	}

	if err := o.store.UpdateRunStatus(ctx, runID, model.RunStatusRunning); err != nil {
		return nil, eris.Wrapf(err, "orchestrator: start run %s", runID)
	}

	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("location", run.Location),
		zap.String("category", run.Category),
	)
	log.Info("orchestrator: run started")

	leads, err := o.runStages(ctx, log, run)
	if err != nil {
		return o.fail(ctx, runID, log, err)
	}

	counters := countLeads(leads)
	if run.DryRun {
		log.Info("orchestrator: dry run, skipping lead persistence",
			zap.Int("leads", counters.TotalLeads))
	} else if err := o.store.SaveLeads(ctx, runID, leads); err != nil {
		return o.fail(ctx, runID, log, eris.Wrap(err, "orchestrator: save leads"))
	}

	if err := o.store.CompleteRun(ctx, runID, counters); err != nil {
		return nil, eris.Wrapf(err, "orchestrator: complete run %s", runID)
	}

	log.Info("orchestrator: run completed",
		zap.Int("total_leads", counters.TotalLeads),
		zap.Int("websites", counters.TotalWebsitesFound),
		zap.Int("emails", counters.TotalEmailsFound),
	)
	return o.store.GetRun(ctx, runID)
}

// runStages executes the four pipeline stages. Each stage consumes the
// previous stage's output; no stage result is persisted until all finish.
func (o *Orchestrator) runStages(ctx context.Context, log *zap.Logger, run *model.Run) ([]model.Lead, error) {
	collected, err := o.collector.Collect(ctx, collector.Request{
		Location:  run.Location,
		Category:  run.Category,
		Providers: run.Providers,
		Limits:    run.ProviderLimits,
	})
	if err != nil {
		return nil, err
	}
	log.Info("orchestrator: collection finished",
		zap.Int("raw_leads", len(collected.Leads)),
		zap.Int("failed_providers", len(collected.Failures)),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	leads := o.deduper.Dedupe(run.ID, collected.Leads)
	log.Info("orchestrator: normalization finished", zap.Int("leads", len(leads)))

	leads, err = o.enricher.EnrichAll(ctx, leads)
	if err != nil {
		return nil, err
	}
	log.Info("orchestrator: enrichment finished")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := range leads {
		o.finalizeLead(ctx, &leads[i])
	}
	return leads, nil
}

// finalizeLead promotes the best contact email onto the lead, applies
// opt-out suppression to it and computes the confidence score last, so the
// score always reflects the final field values.
func (o *Orchestrator) finalizeLead(ctx context.Context, lead *model.Lead) {
	if best := scorer.BestEmail(*lead); best != "" {
		lead.Email = best
	}
	if lead.Email != "" && o.suppressor != nil {
		suppressed, err := o.suppressor.Suppressed(ctx, lead.Email)
		if err != nil {
			zap.L().Warn("orchestrator: opt-out lookup failed",
				zap.String("email", lead.Email), zap.Error(err))
		} else if suppressed {
			lead.Email = ""
		}
	}
	lead.ConfidenceScore = scorer.Score(*lead)
}

// fail transitions the run to failed. The database write uses a context
// that survives cancellation so a cancelled run still records its state.
func (o *Orchestrator) fail(ctx context.Context, runID string, log *zap.Logger, cause error) (*model.Run, error) {
	message := cause.Error()
	if ctx.Err() != nil {
		message = "run cancelled: " + message
	}
	log.Warn("orchestrator: run failed", zap.String("reason", message))

	storeCtx := context.WithoutCancel(ctx)
	if err := o.store.FailRun(storeCtx, runID, message); err != nil {
		return nil, eris.Wrapf(err, "orchestrator: record failure for run %s", runID)
	}
	return o.store.GetRun(storeCtx, runID)
}

func countLeads(leads []model.Lead) model.RunCounters {
	counters := model.RunCounters{TotalLeads: len(leads)}
	for _, lead := range leads {
		if lead.Website != "" {
			counters.TotalWebsitesFound++
		}
		if lead.Email != "" || len(lead.Enrichment.Emails) > 0 {
			counters.TotalEmailsFound++
		}
	}
	return counters
}
