package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"mediabot/internal/core/domain"
	"mediabot/internal/core/ports"
)

// Orchestrator drives one retrieval request through the pipeline:
// profile, metadata, duration check, then the quality ladder.
type Orchestrator struct {
	profiles *ProfileResolver
	metadata *MetadataResolver
	ladders  *Ladders
	executor *Executor
	ledger   ports.Ledger
	logger   *log.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	profiles *ProfileResolver,
	metadata *MetadataResolver,
	ladders *Ladders,
	executor *Executor,
	ledger ports.Ledger,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		profiles: profiles,
		metadata: metadata,
		ladders:  ladders,
		executor: executor,
		ledger:   ledger,
		logger:   logger,
	}
}

// run holds the mutable state of one pipeline execution.
type run struct {
	o     *Orchestrator
	req   domain.RetrievalRequest
	emit  func(domain.Progress)
	state domain.State
	rec   *domain.AttemptRecord
	tried []string
}

func (r *run) transition(to domain.State, detail string) {
	if detail != "" {
		r.o.logger.Printf("[REQ %s] %s -> %s (%s)", r.req.ID, r.state, to, detail)
	} else {
		r.o.logger.Printf("[REQ %s] %s -> %s", r.req.ID, r.state, to)
	}
	r.state = to
}

func (r *run) progress(stage domain.Stage, detail string) {
	if r.emit != nil {
		r.emit(domain.Progress{Stage: stage, Detail: detail})
	}
}

// finalize applies the record's terminal transition. It runs on a context
// detached from cancellation so a cancelled run still closes its record.
// A failure here is logged; the housekeeping sweep covers the record.
func (r *run) finalize(ctx context.Context, f domain.Finalization) {
	if r.rec == nil {
		return
	}
	if err := r.o.ledger.Finalize(context.WithoutCancel(ctx), r.rec, f); err != nil {
		r.o.logger.Printf("[REQ %s] ERROR: failed to finalize record %d: %v", r.req.ID, r.rec.ID, err)
	}
}

func (r *run) result(kind domain.ResultKind, reason string, err error) domain.Result {
	res := domain.Result{
		Kind:       kind,
		State:      r.state,
		Reason:     reason,
		TiersTried: r.tried,
		Err:        err,
	}
	if r.rec != nil {
		res.RecordID = r.rec.ID
	}
	return res
}

// fail ends the run in ERROR. The record, if one was opened, is finalized
// FAILURE with the bounded reason.
func (r *run) fail(ctx context.Context, err error) domain.Result {
	reason := domain.Excerpt(err.Error())
	if isCancelled(ctx, err) {
		reason = domain.ReasonCancelled
	}
	r.transition(domain.StateError, reason)
	r.o.logger.Printf("[REQ %s] ERROR: %v", r.req.ID, err)
	r.finalize(ctx, domain.Finalization{Outcome: domain.OutcomeFailure, ErrorMessage: reason})
	return r.result(domain.ResultFailed, reason, err)
}

// Run executes req and returns its single terminal result. Progress is
// reported through emit, which may be nil. Run never leaves a record it
// opened in PENDING.
func (o *Orchestrator) Run(ctx context.Context, req domain.RetrievalRequest, emit func(domain.Progress)) domain.Result {
	r := &run{o: o, req: req, emit: emit, state: domain.StateInit}
	o.logger.Printf("[REQ %s] Starting %s request for URL: %s", req.ID, req.Kind, req.URL)

	profile := o.profiles.Resolve(req.URL)
	r.transition(domain.StateProfiled, string(profile.Site))
	r.progress(domain.StageProfiled, string(profile.Site))
	if profile.Advisory != "" {
		r.progress(domain.StageAdvisory, profile.Advisory)
	}

	url := req.URL
	if profile.NeedsExpansion {
		r.progress(domain.StageExpanding, url)
		expanded, err := o.metadata.Expand(ctx, url, profile.Options)
		if err != nil {
			return r.fail(ctx, err)
		}
		o.logger.Printf("[REQ %s] Expanded %s to %s", req.ID, url, expanded)
		url = expanded
	}

	r.progress(domain.StageResolvingMetadata, "")
	meta, err := o.metadata.Resolve(ctx, url, profile.Options)
	if err != nil {
		return r.fail(ctx, err)
	}

	rec, err := o.ledger.Open(ctx, req, meta)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("failed to open attempt record: %w", err))
	}
	r.rec = rec
	r.transition(domain.StateMetadataResolved, fmt.Sprintf("%q, %ds, record %d", meta.Title, meta.DurationSeconds, rec.ID))
	r.progress(domain.StageMetadataResolved, meta.Title)

	if err := o.metadata.CheckDuration(meta); err != nil {
		r.transition(domain.StateDurationRejected, err.Error())
		r.finalize(ctx, domain.Finalization{Outcome: domain.OutcomeFailure, ErrorMessage: domain.ReasonTooLong})
		res := r.result(domain.ResultRejected, domain.ReasonTooLong, err)
		res.Metadata = &meta
		return res
	}

	tiers := o.ladders.For(req.Kind, req.QualityHint)
	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, err)
		}

		r.transition(domain.StateTrying, tier.Label)
		r.tried = append(r.tried, tier.Label)
		r.progress(domain.StageTrying, tier.Label)

		artifact, err := o.executor.Attempt(ctx, url, profile.Options, req.Kind, tier)
		if err == nil {
			r.transition(domain.StateDelivered, fmt.Sprintf("%s, %d bytes", tier.Label, artifact.SizeBytes))
			r.finalize(ctx, domain.Finalization{Outcome: domain.OutcomeSuccess, FileSizeBytes: artifact.SizeBytes})
			res := r.result(domain.ResultDelivered, "", nil)
			res.Metadata = &meta
			res.Artifact = artifact
			res.Tier = tier.Label
			return res
		}

		var oversize *domain.OversizeError
		if !errors.As(err, &oversize) {
			res := r.fail(ctx, err)
			res.Metadata = &meta
			return res
		}

		o.logger.Printf("[REQ %s] %v", req.ID, oversize)
		r.progress(domain.StageOversize, oversize.Error())
	}

	r.transition(domain.StateExhausted, domain.ReasonExhausted)
	r.finalize(ctx, domain.Finalization{Outcome: domain.OutcomeFailure, ErrorMessage: domain.ReasonExhausted})
	res := r.result(domain.ResultFailed, domain.ReasonExhausted, nil)
	res.Metadata = &meta
	res.OfferAlternateKind = req.Kind == domain.KindVideo
	return res
}

// Submit runs req on its own goroutine and streams its events. The
// channel is buffered for every event a run can produce, so the run never
// blocks on a slow reader, and it is closed after the result.
func (o *Orchestrator) Submit(ctx context.Context, req domain.RetrievalRequest) <-chan domain.Event {
	events := make(chan domain.Event, o.maxEvents())
	go func() {
		defer close(events)
		res := o.Run(ctx, req, func(p domain.Progress) {
			events <- domain.Event{Progress: &p}
		})
		events <- domain.Event{Result: &res}
	}()
	return events
}

// maxEvents is profiled, advisory, expanding, resolving and resolved,
// a trying/oversize pair per tier, and the result.
func (o *Orchestrator) maxEvents() int {
	return 5 + 2*o.ladders.MaxLen() + 1
}

func isCancelled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}
