// Package pipeline sequences the verification run: resolve, collect
// evidence, classify and summarize in parallel, score, recheck the identity
// lock, persist. The orchestrator is the only component that declares a
// final verdict.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gravi-labs/retail-verify/internal/config"
	"github.com/gravi-labs/retail-verify/internal/evidence"
	"github.com/gravi-labs/retail-verify/internal/geo"
	"github.com/gravi-labs/retail-verify/internal/model"
	"github.com/gravi-labs/retail-verify/internal/resilience"
	"github.com/gravi-labs/retail-verify/internal/scorer"
	"github.com/gravi-labs/retail-verify/internal/store"
)

// State names for the forward-only pipeline state machine. Transitions never
// go backwards; any failure jumps straight to FAILED.
type State string

const (
	StateStart              State = "START"
	StateResolving          State = "RESOLVING"
	StateCollectingEvidence State = "COLLECTING_EVIDENCE"
	StateClassifying        State = "CLASSIFYING"
	StateScoring            State = "SCORING"
	StateIdentityRecheck    State = "IDENTITY_RECHECK"
	StateVerified           State = "VERIFIED"
	StateFailed             State = "FAILED"
)

// FlagCoordinateMismatch is appended when the coordinates embedded in the
// submitted URL disagree with the provider-reported location.
const FlagCoordinateMismatch = "Listed coordinates far from resolved location"

// Outcome is the single result of a pipeline run. SessionID is always set,
// including on failure, so every run stays traceable.
type Outcome struct {
	SessionID string
	Status    model.VerificationStatus
	Reason    string
	Record    *model.AnalysisRecord
}

// Resolver is the place-resolution seam consumed by the orchestrator.
type Resolver interface {
	Resolve(ctx context.Context, mapsURL string) (*geo.Resolution, error)
}

// Collector is the evidence-collection seam consumed by the orchestrator.
type Collector interface {
	Collect(ctx context.Context, res *geo.Resolution) (*model.EvidenceBundle, error)
}

// Classifier is the vision seam consumed by the orchestrator.
type Classifier interface {
	Classify(ctx context.Context, bundle *model.EvidenceBundle, placeName string) (*model.ClassificationResult, error)
}

// Summarizer is the review-intelligence seam consumed by the orchestrator.
type Summarizer interface {
	Summarize(ctx context.Context, revs []model.Review) model.ReviewIntelligence
}

// Orchestrator runs single-place verification end to end.
type Orchestrator struct {
	cfg        *config.Config
	resolver   Resolver
	collector  Collector
	classifier Classifier
	summarizer Summarizer
	store      store.Store // nil disables persistence
	retryCfg   resilience.RetryConfig
}

// New creates an Orchestrator with all dependencies. st may be nil to run
// without persistence.
func New(
	cfg *config.Config,
	resolver Resolver,
	collector Collector,
	classifier Classifier,
	summarizer Summarizer,
	st store.Store,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		resolver:   resolver,
		collector:  collector,
		classifier: classifier,
		summarizer: summarizer,
		store:      st,
		retryCfg:   resilience.DefaultRetryConfig(),
	}
}

// Run verifies a single listing URL. It never returns an error: every
// failure mode is folded into a FAILED outcome carrying the session id
// generated at pipeline start.
func (o *Orchestrator) Run(ctx context.Context, mapsURL string) *Outcome {
	sessionID := uuid.New().String()
	log := zap.L().With(zap.String("session_id", sessionID))
	log.Info("pipeline: starting verification", zap.String("url", mapsURL))

	fail := func(state State, reason string, err error) *Outcome {
		log.Warn("pipeline: run failed",
			zap.String("state", string(state)),
			zap.String("reason", reason),
			zap.Error(err))
		return &Outcome{
			SessionID: sessionID,
			Status:    model.StatusFailed,
			Reason:    reason,
		}
	}

	// RESOLVING
	log.Info("pipeline: state transition", zap.String("state", string(StateResolving)))
	res, err := o.resolver.Resolve(ctx, mapsURL)
	if err != nil {
		switch {
		case errors.Is(err, geo.ErrNotFound):
			return fail(StateResolving, "place not found", err)
		case errors.Is(err, geo.ErrAmbiguous):
			return fail(StateResolving, "cannot uniquely identify place", err)
		case errors.Is(err, geo.ErrSearchFailed):
			return fail(StateResolving, "place search failed", err)
		default:
			return fail(StateResolving, "place resolution failed", err)
		}
	}

	// COLLECTING_EVIDENCE
	log.Info("pipeline: state transition", zap.String("state", string(StateCollectingEvidence)))
	bundle, err := o.collector.Collect(ctx, res)
	if err != nil {
		if errors.Is(err, evidence.ErrNoImages) {
			return fail(StateCollectingEvidence, "no photos available for analysis", err)
		}
		return fail(StateCollectingEvidence, "evidence collection failed", err)
	}

	// CLASSIFYING + SUMMARIZING run concurrently; the orchestrator joins on
	// both before scoring. The summarizer cannot fail, so only the classifier
	// error can cancel the group.
	log.Info("pipeline: state transition", zap.String("state", string(StateClassifying)))
	var classification *model.ClassificationResult
	var intel model.ReviewIntelligence

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg := o.retryCfg
		cfg.OnRetry = resilience.RetryLogger("vision", "classify")
		cls, err := resilience.DoVal(gCtx, cfg, func(ctx context.Context) (*model.ClassificationResult, error) {
			return o.classifier.Classify(ctx, bundle, res.Identity.Name)
		})
		if err != nil {
			return err
		}
		classification = cls
		return nil
	})
	g.Go(func() error {
		intel = o.summarizer.Summarize(gCtx, bundle.Reviews)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fail(StateClassifying, "image classification failed", err)
	}

	// SCORING
	log.Info("pipeline: state transition", zap.String("state", string(StateScoring)))
	score := scorer.Score(o.cfg.Scoring, scorer.Input{
		CategoryHints: res.Types,
		Brands:        classification.FlatBrands(),
		StoreType:     classification.StoreType,
		Confidence:    classification.Confidence,
		ImageCount:    len(bundle.Images),
	})
	if res.CoordinateMismatch {
		score.RiskFlags = append(score.RiskFlags, FlagCoordinateMismatch)
	}

	// IDENTITY_RECHECK: the evidence must refer to the place frozen at
	// resolution time. A mismatch is a correctness bug, not bad user input,
	// so it is logged at error level.
	log.Info("pipeline: state transition", zap.String("state", string(StateIdentityRecheck)))
	if bundle.PlaceID != res.Identity.PlaceID {
		log.Error("pipeline: identity lock mismatch",
			zap.String("resolved_place_id", res.Identity.PlaceID),
			zap.String("evidence_place_id", bundle.PlaceID))
		return fail(StateIdentityRecheck, "identity lock mismatch", nil)
	}

	record := model.NewV2Record(&model.VerificationResult{
		AnalysisSessionID:   sessionID,
		VerificationStatus:  model.StatusVerified,
		PlaceIdentityLock:   res.Identity,
		StoreType:           classification.StoreType,
		StoreTypeConfidence: model.BucketConfidence(classification.Confidence),
		StoreNameFromImage:  classification.StoreNameFromImage,
		DetectedBrands:      classification.DetectedBrands,
		ReviewIntelligence:  intel,
		RatingsData: model.RatingsData{
			AverageRating: res.Rating,
			TotalReviews:  res.Identity.ReviewCount,
		},
		RecentReviews:     bundle.Reviews,
		ImagesAnalyzed:    len(bundle.Images),
		ShelfDensityScore: classification.ShelfDensityScore,
		AuthenticityScore: score.AuthenticityScore,
		RiskFlags:         score.RiskFlags,
	}, time.Now().UTC())

	// Persistence is best-effort: a store failure does not retract an
	// otherwise valid verdict.
	if o.store != nil {
		if err := o.store.SaveRecord(ctx, record); err != nil {
			log.Warn("pipeline: failed to persist record", zap.Error(err))
		}
	}

	log.Info("pipeline: verification complete",
		zap.String("state", string(StateVerified)),
		zap.String("place_id", res.Identity.PlaceID),
		zap.Int("authenticity_score", score.AuthenticityScore),
		zap.Strings("risk_flags", score.RiskFlags))

	return &Outcome{
		SessionID: sessionID,
		Status:    model.StatusVerified,
		Record:    record,
	}
}
