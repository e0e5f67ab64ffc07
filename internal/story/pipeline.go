package story

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/id"
	"github.com/alreadydone/alreadydone-server/internal/lock"
	"github.com/alreadydone/alreadydone-server/internal/metrics"
	"github.com/alreadydone/alreadydone-server/internal/validation"
)

// State is a step of one pipeline run.
type State string

// Pipeline states. Aborted is terminal and reachable from every other state.
const (
	StateValidating      State = "validating"
	StateQuotaCheck      State = "quota_check"
	StateCategoryResolve State = "category_resolve"
	StateHistoryFetch    State = "history_fetch"
	StateGenerating      State = "generating"
	StatePersisting      State = "persisting"
	StateDone            State = "done"
	StateAborted         State = "aborted"
)

// AbortReason says why a run stopped before Done.
type AbortReason string

// Abort reasons.
const (
	ReasonValidationFailed      AbortReason = "validation_failed"
	ReasonUserNotFound          AbortReason = "user_not_found"
	ReasonQuotaExceeded         AbortReason = "quota_exceeded"
	ReasonCategoryNotFound      AbortReason = "category_not_found"
	ReasonGenerationUnavailable AbortReason = "generation_unavailable"
	ReasonGenerationFailed      AbortReason = "generation_failed"
	ReasonStorageFailed         AbortReason = "storage_failed"
	ReasonConcurrentRequest     AbortReason = "concurrent_request"
)

// Request is a story generation request as received from the client.
type Request struct {
	UserID            int64                 `json:"user_id" validate:"required,gt=0"`
	Name              string                `json:"name" validate:"notblank,max=100"`
	Location          string                `json:"location" validate:"notblank,max=200"`
	EnergyWord        domain.EnergyWord     `json:"energyWord" validate:"required,oneof=Powerful Peaceful Abundant Grateful Confident"`
	DesireCategory    domain.DesireCategory `json:"desireCategory" validate:"required,oneof=Love Money Career Health Home"`
	DesireDescription string                `json:"desireDescription" validate:"notblank,max=2000"`
	LovedOne          string                `json:"lovedOne,omitempty" validate:"max=100"`
}

// Outcome is what a finished run hands back to the caller.
type Outcome struct {
	ID       int64
	Theme    string
	Body     string
	Sequence int
	Stage    Stage
}

// StoryGenerator produces a theme and body for a rendered prompt.
type StoryGenerator interface {
	Generate(ctx context.Context, p Prompt) (Result, error)
}

// Locker serializes runs for the same user. Lock fails with lock.ErrHeld
// when another run holds key.
type Locker interface {
	Lock(ctx context.Context, key string) (func(context.Context), error)
}

// Pipeline runs the story generation state machine.
//
// Without a Locker two concurrent runs for the same free user can both pass
// the quota check and both persist a story. Enable the Redis locker to close
// that window.
type Pipeline struct {
	validator *validation.Validator
	quota     *QuotaPolicy
	catalog   *Catalog
	history   *HistoryReader
	generator StoryGenerator
	writer    *Writer
	locker    Locker
	logger    *slog.Logger
}

// NewPipeline wires the pipeline components.
func NewPipeline(
	quota *QuotaPolicy,
	catalog *Catalog,
	history *HistoryReader,
	generator StoryGenerator,
	writer *Writer,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		validator: validation.New(),
		quota:     quota,
		catalog:   catalog,
		history:   history,
		generator: generator,
		writer:    writer,
		logger:    logger,
	}
}

// SetLocker enables per-user serialization from quota check through persisting.
func (p *Pipeline) SetLocker(l Locker) {
	p.locker = l
}

// run tracks one pass through the state machine.
type run struct {
	state  State
	start  time.Time
	logger *slog.Logger
}

func (r *run) enter(s State) {
	r.state = s
	r.logger.Debug("pipeline state", "state", s)
}

// abort moves the run to Aborted and returns err unchanged.
func (r *run) abort(reason AbortReason, err error) error {
	from := r.state
	r.state = StateAborted
	metrics.PipelineRun(string(reason), time.Since(r.start))

	attrs := []any{"state", from, "reason", reason, "error", err}
	if apperr.CodeOf(err).ClientSide() {
		r.logger.Info("story pipeline aborted", attrs...)
	} else {
		r.logger.Error("story pipeline aborted", attrs...)
	}
	return err
}

// Run validates req and, if allowed, generates and stores one story.
// Every failure is a typed *errors.Error.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Outcome, error) {
	runID, err := id.Generate(id.PrefixRun)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to start story run")
	}
	r := &run{
		state:  StateValidating,
		start:  time.Now(),
		logger: p.logger.With("run_id", runID, "user_id", req.UserID),
	}

	if err := p.validator.Validate(req); err != nil {
		return nil, r.abort(ReasonValidationFailed, err)
	}

	r.enter(StateQuotaCheck)
	if p.locker != nil {
		release, err := p.locker.Lock(ctx, "story:user:"+strconv.FormatInt(req.UserID, 10))
		if errors.Is(err, lock.ErrHeld) {
			return nil, r.abort(ReasonConcurrentRequest, apperr.Conflict("a story is already being generated for this user"))
		}
		if err != nil {
			return nil, r.abort(ReasonStorageFailed, apperr.Storage(err, "failed to acquire generation lock"))
		}
		defer release(context.WithoutCancel(ctx))
	}

	allowed, err := p.quota.MayGenerate(ctx, req.UserID)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, r.abort(ReasonUserNotFound, err)
		}
		return nil, r.abort(ReasonStorageFailed, err)
	}
	if !allowed {
		return nil, r.abort(ReasonQuotaExceeded, apperr.QuotaExceeded("daily story limit reached, subscribe for unlimited stories"))
	}

	r.enter(StateCategoryResolve)
	categoryID, err := p.catalog.ResolveCategoryID(ctx, string(req.DesireCategory))
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, r.abort(ReasonCategoryNotFound, err)
		}
		return nil, r.abort(ReasonStorageFailed, err)
	}

	r.enter(StateHistoryFetch)
	hist, err := p.history.History(ctx, req.UserID, categoryID)
	if err != nil {
		return nil, r.abort(ReasonStorageFailed, err)
	}
	sequence := hist.NextSequence()
	stage := SelectStage(sequence)

	r.enter(StateGenerating)
	prompt, err := p.buildPrompt(req, stage, sequence, hist.Themes)
	if err != nil {
		return nil, r.abort(ReasonGenerationFailed, apperr.Wrap(err, apperr.CodeInternal, "failed to render prompt"))
	}
	gen, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotConfigured) {
			return nil, r.abort(ReasonGenerationUnavailable, err)
		}
		return nil, r.abort(ReasonGenerationFailed, err)
	}

	r.enter(StatePersisting)
	saved, err := p.writer.Insert(ctx, req.UserID, categoryID, gen.Theme, gen.Body)
	if err != nil {
		return nil, r.abort(ReasonStorageFailed, err)
	}

	r.enter(StateDone)
	metrics.PipelineRun(string(StateDone), time.Since(r.start))
	r.logger.Info("story generated",
		"story_id", saved.ID,
		"category", req.DesireCategory,
		"sequence", sequence,
		"stage", stage,
		"duration", time.Since(r.start),
	)

	return &Outcome{
		ID:       saved.ID,
		Theme:    saved.Theme,
		Body:     saved.Body,
		Sequence: sequence,
		Stage:    stage,
	}, nil
}

func (p *Pipeline) buildPrompt(req Request, stage Stage, sequence int, themes []string) (Prompt, error) {
	system, err := SystemPrompt()
	if err != nil {
		return Prompt{}, err
	}
	user, err := UserPrompt(stage, PromptInput{
		Name:        req.Name,
		Location:    req.Location,
		EnergyWord:  req.EnergyWord,
		Category:    req.DesireCategory,
		Description: req.DesireDescription,
		LovedOne:    req.LovedOne,
		Sequence:    sequence,
		PriorThemes: themes,
	})
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user, Category: req.DesireCategory}, nil
}
