package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/digital-iq/llm-report/internal/decompose"
	"github.com/digital-iq/llm-report/internal/logging"
	"github.com/digital-iq/llm-report/pkg/models"
)

// ErrEmptyRequest is returned when a run is started without request text.
var ErrEmptyRequest = errors.New("request text is empty")

// ResultNoSubtasks is the record result of a run whose decomposition was empty.
const ResultNoSubtasks = "no subtasks"

// Decomposer splits a request into subtasks.
type Decomposer interface {
	Decompose(ctx context.Context, req models.Request) (decompose.Result, error)
}

// Writer produces the text of one delegated subtask given the accumulated
// context of earlier subtasks.
type Writer interface {
	Write(ctx context.Context, d models.SubtaskDescriptor, prior string) (string, error)
}

// Publisher assembles outcomes into a document, renders it and stores the
// artifacts.
type Publisher interface {
	Publish(ctx context.Context, runID, title string, outcomes []models.SubtaskOutcome) (models.ArtifactRefs, error)
}

// Recorder appends a finished run to an identity's history.
type Recorder interface {
	Append(ctx context.Context, identity string, rec models.RunRecord) error
}

// ExecutorConfig holds the collaborators of an Executor.
type ExecutorConfig struct {
	Decomposer Decomposer
	Writer     Writer
	// Publisher may be nil, in which case no document is rendered.
	Publisher Publisher
	// Recorder may be nil, in which case records are only returned.
	Recorder Recorder
	Logger   *zap.Logger
	// OnPhase, if set, is called on every state transition.
	OnPhase PhaseObserver
	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Executor runs the report pipeline. It keeps no per-run state, so one
// Executor may serve concurrent runs.
type Executor struct {
	decomposer Decomposer
	writer     Writer
	publisher  Publisher
	recorder   Recorder
	logger     *zap.Logger
	onPhase    PhaseObserver
	now        func() time.Time
	newID      func() string
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	e := &Executor{
		decomposer: cfg.Decomposer,
		writer:     cfg.Writer,
		publisher:  cfg.Publisher,
		recorder:   cfg.Recorder,
		logger:     logging.OrNop(cfg.Logger).Named("orchestrator"),
		onPhase:    cfg.OnPhase,
		now:        cfg.Now,
		newID:      cfg.NewID,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e
}

// run is the state owned by a single execution.
type run struct {
	record *models.RunRecord
	ctx    RunContext
	total  int
	logger *zap.Logger
}

// Run executes one request end to end and records it under identity.
// The returned record is never nil once the request is accepted; it carries
// every outcome gathered before a fatal failure. The error is a *StageError
// for decomposition and render failures, joined with a persist failure when
// the record could not be appended.
func (e *Executor) Run(ctx context.Context, identity string, req models.Request) (*models.RunRecord, error) {
	if req.Empty() {
		return nil, ErrEmptyRequest
	}

	start := e.now()
	r := &run{
		record: &models.RunRecord{
			ID:          e.newID(),
			RequestText: req.Text,
			Outcomes:    []models.SubtaskOutcome{},
			Trace:       []models.TraceEntry{},
			StartedAt:   start,
		},
	}
	r.logger = e.logger.With(zap.String("run_id", r.record.ID))
	r.logger.Info("run started", zap.String("request", logging.Truncate(req.Text, 120)))

	runErr := e.execute(ctx, r, req)

	rec := r.record
	rec.DurationSeconds = models.RoundSeconds(e.now().Sub(start))
	if runErr != nil {
		rec.Status = models.RunStatusFailed
		rec.Error = runErr.Error()
		rec.Trace = append(rec.Trace, models.TraceEntry{Role: models.RoleError, Error: runErr.Error()})
		e.emit(PhaseEvent{RunID: rec.ID, Phase: PhaseFailed, Total: r.total, Error: runErr})
		r.logger.Warn("run failed",
			zap.Error(runErr),
			zap.Int("outcomes", len(rec.Outcomes)),
			zap.Float64("duration_seconds", rec.DurationSeconds))
	} else {
		rec.Status = models.RunStatusDone
		e.emit(PhaseEvent{RunID: rec.ID, Phase: PhaseDone, Total: r.total})
		r.logger.Info("run finished",
			zap.Int("subtasks", len(rec.Outcomes)),
			zap.Int("failed_subtasks", rec.FailedSubtasks()),
			zap.Float64("duration_seconds", rec.DurationSeconds))
	}

	if e.recorder != nil {
		// A cancelled run still reaches a terminal state and is recorded.
		if err := e.recorder.Append(context.WithoutCancel(ctx), identity, *rec); err != nil {
			r.logger.Error("run history not saved", zap.String("identity", identity), zap.Error(err))
			return rec, errors.Join(runErr, &StageError{Stage: StagePersist, Err: err})
		}
	}
	return rec, runErr
}

func (e *Executor) execute(ctx context.Context, r *run, req models.Request) error {
	rec := r.record

	e.emit(PhaseEvent{RunID: rec.ID, Phase: PhaseDecomposing})
	res, err := e.decomposer.Decompose(ctx, req)
	if err != nil {
		if res.Raw != "" {
			rec.Trace = append(rec.Trace, models.TraceEntry{Role: models.RoleDecomposer, Content: res.Raw})
		}
		return &StageError{Stage: StageDecompose, Err: err}
	}
	rec.Trace = append(rec.Trace, models.TraceEntry{
		Role:    models.RoleDecomposer,
		Content: describeSubtasks(res.Subtasks),
	})

	r.total = len(res.Subtasks)
	r.logger.Info("request decomposed",
		zap.Int("subtasks", r.total),
		zap.String("tier", string(res.Tier)))
	if r.total == 0 {
		rec.Result = ResultNoSubtasks
		return nil
	}

	for i, d := range res.Subtasks {
		outcome := e.runSubtask(ctx, r, i+1, d)
		rec.Outcomes = append(rec.Outcomes, outcome)
	}

	e.emit(PhaseEvent{RunID: rec.ID, Phase: PhaseAssembling, Total: r.total})
	if e.publisher == nil {
		rec.Result = fmt.Sprintf("%d of %d sections produced, rendering disabled", r.total-rec.FailedSubtasks(), r.total)
		return nil
	}
	refs, err := e.publisher.Publish(ctx, rec.ID, req.Text, rec.Outcomes)
	if err != nil {
		return &StageError{Stage: StageRender, Err: err}
	}
	rec.Artifacts = &refs
	rec.Result = fmt.Sprintf("%d of %d sections rendered", r.total-rec.FailedSubtasks(), r.total)
	return nil
}

// runSubtask routes and executes subtask i. Failures become error outcomes;
// only produced text is appended to the run context.
func (e *Executor) runSubtask(ctx context.Context, r *run, i int, d models.SubtaskDescriptor) models.SubtaskOutcome {
	rec := r.record
	e.emit(PhaseEvent{RunID: rec.ID, Phase: PhaseRouting, Index: i, Total: r.total, Title: d.Title})

	outcome := models.SubtaskOutcome{Index: i, Title: d.Title, Routing: Classify(d)}
	logger := r.logger.With(
		zap.Int("subtask", i),
		zap.String("title", d.Title),
		zap.String("routing", string(outcome.Routing)))

	switch outcome.Routing {
	case models.RoutingEmulated:
		e.emit(PhaseEvent{RunID: rec.ID, Phase: PhaseEmulating, Index: i, Total: r.total, Title: d.Title})
		outcome.Output = Emulate(d)
		rec.Trace = append(rec.Trace, models.TraceEntry{
			Role:     subtaskRole(models.RoleEmulator, i),
			Content:  outcome.Output,
			Emulated: true,
		})
		r.ctx.Append(LabelEmulated, outcome.Output)
		logger.Debug("subtask emulated")

	default:
		e.emit(PhaseEvent{RunID: rec.ID, Phase: PhaseDelegating, Index: i, Total: r.total, Title: d.Title})
		out, err := e.writer.Write(ctx, d, r.ctx.Snapshot())
		if err != nil {
			outcome.Error = err.Error()
			rec.Trace = append(rec.Trace, models.TraceEntry{
				Role:  subtaskRole(models.RoleWriter, i),
				Error: outcome.Error,
			})
			logger.Warn("subtask failed", zap.Error(err))
			break
		}
		outcome.Output = out
		rec.Trace = append(rec.Trace, models.TraceEntry{
			Role:    subtaskRole(models.RoleWriter, i),
			Content: out,
		})
		r.ctx.Append(LabelWriter, out)
		logger.Debug("subtask written", zap.Int("bytes", len(out)))
	}

	return outcome
}

func (e *Executor) emit(ev PhaseEvent) {
	if e.onPhase == nil {
		return
	}
	ev.Timestamp = e.now()
	e.onPhase(ev)
}

func subtaskRole(role string, i int) string {
	return fmt.Sprintf("%s (subtask %d)", role, i)
}

func describeSubtasks(subtasks []models.SubtaskDescriptor) string {
	if subtasks == nil {
		subtasks = []models.SubtaskDescriptor{}
	}
	b, err := json.MarshalIndent(subtasks, "", "  ")
	if err != nil {
		return fmt.Sprintf("%d subtasks", len(subtasks))
	}
	return string(b)
}
