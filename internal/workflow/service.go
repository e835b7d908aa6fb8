package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/readiness/internal/access"
	"github.com/pitabwire/readiness/internal/observability"
	"github.com/pitabwire/readiness/internal/status"
	"github.com/pitabwire/readiness/internal/transform"
	"github.com/pitabwire/readiness/model"
)

const defaultIdempotencyTTL = 24 * time.Hour

// Service owns the storage discipline around the engine: it loads a
// submission, applies a transition and persists the result under the
// store's optimistic version check. Two racing transitions on the same
// submission resolve to one success and one CONFLICT.
type Service struct {
	engine      *Engine
	store       SubmissionStore
	transformer *transform.Transformer
	policy      *access.Policy

	idempotency    IdempotencyStore
	idempotencyTTL time.Duration

	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithIdempotency enables de-duplication of transitions carrying a key.
func WithIdempotency(store IdempotencyStore, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.idempotency = store
		if ttl > 0 {
			s.idempotencyTTL = ttl
		}
	}
}

// WithMetrics records service activity on m.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithServiceClock replaces the wall clock used for new submissions.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a workflow service. The engine should share policy as
// its read access so add_comment and Get agree.
func NewService(engine *Engine, store SubmissionStore, tr *transform.Transformer, policy *access.Policy, opts ...ServiceOption) *Service {
	s := &Service{
		engine:         engine,
		store:          store,
		transformer:    tr,
		policy:         policy,
		idempotencyTTL: defaultIdempotencyTTL,
		logger:         zap.NewNop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create converts a flat form into a submission in SUBMITTED_TO_STATE and
// persists it. Only nodal officers create submissions.
func (s *Service) Create(ctx context.Context, actor *model.ActorContext, form map[string]any) (model.Submission, error) {
	return s.create(ctx, actor, form, model.StateSubmittedToState)
}

// CreateDraft is Create for a submission that starts in DRAFT. An empty
// form is accepted.
func (s *Service) CreateDraft(ctx context.Context, actor *model.ActorContext, form map[string]any) (model.Submission, error) {
	return s.create(ctx, actor, form, model.StateDraft)
}

func (s *Service) create(ctx context.Context, actor *model.ActorContext, form map[string]any, initial model.WorkflowState) (sub model.Submission, err error) {
	if err := requireActor(actor); err != nil {
		return model.Submission{}, err
	}
	ctx, span := observability.StartSpan(ctx, "workflow.create",
		observability.AttrActorID.String(actor.UserID),
		observability.AttrRole.String(string(actor.Role)),
		observability.AttrStateUTID.String(actor.StateUTID),
		observability.AttrToState.String(string(initial)),
	)
	defer func() { observability.EndSpanWithError(span, err) }()
	logger := s.actorLogger(ctx, actor)

	if actor.Role != model.RoleNodalOfficer {
		return model.Submission{}, model.NewIllegalTransitionError(model.StateDraft, model.ActionSubmitToState, actor.Role)
	}

	outcome, err := s.transformer.ToSubmission(form, actor.UserID, actor.StateUTID, s.now())
	if err != nil {
		s.metrics.RecordTransform("rejected", 0)
		logger.Warn("form rejected", zap.Error(err))
		return model.Submission{}, err
	}
	s.metrics.RecordTransform("ok", len(outcome.Dropped))
	if len(outcome.Dropped) > 0 {
		logger.Debug("dropped unknown form fields", zap.Strings("fields", outcome.Dropped))
	}

	sub = outcome.Submission
	sub.Status = initial
	sub.Version = 1

	if err := validateNew(sub); err != nil {
		logger.Warn("submission failed validation", zap.Error(err))
		return model.Submission{}, err
	}

	start := time.Now()
	err = s.store.Create(ctx, sub)
	s.metrics.RecordStoreOperation("create", err, time.Since(start))
	if err != nil {
		logStoreError(logger, "create", err)
		return model.Submission{}, err
	}

	span.SetAttributes(observability.AttrSubmissionID.String(sub.ID))
	s.metrics.RecordSubmissionCreated(string(sub.Status))
	logger.Info("submission created",
		zap.String("submission_id", sub.ID),
		zap.String("status", string(sub.Status)),
		zap.Int("indicators", sub.Data.IndicatorCount()),
	)
	return sub, nil
}

// validateNew runs structural validation. Drafts may be empty.
func validateNew(sub model.Submission) error {
	res := transform.Validate(sub)
	if res.IsValid || sub.Status != model.StateDraft {
		return res.Err()
	}
	var errs []model.FieldError
	for _, fe := range res.Errors {
		if fe.Field != "submission_data" {
			errs = append(errs, fe)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return model.NewValidationError(errs)
}

// Transition applies req to the submission id on behalf of actor. When
// idempotencyKey is non-empty and an idempotency store is configured, a
// retry with the same key and request returns the first result without
// applying it again; the same key with a different request is a CONFLICT.
func (s *Service) Transition(ctx context.Context, actor *model.ActorContext, id string, req TransitionRequest, idempotencyKey string) (res TransitionResult, err error) {
	if err := requireActor(actor); err != nil {
		return TransitionResult{}, err
	}
	req.ActorID = actor.UserID
	req.ActorRole = actor.Role

	ctx, span := observability.StartSpan(ctx, "workflow.transition",
		observability.AttrSubmissionID.String(id),
		observability.AttrAction.String(string(req.Action)),
		observability.AttrActorID.String(actor.UserID),
		observability.AttrRole.String(string(actor.Role)),
	)
	defer func() { observability.EndSpanWithError(span, err) }()
	logger := s.actorLogger(ctx, actor).With(
		zap.String("submission_id", id),
		zap.String("action", string(req.Action)),
	)

	start := time.Now()
	replayed := false
	defer func() {
		outcome, to := "applied", string(res.To)
		switch {
		case err != nil:
			outcome, to = errorOutcome(err), ""
		case replayed:
			outcome, to = "replayed", ""
		}
		s.metrics.RecordTransition(string(req.Action), string(req.ActorRole), outcome, to, time.Since(start))
	}()

	var idemKey, inputHash string
	if s.idempotency != nil && idempotencyKey != "" {
		idemKey = FormatIdempotencyKey(id, idempotencyKey)
		inputHash = hashRequest(req)
		cached, found, err := s.idempotency.Check(ctx, idemKey, inputHash)
		if err != nil {
			logger.Warn("idempotency check failed", zap.Error(err))
			return TransitionResult{}, err
		}
		if found {
			span.SetAttributes(observability.AttrIdempotentReplay.Bool(true))
			replayed = true
			s.metrics.RecordIdempotentReplay()
			logger.Debug("transition replayed from idempotency store")
			return *cached, nil
		}
	}

	sub, err := s.load(ctx, actor, id)
	if err != nil {
		logStoreError(logger, "get", err)
		return TransitionResult{}, err
	}

	res, err = s.engine.ApplyTransition(sub, req)
	if err != nil {
		logger.Warn("transition refused",
			zap.String("state", string(sub.Status)),
			zap.String("code", model.ErrorCode(err)),
		)
		return TransitionResult{}, err
	}

	storeStart := time.Now()
	err = s.store.Update(ctx, res.Submission)
	s.metrics.RecordStoreOperation("update", err, time.Since(storeStart))
	if err != nil {
		logStoreError(logger, "update", err)
		return TransitionResult{}, err
	}
	res.Submission.Version = sub.Version + 1

	span.SetAttributes(
		observability.AttrFromState.String(string(res.From)),
		observability.AttrToState.String(string(res.To)),
	)
	s.metrics.RecordCommentWarnings(string(req.Action), len(res.Warnings))
	if len(res.Warnings) > 0 {
		logger.Warn("comment accepted with warnings", zap.Strings("warnings", res.Warnings))
	}

	if idemKey != "" {
		if err := s.idempotency.Store(ctx, idemKey, inputHash, res, s.idempotencyTTL); err != nil {
			// The transition is already persisted; a lost entry only
			// weakens retry protection.
			logger.Error("storing idempotent result failed", zap.Error(err))
		}
	}

	logger.Info("transition applied",
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
		zap.Int("rejection_count", res.Submission.RejectionCount),
	)
	return res, nil
}

// Get returns a submission the actor may read. Submissions outside the
// actor's visible states or state/UT are reported as NOT_FOUND.
func (s *Service) Get(ctx context.Context, actor *model.ActorContext, id string) (sub model.Submission, err error) {
	if err := requireActor(actor); err != nil {
		return model.Submission{}, err
	}
	ctx, span := observability.StartSpan(ctx, "workflow.get",
		observability.AttrSubmissionID.String(id),
		observability.AttrRole.String(string(actor.Role)),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	sub, err = s.load(ctx, actor, id)
	if err != nil {
		logStoreError(s.actorLogger(ctx, actor), "get", err)
	}
	return sub, err
}

func (s *Service) load(ctx context.Context, actor *model.ActorContext, id string) (model.Submission, error) {
	start := time.Now()
	sub, err := s.store.Get(ctx, id)
	s.metrics.RecordStoreOperation("get", err, time.Since(start))
	if err != nil {
		return model.Submission{}, err
	}
	if !s.policy.CanRead(actor.Role, sub.Status) || !inScope(actor, sub.StateUTID) {
		return model.Submission{}, model.NewNotFoundError("submission " + id + " not found")
	}
	return sub, nil
}

// ListOptions narrows a role-filtered list. States further restricts the
// role's visible states; it never widens them.
type ListOptions struct {
	States []model.WorkflowState
	Limit  int
	Offset int
}

// List returns the submissions actor may see, newest first. A role with no
// visible states gets an empty list without touching the store.
func (s *Service) List(ctx context.Context, actor *model.ActorContext, opts ListOptions) (subs []model.Submission, err error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ctx, span := observability.StartSpan(ctx, "workflow.list",
		observability.AttrRole.String(string(actor.Role)),
	)
	defer func() { observability.EndSpanWithError(span, err) }()
	logger := s.actorLogger(ctx, actor)

	states, ok := s.listStates(actor.Role, opts.States)
	if !ok {
		logger.Debug("list filter admits no states")
		s.metrics.RecordListResult(0)
		span.SetAttributes(observability.AttrResultCount.Int(0))
		return []model.Submission{}, nil
	}

	filters := SubmissionFilters{
		States: states,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	if scopedToStateUT(actor) {
		filters.StateUTID = actor.StateUTID
	}

	start := time.Now()
	subs, err = s.store.List(ctx, filters)
	s.metrics.RecordStoreOperation("list", err, time.Since(start))
	if err != nil {
		logStoreError(logger, "list", err)
		return nil, err
	}
	if subs == nil {
		subs = []model.Submission{}
	}

	s.metrics.RecordListResult(len(subs))
	span.SetAttributes(observability.AttrResultCount.Int(len(subs)))
	logger.Debug("listed submissions",
		zap.Int("count", len(subs)),
		zap.Int("state_filter", len(states)),
	)
	return subs, nil
}

// listStates intersects the role filter with the requested states. A nil
// result with ok true means no state restriction.
func (s *Service) listStates(role model.Role, requested []model.WorkflowState) ([]model.WorkflowState, bool) {
	f := s.policy.Filter(role)
	if f.Unrestricted {
		return requested, true
	}
	if len(requested) == 0 {
		return f.States, len(f.States) > 0
	}
	var out []model.WorkflowState
	for _, st := range requested {
		if f.Matches(st) {
			out = append(out, st)
		}
	}
	return out, len(out) > 0
}

// Description is everything a viewer needs to render a submission's status.
type Description struct {
	Status           status.Info    `json:"status"`
	Pills            []status.Pill  `json:"pills"`
	WaitingMessage   string         `json:"waiting_message,omitempty"`
	AwaitingRole     model.Role     `json:"awaiting_role,omitempty"`
	AvailableActions []model.Action `json:"available_actions"`
}

// Describe renders sub's status for a viewer with role.
func (s *Service) Describe(sub model.Submission, role model.Role) Description {
	awaiting, _ := status.AwaitingRole(sub.Status)
	actions := s.engine.AvailableActions(sub.Status, role)
	if actions == nil {
		actions = []model.Action{}
	}
	return Description{
		Status:           status.GetStatusInfo(sub.Status),
		Pills:            status.GetStatusPills(sub.Status, role),
		WaitingMessage:   status.GetWaitingMessage(sub.Status, role),
		AwaitingRole:     awaiting,
		AvailableActions: actions,
	}
}

func (s *Service) actorLogger(ctx context.Context, actor *model.ActorContext) *zap.Logger {
	return observability.ActorLogger(model.WithActor(ctx, actor), s.logger)
}

// requireActor checks the caller is identified and that state-scoped roles
// carry their state/UT. Role validity is left to the access policy and the
// transition table.
func requireActor(actor *model.ActorContext) error {
	if actor == nil || actor.UserID == "" {
		return model.NewBadRequestError("an identified actor is required")
	}
	if scopedToStateUT(actor) && actor.StateUTID == "" {
		return model.NewBadRequestError(string(actor.Role) + " requires a state/UT id")
	}
	return nil
}

// scopedToStateUT reports whether the actor only sees their own state/UT.
func scopedToStateUT(actor *model.ActorContext) bool {
	return actor.Role == model.RoleNodalOfficer || actor.Role == model.RoleStateApprover
}

func inScope(actor *model.ActorContext, stateUT string) bool {
	return !scopedToStateUT(actor) || actor.StateUTID == stateUT
}

func errorOutcome(err error) string {
	if code := model.ErrorCode(err); code != "" {
		return code
	}
	return model.ErrInternalError
}

// logStoreError logs infrastructure failures at error level and typed
// refusals (NOT_FOUND, CONFLICT) at warn.
func logStoreError(logger *zap.Logger, op string, err error) {
	if model.ErrorCode(err) != "" {
		logger.Warn("store refused operation", zap.String("operation", op), zap.Error(err))
		return
	}
	logger.Error("store operation failed", zap.String("operation", op), zap.Error(err))
}
