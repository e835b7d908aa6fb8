package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/readiness/internal/comment"
	"github.com/pitabwire/readiness/internal/observability"
	"github.com/pitabwire/readiness/internal/transform"
	"github.com/pitabwire/readiness/internal/workflow"
	"github.com/pitabwire/readiness/model"
)

type command struct {
	summary    string
	needsStore bool
	run        func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"transform":  {summary: "convert a flat form (JSON) into a submission", run: runTransform},
	"flatten":    {summary: "convert a submission (JSON) back into flat form fields", run: runFlatten},
	"validate":   {summary: "check the structural invariants of a submission", run: runValidate},
	"comment":    {summary: "validate comment text against a preset", run: runComment},
	"status":     {summary: "describe a workflow state for a viewer role", run: runStatus},
	"create":     {summary: "create a submission from a flat form", needsStore: true, run: runCreate},
	"transition": {summary: "apply a workflow action to a stored submission", needsStore: true, run: runTransition},
	"get":        {summary: "show a stored submission the actor may read", needsStore: true, run: runGet},
	"list":       {summary: "list stored submissions visible to the actor", needsStore: true, run: runList},
	"health":     {summary: "check store and idempotency dependencies", needsStore: true, run: runHealth},
}

func runTransform(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("transform", a)
	in := fs.String("in", "-", "form JSON file, - for stdin")
	user := fs.String("user", "", "submitting user id")
	stateUT := fs.String("state-ut", "", "state/UT id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var form map[string]any
	if err := readJSON(*in, &form); err != nil {
		return err
	}
	outcome, err := a.transformer.ToSubmission(form, *user, *stateUT, timeNow())
	if err != nil {
		return err
	}
	a.metrics.RecordTransform("ok", len(outcome.Dropped))
	return a.print(struct {
		Submission model.Submission           `json:"submission"`
		Dropped    []string                   `json:"dropped_fields,omitempty"`
		Validation transform.ValidationResult `json:"validation"`
	}{outcome.Submission, outcome.Dropped, transform.Validate(outcome.Submission)})
}

func runFlatten(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("flatten", a)
	in := fs.String("in", "-", "submission JSON file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var sub model.Submission
	if err := readJSON(*in, &sub); err != nil {
		return err
	}
	return a.print(a.transformer.ToFormFields(sub))
}

func runValidate(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("validate", a)
	in := fs.String("in", "-", "submission JSON file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var sub model.Submission
	if err := readJSON(*in, &sub); err != nil {
		return err
	}
	res := transform.Validate(sub)
	if err := a.print(res); err != nil {
		return err
	}
	return res.Err()
}

func runComment(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("comment", a)
	preset := fs.String("preset", string(comment.PresetGeneral), "rejection, approval or general")
	text := fs.String("text", "", "comment text")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := comment.ValidatePreset(*text, comment.Preset(*preset))
	if err != nil {
		return model.NewBadRequestError(err.Error())
	}
	if err := a.print(res); err != nil {
		return err
	}
	if !res.IsValid {
		details := make([]model.FieldError, len(res.Errors))
		for i, msg := range res.Errors {
			details[i] = model.FieldError{Field: "comment", Code: model.ErrInvalidComment, Message: msg}
		}
		return model.NewValidationError(details)
	}
	return nil
}

func runStatus(_ context.Context, a *app, args []string) error {
	fs := newFlagSet("status", a)
	state := fs.String("state", "", "workflow state")
	role := fs.String("role", "", "viewer role")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := model.ParseState(*state)
	if err != nil {
		return model.NewBadRequestError(err.Error())
	}
	return a.print(a.service.Describe(model.Submission{Status: st}, model.Role(*role)))
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("create", a)
	var af actorFlags
	af.register(fs)
	in := fs.String("in", "-", "form JSON file, - for stdin")
	draft := fs.Bool("draft", false, "create in DRAFT instead of SUBMITTED_TO_STATE")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var form map[string]any
	if err := readJSON(*in, &form); err != nil {
		return err
	}
	ctx, actor := af.actor(ctx)

	create := a.service.Create
	if *draft {
		create = a.service.CreateDraft
	}
	sub, err := create(ctx, actor, form)
	if err != nil {
		return err
	}
	return a.print(sub)
}

func runTransition(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("transition", a)
	var af actorFlags
	af.register(fs)
	id := fs.String("id", "", "submission id")
	action := fs.String("action", "", "workflow action")
	text := fs.String("comment", "", "comment text")
	key := fs.String("idempotency-key", "", "de-duplicate retries carrying the same key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	act, err := model.ParseAction(*action)
	if err != nil {
		return model.NewBadRequestError(err.Error())
	}
	ctx, actor := af.actor(ctx)

	res, err := a.service.Transition(ctx, actor, *id, workflow.TransitionRequest{
		Action:  act,
		Comment: *text,
	}, *key)
	if err != nil {
		return err
	}
	return a.print(res)
}

func runGet(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("get", a)
	var af actorFlags
	af.register(fs)
	id := fs.String("id", "", "submission id")
	describe := fs.Bool("describe", false, "include the status description for the actor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, actor := af.actor(ctx)

	sub, err := a.service.Get(ctx, actor, *id)
	if err != nil {
		return err
	}
	if !*describe {
		return a.print(sub)
	}
	return a.print(struct {
		Submission  model.Submission     `json:"submission"`
		Description workflow.Description `json:"description"`
	}{sub, a.service.Describe(sub, actor.Role)})
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("list", a)
	var af actorFlags
	af.register(fs)
	states := fs.String("states", "", "comma separated states to narrow the role filter")
	limit := fs.Int("limit", 0, "maximum results, 0 for no limit")
	offset := fs.Int("offset", 0, "results to skip")
	summary := fs.Bool("summary", false, "print summaries instead of full submissions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := workflow.ListOptions{Limit: *limit, Offset: *offset}
	for _, raw := range splitList(*states) {
		opts.States = append(opts.States, model.WorkflowState(raw))
	}
	ctx, actor := af.actor(ctx)

	subs, err := a.service.List(ctx, actor, opts)
	if err != nil {
		return err
	}
	if !*summary {
		return a.print(subs)
	}
	out := make([]model.SubmissionSummary, len(subs))
	for i, sub := range subs {
		out[i] = sub.Summary()
	}
	return a.print(out)
}

func runHealth(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("health", a)
	if err := fs.Parse(args); err != nil {
		return err
	}

	checks := map[string]observability.HealthChecker{
		"submission_store": observability.HealthCheckFunc(a.store.Ping),
		"catalogue": observability.HealthCheckFunc(func(context.Context) error {
			if a.catalogue.Len() == 0 {
				return errors.New("catalogue is empty")
			}
			return nil
		}),
	}
	if p, ok := a.idempotency.(interface{ Ping(context.Context) error }); ok {
		checks["idempotency_store"] = observability.HealthCheckFunc(p.Ping)
	}

	report := observability.CheckReadiness(ctx, checks, a.metrics)
	if err := a.print(report); err != nil {
		return err
	}
	if !report.Ready() {
		return errNotReady
	}
	return nil
}

var errNotReady = errors.New("not ready")

var timeNow = time.Now

// actorFlags identify the caller of a store-backed command.
type actorFlags struct {
	user, role, stateUT, correlationID string
}

func (f *actorFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.user, "user", "", "acting user id")
	fs.StringVar(&f.role, "role", "", "acting role")
	fs.StringVar(&f.stateUT, "state-ut", "", "acting user's state/UT id")
	fs.StringVar(&f.correlationID, "correlation-id", "", "correlation id for logs (generated when empty)")
}

// actor builds the ActorContext and attaches it to ctx. The role is passed
// through as given so the access policy decides how unknown roles behave.
func (f *actorFlags) actor(ctx context.Context) (context.Context, *model.ActorContext) {
	correlationID := f.correlationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	actor := &model.ActorContext{
		UserID:        f.user,
		Role:          model.Role(strings.ToUpper(strings.TrimSpace(f.role))),
		StateUTID:     f.stateUT,
		CorrelationID: correlationID,
	}
	return model.WithActor(ctx, actor), actor
}

func newFlagSet(name string, a *app) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError writes typed failures as their JSON envelope and anything else
// as a plain message.
func (a *app) printError(ctx context.Context, err error) {
	if errors.Is(err, flag.ErrHelp) || errors.Is(err, errNotReady) {
		return
	}
	var env *model.ErrorEnvelope
	if !errors.As(err, &env) {
		a.logger.Error("command failed", zap.Error(err))
		fmt.Fprintf(a.stderr, "error: %v\n", err)
		return
	}
	out := *env
	out.TraceID = observability.TraceIDFromContext(ctx)
	enc := json.NewEncoder(a.stderr)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func readJSON(path string, v any) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return model.NewBadRequestError(fmt.Sprintf("decode %s: %v", path, err))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
