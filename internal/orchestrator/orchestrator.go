// Package orchestrator is the entry point: it takes raw text and an actor,
// classifies, extracts, compiles and runs the resulting flow.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/flow"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/guard"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/intent"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/metrics"
	"github.com/Ayejay3194/Auth-spine-sub014/internal/spine"
)

var tracer = otel.Tracer("github.com/Ayejay3194/Auth-spine-sub014/internal/orchestrator")

const unrecognizedMessage = "Sorry, I didn't understand that."

// ToolCatalog reports which tools exist. *tools.Registry satisfies it.
type ToolCatalog interface {
	Has(name string) bool
}

// RunRecorder keeps the history of handled requests. *store.RunStore satisfies it.
type RunRecorder interface {
	RecordRun(ctx context.Context, run domain.RunRecord) error
}

// Deps are the collaborators of an Orchestrator. Guard, Runs and Metrics are optional.
type Deps struct {
	Spines  []spine.Spine
	Tools   ToolCatalog
	Flow    *flow.Engine
	Guard   *guard.Guard
	Runs    RunRecorder
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	TopN    int
}

// Orchestrator wires the router, the spines and the flow engine together.
type Orchestrator struct {
	router  *intent.Router
	spines  map[string]spine.Spine
	help    *spine.Help
	tools   ToolCatalog
	flow    *flow.Engine
	guard   *guard.Guard
	runs    RunRecorder
	metrics *metrics.Metrics
	logger  *zap.Logger
	clock   func() time.Time
	newID   func() string
}

// New registers every spine and refuses to start when a spine declares a
// tool the catalog does not have.
func New(d Deps) (*Orchestrator, error) {
	if d.Flow == nil || d.Tools == nil {
		return nil, domain.NewEngineError(domain.ErrConfigInvalid.Code, "orchestrator needs a flow engine and a tool catalog")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	o := &Orchestrator{
		router:  intent.NewRouter(d.TopN),
		spines:  make(map[string]spine.Spine, len(d.Spines)),
		tools:   d.Tools,
		flow:    d.Flow,
		guard:   d.Guard,
		runs:    d.Runs,
		metrics: d.Metrics,
		logger:  d.Logger.Named("orchestrator"),
		clock:   time.Now,
		newID:   uuid.NewString,
	}

	var missing []string
	for _, s := range d.Spines {
		if err := o.router.Register(s); err != nil {
			return nil, err
		}
		o.spines[s.Name()] = s
		if h, ok := s.(*spine.Help); ok {
			o.help = h
		}
		for _, name := range s.Tools() {
			if !d.Tools.Has(name) {
				missing = append(missing, s.Name()+":"+name)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, domain.NewEngineError(domain.ErrToolNotFound.Code,
			"declared tools not registered: "+strings.Join(missing, ", "))
	}
	return o, nil
}

// Detect classifies text without side effects.
func (o *Orchestrator) Detect(text string, actor domain.ActorContext) ([]domain.Intent, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return o.router.Detect(text, actor), nil
}

// Handle runs one request end to end. Classification misses, missing fields,
// denials, pending confirmations and tool failures all come back in
// Result.Final; the error is reserved for an invalid actor and for hard
// failures such as a broken audit chain.
func (o *Orchestrator) Handle(ctx context.Context, text string, actor domain.ActorContext, confirmToken string) (domain.Result, error) {
	start := o.clock()
	ctx, span := tracer.Start(ctx, "orchestrator.Handle", trace.WithAttributes(
		attribute.String("tenant_id", actor.TenantID),
		attribute.String("channel", string(actor.Channel)),
	))
	defer span.End()

	if err := actor.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.Result{}, err
	}
	if actor.NowISO == "" {
		actor.NowISO = start.UTC().Format(time.RFC3339)
	}

	res := domain.Result{RunID: o.newID(), Steps: []domain.FlowStep{}}

	if err := o.guard.Allow(ctx, actor); err != nil {
		msg := err.Error()
		var ee *domain.EngineError
		if errors.As(err, &ee) {
			msg = ee.Message
		}
		res.Final = domain.Final{OK: false, Status: domain.RunRateLimited, Message: msg}
		o.finish(ctx, actor, res, start)
		return res, nil
	}

	in, ok := o.router.Top(text, actor)
	if !ok {
		if o.metrics != nil {
			o.metrics.Intent("", "")
		}
		msg := o.unrecognized(actor.Role)
		res.Steps = []domain.FlowStep{domain.Respond(msg)}
		res.Final = domain.Final{OK: false, Status: domain.RunUnrecognized, Message: msg}
		o.finish(ctx, actor, res, start)
		return res, nil
	}
	res.Intent = &in
	span.SetAttributes(attribute.String("intent", in.Domain+"."+in.Name))
	if o.metrics != nil {
		o.metrics.Intent(in.Domain, in.Name)
	}

	s := o.spines[in.Domain]
	ex := s.Extract(in, text, actor)
	steps := o.available(spine.Compile(s, in, ex, actor))

	o.logger.Debug("compiled flow",
		zap.String("run_id", res.RunID),
		zap.String("tenant", actor.TenantID),
		zap.String("intent", in.Domain+"."+in.Name),
		zap.Strings("missing", ex.Missing),
		zap.Int("steps", len(steps)))

	out, err := o.flow.Run(ctx, actor, steps, confirmToken)
	res.Steps = out.Steps
	res.Final = out.Final
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("flow run failed",
			zap.String("run_id", res.RunID),
			zap.String("tenant", actor.TenantID),
			zap.String("intent", in.Domain+"."+in.Name),
			zap.Error(err))
		return res, fmt.Errorf("run %s: %w", res.RunID, err)
	}

	o.finish(ctx, actor, res, start)
	return res, nil
}

// available replaces a plan referencing an unregistered tool with a Respond.
func (o *Orchestrator) available(steps []domain.FlowStep) []domain.FlowStep {
	for _, st := range steps {
		if st.Kind == domain.StepExecute && st.Execute != nil && !o.tools.Has(st.Execute.Tool) {
			return []domain.FlowStep{domain.Respond(fmt.Sprintf("%s is not available right now.", st.Execute.Tool))}
		}
	}
	return steps
}

func (o *Orchestrator) unrecognized(role domain.Role) string {
	if o.help == nil {
		return unrecognizedMessage
	}
	return unrecognizedMessage + " " + o.help.Describe(role)
}

func (o *Orchestrator) finish(ctx context.Context, actor domain.ActorContext, res domain.Result, start time.Time) {
	if o.metrics != nil {
		o.metrics.FlowRun(res.Final.Status, o.clock().Sub(start))
	}
	o.logger.Info("request handled",
		zap.String("run_id", res.RunID),
		zap.String("tenant", actor.TenantID),
		zap.String("user", actor.UserID),
		zap.String("status", string(res.Final.Status)),
		zap.Error(res.Final.Status.Err()))

	if o.runs == nil {
		return
	}
	run := domain.RunRecord{
		RunID:     res.RunID,
		TenantID:  actor.TenantID,
		UserID:    actor.UserID,
		Status:    res.Final.Status,
		OK:        res.Final.OK,
		Message:   res.Final.Message,
		CreatedAt: start.Unix(),
	}
	if res.Intent != nil {
		run.Intent = res.Intent.Domain + "." + res.Intent.Name
	}
	if err := o.runs.RecordRun(ctx, run); err != nil {
		o.logger.Warn("record run failed", zap.String("run_id", res.RunID), zap.Error(err))
	}
}
