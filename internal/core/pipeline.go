package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"resourcechassis/pkg/domain"
)

// Operation names one of the five pipeline entry points.
type Operation string

// Pipeline operations.
const (
	OpCreate Operation = "create"
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Stage is a state of the request lifecycle.
type Stage string

// Request lifecycle stages. StageError absorbs every failure.
const (
	StageAuthenticating      Stage = "authenticating"
	StagePopulatingOwnership Stage = "populating_ownership"
	StageValidating          Stage = "validating"
	StagePersisting          Stage = "persisting"
	StageNotifying           Stage = "notifying"
	StageResponding          Stage = "responding"
	StageError               Stage = "error"
)

// Response messages.
const (
	MsgSuccess       = "Request was successful"
	MsgFieldErrors   = "Sorry validation errors occurred"
	MsgInvalidPage   = "Invalid pagination parameters"
	MsgInvalidOrder  = "Invalid ordering column"
	MsgInternalError = "An internal error has occurred"
)

// RouteAuth lists the requirements of one route. A zero value authenticates
// without scope or permission checks.
type RouteAuth struct {
	Scope       *domain.ScopeRequirement
	Permissions domain.PermissionRequirement
}

// Routes carries the per-operation requirements of a resource.
type Routes struct {
	Create RouteAuth
	List   RouteAuth
	Get    RouteAuth
	Update RouteAuth
	Delete RouteAuth
}

func (r Routes) auth(op Operation) RouteAuth {
	switch op {
	case OpCreate:
		return r.Create
	case OpList:
		return r.List
	case OpGet:
		return r.Get
	case OpUpdate:
		return r.Update
	}
	return r.Delete
}

// PipelineConfig holds the collaborators of one resource. Gate, Notifier,
// Logger, Metrics and Tracer are optional; without a Gate every caller acts
// anonymously.
type PipelineConfig struct {
	Entity   domain.EntityType
	Registry domain.DescriptorSource
	Store    domain.Store
	Gate     *Gate
	Routes   Routes
	Notifier domain.Notifier
	Logger   *zap.Logger
	Metrics  MetricsRecorder
	Tracer   Tracer
}

// Response is the status and JSON body produced by an operation. A nil Body
// means no content.
type Response struct {
	Status int
	Body   any
}

// MessageBody carries a message and optional payload.
type MessageBody struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorBody carries a status and the error details of a failed request.
type ErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Errors  any    `json:"errors"`
	Data    any    `json:"data,omitempty"`
}

// DetailBody is the single-error detail object.
type DetailBody struct {
	Detail string `json:"detail"`
}

// ListQuery holds the raw listing parameters. Empty strings select defaults.
type ListQuery struct {
	Page     string
	PageSize string
	Ordering string
}

// Pipeline runs the request lifecycle of one registered resource.
type Pipeline struct {
	desc      domain.Descriptor
	gate      *Gate
	routes    Routes
	validator *Validator
	service   *RecordService
	dispatch  dispatcher
	logger    *zap.Logger
	metrics   MetricsRecorder
	tracer    Tracer
	now       func() time.Time
}

// NewPipeline resolves the configured entity and wires its collaborators.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Registry == nil {
		return nil, errors.New("pipeline registry required")
	}
	if cfg.Store == nil {
		return nil, errors.New("pipeline store required")
	}
	desc, ok := cfg.Registry.Descriptor(cfg.Entity)
	if !ok {
		return nil, fmt.Errorf("entity %q not registered", cfg.Entity)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("entity", string(desc.Entity)))
	var metrics MetricsRecorder = noopMetrics{}
	if cfg.Metrics != nil {
		metrics = cfg.Metrics
	}
	var tracer Tracer = noopTracer{}
	if cfg.Tracer != nil {
		tracer = cfg.Tracer
	}
	return &Pipeline{
		desc:      desc,
		gate:      cfg.Gate,
		routes:    cfg.Routes,
		validator: NewValidator(cfg.Store, cfg.Registry),
		service:   NewRecordService(desc, cfg.Store),
		dispatch:  dispatcher{notifier: cfg.Notifier, logger: logger, now: time.Now},
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		now:       time.Now,
	}, nil
}

// Descriptor returns the resource descriptor.
func (p *Pipeline) Descriptor() domain.Descriptor { return p.desc }

// request tracks one invocation through its stages.
type request struct {
	ctx     context.Context
	op      Operation
	span    TraceSpan
	logger  *zap.Logger
	started time.Time
	actor   domain.Actor
}

func (p *Pipeline) begin(ctx context.Context, op Operation) *request {
	ctx, span := p.tracer.Start(ctx, p.desc.Entity, op)
	return &request{
		ctx:     ctx,
		op:      op,
		span:    span,
		logger:  p.logger.With(zap.String("operation", string(op))),
		started: p.now(),
	}
}

func (r *request) enter(stage Stage) {
	r.span.Stage(stage)
	r.logger.Debug("pipeline stage", zap.String("stage", string(stage)))
}

func (p *Pipeline) finish(r *request, resp Response, err error) (Response, error) {
	status := resp.Status
	if err != nil {
		status = http.StatusInternalServerError
		r.enter(StageError)
		r.logger.Error("request failed", zap.Error(err))
	} else if status >= http.StatusBadRequest {
		r.enter(StageError)
	} else {
		r.enter(StageResponding)
	}
	took := p.now().Sub(r.started)
	r.span.End(status, err)
	p.metrics.Observe(r.ctx, p.desc.Entity, r.op, status, took)
	r.logger.Debug("request complete", zap.Int("status", status), zap.Duration("took", took))
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// authenticate runs the gate for the operation's route.
func (p *Pipeline) authenticate(r *request, credential string) (Response, bool) {
	r.enter(StageAuthenticating)
	if p.gate == nil {
		r.actor = domain.Anonymous
		return Response{}, true
	}
	auth := p.routes.auth(r.op)
	actor, err := p.gate.Authenticate(r.ctx, credential, auth.Scope, auth.Permissions)
	if err != nil {
		r.logger.Info("authorization failed", zap.String("code", domain.ErrorCode(err)), zap.Error(err))
		code := domain.ErrorCode(err)
		return Response{Status: domain.HTTPStatus(code), Body: MessageBody{Message: domain.ErrorMessage(err)}}, false
	}
	r.actor = actor
	r.logger = r.logger.With(zap.String("user_id", actor.ID))
	return Response{}, true
}

func (p *Pipeline) notice(r *request, description string, id any) domain.Notice {
	return domain.Notice{
		Description: description,
		Entity:      p.desc.Entity,
		RecordID:    id,
		Actor:       r.actor,
		At:          p.now().UTC(),
	}
}

func (p *Pipeline) notifyFailure(r *request, activity domain.Activity, id any, msg string) {
	r.enter(StageNotifying)
	p.dispatch.notify(r.ctx, activity, failed, p.notice(r, failureDescription(activity, p.desc.Name(), msg), id))
}

func (p *Pipeline) notifySuccess(r *request, activity domain.Activity, id any) {
	r.enter(StageNotifying)
	p.dispatch.notify(r.ctx, activity, succeeded, p.notice(r, successDescription(activity, p.desc.Name()), id))
}

// Create authenticates, populates ownership, validates and inserts payload.
func (p *Pipeline) Create(ctx context.Context, credential string, payload map[string]any) (Response, error) {
	r := p.begin(ctx, OpCreate)
	r.logger.Info("creating record", zap.String("record", p.desc.Name()))
	if resp, ok := p.authenticate(r, credential); !ok {
		return p.finish(r, resp, nil)
	}

	input := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		input[k] = v
	}
	if p.desc.OwnershipField != "" {
		// Ownership is never taken from the client.
		delete(input, p.desc.OwnershipField)
		if p.gate != nil {
			r.enter(StagePopulatingOwnership)
			if r.actor.ID != "" {
				input[p.desc.OwnershipField] = r.actor.ID
			}
		}
	}

	r.enter(StageValidating)
	record, fieldErrs := p.desc.Normalize(input, false)
	if len(fieldErrs) > 0 {
		p.notifyFailure(r, domain.ActivityCreate, nil, MsgFieldErrors)
		return p.finish(r, Response{Status: http.StatusBadRequest, Body: MessageBody{Message: MsgFieldErrors, Data: fieldErrs}}, nil)
	}
	if err := p.validator.Validate(r.ctx, p.desc, record, nil); err != nil {
		if resp, ok := p.rejectCreate(r, domain.ActivityCreate, nil, err); ok {
			return p.finish(r, resp, nil)
		}
		return p.finish(r, Response{}, err)
	}

	r.enter(StagePersisting)
	created, err := p.service.Create(r.ctx, record)
	if err != nil {
		if resp, ok := p.rejectCreate(r, domain.ActivityCreate, nil, err); ok {
			return p.finish(r, resp, nil)
		}
		return p.finish(r, Response{}, err)
	}
	id := created[p.desc.PrimaryKey]
	r.logger.Info("record created", zap.Any("record_id", id))
	p.notifySuccess(r, domain.ActivityCreate, id)
	return p.finish(r, Response{Status: http.StatusCreated, Body: MessageBody{Message: MsgSuccess, Data: created}}, nil)
}

// rejectCreate maps classified create failures to responses. Unclassified errors
// are fatal and reported through the second return value.
func (p *Pipeline) rejectCreate(r *request, activity domain.Activity, id any, err error) (Response, bool) {
	code := domain.ErrorCode(err)
	switch code {
	case domain.EInvalid, domain.EConflict:
		msg := domain.ErrorMessage(err)
		r.logger.Debug("request rejected", zap.String("code", code), zap.String("reason", msg))
		p.notifyFailure(r, activity, id, msg)
		return Response{Status: domain.HTTPStatus(code), Body: MessageBody{Message: msg}}, true
	}
	return Response{}, false
}

// List returns a page of live records.
func (p *Pipeline) List(ctx context.Context, credential string, q ListQuery) (Response, error) {
	r := p.begin(ctx, OpList)
	r.logger.Info("listing records", zap.String("page", q.Page), zap.String("page_size", q.PageSize))
	if resp, ok := p.authenticate(r, credential); !ok {
		return p.finish(r, resp, nil)
	}
	page, ok := parsePage(q)
	if !ok {
		return p.finish(r, Response{Status: http.StatusBadRequest, Body: MessageBody{Message: MsgInvalidPage}}, nil)
	}
	order := domain.ParseOrdering(q.Ordering)
	if order != nil {
		if _, declared := p.desc.Field(order.Field); !declared {
			return p.finish(r, Response{Status: http.StatusBadRequest, Body: MessageBody{Message: MsgInvalidOrder}}, nil)
		}
	}
	res, err := p.service.List(r.ctx, order, page)
	if err != nil {
		return p.finish(r, Response{}, err)
	}
	return p.finish(r, Response{Status: http.StatusOK, Body: res}, nil)
}

func parsePage(q ListQuery) (domain.PageRequest, bool) {
	page := domain.PageRequest{Number: domain.DefaultPage, Size: domain.DefaultPageSize}
	if s := strings.TrimSpace(q.Page); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return page, false
		}
		page.Number = n
	}
	if s := strings.TrimSpace(q.PageSize); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return page, false
		}
		page.Size = min(n, domain.MaxPageSize)
	}
	return page, true
}

func notFoundDetail() Response {
	return Response{Status: http.StatusNotFound, Body: ErrorBody{Status: http.StatusNotFound, Errors: DetailBody{Detail: MsgRecordMissing}}}
}

// Get returns the live record identified by rawID.
func (p *Pipeline) Get(ctx context.Context, credential, rawID string) (Response, error) {
	r := p.begin(ctx, OpGet)
	r.logger.Info("fetching record", zap.String("record_id", rawID))
	if resp, ok := p.authenticate(r, credential); !ok {
		return p.finish(r, resp, nil)
	}
	id, ok := p.desc.NormalizeID(rawID)
	if !ok {
		return p.finish(r, notFoundDetail(), nil)
	}
	rec, err := p.service.Get(r.ctx, id)
	if domain.IsCode(err, domain.ENotFound) {
		r.logger.Info("record not found", zap.Any("record_id", id))
		return p.finish(r, notFoundDetail(), nil)
	}
	if err != nil {
		return p.finish(r, Response{}, err)
	}
	return p.finish(r, Response{Status: http.StatusOK, Body: rec}, nil)
}

// Update validates payload against the live record rawID and applies the
// supplied fields.
func (p *Pipeline) Update(ctx context.Context, credential, rawID string, payload map[string]any) (Response, error) {
	r := p.begin(ctx, OpUpdate)
	r.logger.Info("updating record", zap.String("record_id", rawID))
	if resp, ok := p.authenticate(r, credential); !ok {
		return p.finish(r, resp, nil)
	}
	id, ok := p.desc.NormalizeID(rawID)
	if !ok {
		p.notifyFailure(r, domain.ActivityUpdate, rawID, MsgRecordMissing)
		return p.finish(r, notFoundDetail(), nil)
	}

	r.enter(StageValidating)
	partial, fieldErrs := p.desc.Normalize(payload, true)
	if len(fieldErrs) > 0 {
		p.notifyFailure(r, domain.ActivityUpdate, id, MsgFieldErrors)
		return p.finish(r, Response{Status: http.StatusBadRequest, Body: ErrorBody{
			Status: http.StatusBadRequest, Message: MsgFieldErrors, Errors: []string{MsgFieldErrors}, Data: fieldErrs,
		}}, nil)
	}
	if err := p.validator.Validate(r.ctx, p.desc, partial, id); err != nil {
		return p.updateFailure(r, id, err)
	}

	r.enter(StagePersisting)
	updated, err := p.service.Update(r.ctx, partial, id)
	if err != nil {
		return p.updateFailure(r, id, err)
	}
	r.logger.Info("record updated", zap.Any("record_id", id))
	p.notifySuccess(r, domain.ActivityUpdate, id)
	return p.finish(r, Response{Status: http.StatusOK, Body: updated}, nil)
}

func (p *Pipeline) updateFailure(r *request, id any, err error) (Response, error) {
	code := domain.ErrorCode(err)
	msg := domain.ErrorMessage(err)
	switch code {
	case domain.ENotFound:
		p.notifyFailure(r, domain.ActivityUpdate, id, msg)
		return p.finish(r, Response{Status: http.StatusNotFound, Body: ErrorBody{Status: http.StatusNotFound, Errors: DetailBody{Detail: msg}}}, nil)
	case domain.EInvalid, domain.EConflict:
		p.notifyFailure(r, domain.ActivityUpdate, id, msg)
		status := domain.HTTPStatus(code)
		return p.finish(r, Response{Status: status, Body: ErrorBody{Status: status, Message: msg, Errors: []string{msg}}}, nil)
	}
	return p.finish(r, Response{}, err)
}

// Delete soft-deletes or removes the live record rawID.
func (p *Pipeline) Delete(ctx context.Context, credential, rawID string) (Response, error) {
	r := p.begin(ctx, OpDelete)
	r.logger.Info("deleting record", zap.String("record_id", rawID))
	if resp, ok := p.authenticate(r, credential); !ok {
		return p.finish(r, resp, nil)
	}
	notFound := Response{Status: http.StatusNotFound, Body: ErrorBody{Status: http.StatusNotFound, Errors: []string{MsgRecordMissing}}}
	id, ok := p.desc.NormalizeID(rawID)
	if !ok {
		p.notifyFailure(r, domain.ActivityDelete, rawID, MsgRecordMissing)
		return p.finish(r, notFound, nil)
	}

	r.enter(StagePersisting)
	err := p.service.Delete(r.ctx, id)
	switch code := domain.ErrorCode(err); code {
	case "":
	case domain.ENotFound:
		p.notifyFailure(r, domain.ActivityDelete, id, domain.ErrorMessage(err))
		return p.finish(r, notFound, nil)
	case domain.EConflict:
		msg := domain.ErrorMessage(err)
		p.notifyFailure(r, domain.ActivityDelete, id, msg)
		return p.finish(r, Response{Status: http.StatusConflict, Body: ErrorBody{Status: http.StatusConflict, Message: msg, Errors: []string{msg}}}, nil)
	default:
		return p.finish(r, Response{}, err)
	}
	r.logger.Info("record deleted", zap.Any("record_id", id))
	p.notifySuccess(r, domain.ActivityDelete, id)
	return p.finish(r, Response{Status: http.StatusNoContent}, nil)
}
