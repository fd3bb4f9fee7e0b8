package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Apurer/go-gin-crud-server/internal/crud"
	"github.com/Apurer/go-gin-crud-server/internal/platform/pagination"
)

const tracerName = "github.com/Apurer/go-gin-crud-server/internal/crud/adapters/observability/service"

// Service decorates a CRUD port with tracing, logging, and metrics.
type Service[T any, C crud.CreateInput[T], U crud.UpdateInput] struct {
	inner    crud.Service[T, C, U]
	resource string
	table    string
	tracer   trace.Tracer
	logger   *slog.Logger
	metrics  serviceMetrics
}

type options struct {
	tracer trace.Tracer
	logger *slog.Logger
	meter  metric.Meter
}

type Option func(*options)

// WithLogger injects a slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer injects a tracer implementation.
func WithTracer(tr trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tr
	}
}

// WithMeter injects the meter used to create service metrics instruments.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// New wires a decorator around the core service.
func New[T any, C crud.CreateInput[T], U crud.UpdateInput](inner crud.Service[T, C, U], opts ...Option) crud.Service[T, C, U] {
	cfg := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	resource := inner.Descriptor().Resource()
	s := &Service[T, C, U]{
		inner:    inner,
		resource: resource,
		table:    inner.Descriptor().Table(),
		tracer:   cfg.tracer,
		logger:   cfg.logger,
		metrics:  newServiceMetrics(cfg.meter, resource),
	}
	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer(tracerName)
	}
	if s.logger == nil {
		s.logger = defaultLogger()
	}
	s.logger = s.logger.With(slog.String("resource", inner.Descriptor().Tag()))
	return s
}

func (s *Service[T, C, U]) Descriptor() crud.Descriptor[T] {
	return s.inner.Descriptor()
}

// Get loads one live entity.
func (s *Service[T, C, U]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	ctx, span := s.startSpan(ctx, "Service.Get", s.idAttr(id))
	defer span.End()

	result, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to load "+s.resource, slog.String("id", id.String()))
	}
	s.logDebug(ctx, "loaded", slog.String("id", id.String()))
	return result, nil
}

// Create persists a new entity with instrumentation.
func (s *Service[T, C, U]) Create(ctx context.Context, input C) (*T, error) {
	ctx, span := s.startSpan(ctx, "Service.Create")
	defer span.End()

	s.logInfo(ctx, "creating")
	result, err := s.inner.Create(ctx, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to create "+s.resource)
	}
	id := crud.IDOf(result)
	span.SetAttributes(s.idAttr(id))
	s.metrics.recordCreated(ctx)
	s.logInfo(ctx, "created", slog.String("id", id.String()))
	return result, nil
}

// Update merges a partial payload onto an existing entity.
func (s *Service[T, C, U]) Update(ctx context.Context, id uuid.UUID, input U) (*T, error) {
	ctx, span := s.startSpan(ctx, "Service.Update", s.idAttr(id))
	defer span.End()

	s.logInfo(ctx, "updating", slog.String("id", id.String()), slog.Any("columns", input.Changes().Columns()))
	result, err := s.inner.Update(ctx, id, input)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to update "+s.resource, slog.String("id", id.String()))
	}
	s.metrics.recordUpdated(ctx)
	s.logInfo(ctx, "updated", slog.String("id", id.String()))
	return result, nil
}

// Remove soft- or hard-deletes an entity.
func (s *Service[T, C, U]) Remove(ctx context.Context, id uuid.UUID) (*T, error) {
	ctx, span := s.startSpan(ctx, "Service.Remove", s.idAttr(id))
	defer span.End()

	s.logInfo(ctx, "removing", slog.String("id", id.String()))
	result, err := s.inner.Remove(ctx, id)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to remove "+s.resource, slog.String("id", id.String()))
	}
	soft := s.inner.Descriptor().SoftDelete()
	s.metrics.recordRemoved(ctx, soft)
	s.logInfo(ctx, "removed", slog.String("id", id.String()), slog.Bool("soft", soft))
	return result, nil
}

// List returns every live entity.
func (s *Service[T, C, U]) List(ctx context.Context) ([]*T, error) {
	ctx, span := s.startSpan(ctx, "Service.List")
	defer span.End()

	result, err := s.inner.List(ctx)
	if err != nil {
		return nil, s.handleError(ctx, span, err, "failed to list "+s.resource)
	}
	span.SetAttributes(attribute.Int(s.resource+".result.count", len(result)))
	s.logDebug(ctx, "listed", slog.Int("count", len(result)))
	return result, nil
}

// Paginate returns one window of live entities.
func (s *Service[T, C, U]) Paginate(ctx context.Context, window pagination.Window) (pagination.Page[*T], error) {
	ctx, span := s.startSpan(ctx, "Service.Paginate",
		attribute.Int("page.limit", window.Limit),
		attribute.Int("page.offset", window.Offset),
	)
	defer span.End()

	page, err := s.inner.Paginate(ctx, window)
	if err != nil {
		return pagination.Page[*T]{}, s.handleError(ctx, span, err, "failed to paginate "+s.resource)
	}
	span.SetAttributes(
		attribute.Int(s.resource+".result.count", len(page.Items)),
		attribute.Int64(s.resource+".result.total", page.Total),
	)
	s.logDebug(ctx, "paginated", slog.Int("count", len(page.Items)), slog.Int64("total", page.Total))
	return page, nil
}

func (s *Service[T, C, U]) idAttr(id uuid.UUID) attribute.KeyValue {
	return attribute.String(s.resource+".id", id.String())
}

func (s *Service[T, C, U]) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("crud.resource", s.resource),
		attribute.String("db.sql.table", s.table),
	)
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service[T, C, U]) logInfo(ctx context.Context, msg string, attrs ...slog.Attr) {
	s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}

func (s *Service[T, C, U]) logDebug(ctx context.Context, msg string, attrs ...slog.Attr) {
	s.logger.LogAttrs(ctx, slog.LevelDebug, msg, attrs...)
}

// handleError records the failure. Missing rows and rejected input are logged
// at info level and leave the span status unset.
func (s *Service[T, C, U]) handleError(ctx context.Context, span trace.Span, err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	attrs = append(attrs, slog.String("error", err.Error()))
	var verr *crud.ValidationError
	if errors.Is(err, crud.ErrNotFound) || errors.As(err, &verr) {
		span.SetAttributes(attribute.String("crud.outcome", err.Error()))
		s.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
	return err
}

func defaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type serviceMetrics struct {
	created metric.Int64Counter
	updated metric.Int64Counter
	removed metric.Int64Counter
}

func newServiceMetrics(m metric.Meter, resource string) serviceMetrics {
	if m == nil {
		return serviceMetrics{}
	}
	created, _ := m.Int64Counter(resource+".service.created", metric.WithDescription("Number of "+resource+" created"))
	updated, _ := m.Int64Counter(resource+".service.updated", metric.WithDescription("Number of "+resource+" updated"))
	removed, _ := m.Int64Counter(resource+".service.removed", metric.WithDescription("Number of "+resource+" removed"))
	return serviceMetrics{created: created, updated: updated, removed: removed}
}

func (m serviceMetrics) recordCreated(ctx context.Context) {
	addCounter(ctx, m.created, 1)
}

func (m serviceMetrics) recordUpdated(ctx context.Context) {
	addCounter(ctx, m.updated, 1)
}

func (m serviceMetrics) recordRemoved(ctx context.Context, soft bool) {
	addCounter(ctx, m.removed, 1, attribute.Bool("soft", soft))
}

func addCounter(ctx context.Context, counter metric.Int64Counter, value int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attrs...))
}
