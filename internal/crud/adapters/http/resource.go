// Package crudhttp binds a crud.Service to a REST resource on gin.
package crudhttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Apurer/go-gin-crud-server/internal/crud"
	"github.com/Apurer/go-gin-crud-server/internal/platform/pagination"
	apierrors "github.com/Apurer/go-gin-crud-server/internal/shared/errors"
)

// PresentFunc converts a batch of entities into read views. Batching lets a
// presenter load related rows once per distinct key.
type PresentFunc[T, R any] func(ctx context.Context, items []*T) ([]R, error)

// Resource serves list, get, create, update and remove for one entity type.
type Resource[T any, C crud.CreateInput[T], U crud.UpdateInput, R any] struct {
	service   crud.Service[T, C, U]
	present   PresentFunc[T, R]
	prefix    string
	name      string
	responder *apierrors.Responder
	logger    *slog.Logger
}

type options struct {
	prefix string
	logger *slog.Logger
}

type Option func(*options)

// WithPrefix overrides the route prefix derived from the entity name.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithLogger injects the logger used for unexpected failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// NewResource binds service to a resource at /<plural lowercase entity name>.
func NewResource[T any, C crud.CreateInput[T], U crud.UpdateInput, R any](service crud.Service[T, C, U], present PresentFunc[T, R], opts ...Option) *Resource[T, C, U, R] {
	registerJSONFieldNames()
	desc := service.Descriptor()
	cfg := &options{prefix: "/" + desc.Resource()}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resource[T, C, U, R]{
		service:   service,
		present:   present,
		prefix:    cfg.prefix,
		name:      desc.Name(),
		responder: apierrors.NewResponder("", mapCrudError),
		logger:    logger.With(slog.String("resource", desc.Tag())),
	}
}

// Prefix is the path the resource is mounted on.
func (r *Resource[T, C, U, R]) Prefix() string {
	return r.prefix
}

// Register mounts the five operations under the resource prefix.
func (r *Resource[T, C, U, R]) Register(router gin.IRouter) {
	group := router.Group(r.prefix)
	for _, root := range []string{"", "/"} {
		group.GET(root, r.list)
		group.POST(root, r.create)
	}
	group.GET("/:id", r.get)
	group.PUT("/:id", r.update)
	group.DELETE("/:id", r.remove)
}

// Get /<resource>?limit=&offset=
func (r *Resource[T, C, U, R]) list(c *gin.Context) {
	window, err := windowFromQuery(c)
	if err != nil {
		r.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	page, err := r.service.Paginate(ctx, window)
	if err != nil {
		r.fail(c, err)
		return
	}
	views, err := pagination.Map(page, func(items []*T) ([]R, error) {
		return r.present(ctx, items)
	})
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// Get /<resource>/:id
func (r *Resource[T, C, U, R]) get(c *gin.Context) {
	id, ok := r.parseID(c)
	if !ok {
		return
	}
	rec, err := r.service.Get(c.Request.Context(), id)
	if err != nil {
		r.fail(c, err)
		return
	}
	r.respondOne(c, http.StatusOK, rec)
}

// Post /<resource>
func (r *Resource[T, C, U, R]) create(c *gin.Context) {
	var input C
	if err := bindInput(c, &input); err != nil {
		r.fail(c, err)
		return
	}
	rec, err := r.service.Create(c.Request.Context(), input)
	if err != nil {
		r.fail(c, err)
		return
	}
	r.respondOne(c, http.StatusCreated, rec)
}

// Put /<resource>/:id
func (r *Resource[T, C, U, R]) update(c *gin.Context) {
	id, ok := r.parseID(c)
	if !ok {
		return
	}
	var input U
	if err := bindInput(c, &input); err != nil {
		r.fail(c, err)
		return
	}
	rec, err := r.service.Update(c.Request.Context(), id, input)
	if err != nil {
		r.fail(c, err)
		return
	}
	r.respondOne(c, http.StatusOK, rec)
}

// Delete /<resource>/:id
func (r *Resource[T, C, U, R]) remove(c *gin.Context) {
	id, ok := r.parseID(c)
	if !ok {
		return
	}
	if _, err := r.service.Remove(c.Request.Context(), id); err != nil {
		r.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Resource[T, C, U, R]) respondOne(c *gin.Context, status int, rec *T) {
	views, err := r.present(c.Request.Context(), []*T{rec})
	if err != nil {
		r.fail(c, err)
		return
	}
	if len(views) != 1 {
		r.fail(c, errors.New("presenter returned an unexpected number of views"))
		return
	}
	c.JSON(status, views[0])
}

// parseID treats a malformed identifier as a missing row.
func (r *Resource[T, C, U, R]) parseID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		r.responder.NotFound(c, r.name, raw)
		return uuid.Nil, false
	}
	return id, true
}

func (r *Resource[T, C, U, R]) fail(c *gin.Context, err error) {
	if errors.Is(err, crud.ErrNotFound) {
		r.responder.NotFound(c, r.name, c.Param("id"))
		return
	}
	if _, ok := mapCrudError(err); !ok {
		r.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	r.responder.RespondError(c, err)
}

func windowFromQuery(c *gin.Context) (pagination.Window, error) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return pagination.Window{}, err
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		return pagination.Window{}, err
	}
	return pagination.NewWindow(limit, offset)
}

func intQuery(c *gin.Context, key string) (*int, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, crud.NewValidationError(key, "must be an integer")
	}
	return &v, nil
}
