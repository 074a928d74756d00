// Package httphandler exposes the record services over HTTP.
package httphandler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/claimservice/internal/application/crud"
	"github.com/lllypuk/claimservice/internal/domain/entity"
	"github.com/lllypuk/claimservice/internal/domain/errs"
	"github.com/lllypuk/claimservice/internal/infrastructure/httpserver"
)

// RecordService is the record service as seen by the handler.
// Declared on the consumer side per project guidelines.
type RecordService interface {
	Schema() *entity.Schema
	Create(ctx context.Context, payload *entity.Patch) (*entity.Record, error)
	DeleteByID(ctx context.Context, id string) error
	List(ctx context.Context, args crud.FindManyArgs) ([]*entity.Record, error)
	Count(ctx context.Context, where crud.Where) (int64, error)
	GetByID(ctx context.Context, id string) (*entity.Record, error)
	Update(ctx context.Context, id string, patch *entity.Patch) (*entity.Record, error)
	GetRelatedSingle(ctx context.Context, id, relation string) (*entity.Record, error)
	ListRelated(ctx context.Context, id, relation string, args crud.FindManyArgs) ([]*entity.Record, error)
	Connect(ctx context.Context, id, relation string, childIDs []string) error
	Disconnect(ctx context.Context, id, relation string, childIDs []string) error
	ReplaceAll(ctx context.Context, id, relation string, childIDs []string) error
}

// MetadataResponse is the body of the meta endpoint.
type MetadataResponse struct {
	Count int64 `json:"count"`
}

// EntityHandler serves one entity's routes.
type EntityHandler struct {
	service RecordService
	schema  *entity.Schema
	catalog *entity.Catalog
}

// NewEntityHandler creates a handler for service. The catalog resolves the
// schemas of related records.
func NewEntityHandler(service RecordService, catalog *entity.Catalog) *EntityHandler {
	return &EntityHandler{
		service: service,
		schema:  service.Schema(),
		catalog: catalog,
	}
}

// RegisterRoutes registers the entity's routes under /<path>. The meta and
// single relation reads are public; everything else is protected.
func (h *EntityHandler) RegisterRoutes(r *httpserver.Router) {
	base := "/" + h.schema.Path
	item := base + "/:id"

	r.Public().POST(base+"/meta", h.Meta)

	r.Protected().POST(base, h.Create)
	r.Protected().GET(base, h.List)
	r.Protected().GET(item, h.Get)
	r.Protected().PATCH(item, h.Update)
	r.Protected().DELETE(item, h.Delete)

	for _, rel := range h.schema.Relations {
		path := item + "/" + rel.Name
		if rel.Cardinality == entity.One {
			r.Public().GET(path, h.relatedSingle(rel))
			continue
		}
		r.Protected().GET(path, h.listRelated(rel))
		r.Protected().POST(path, h.relationWrite(h.service.Connect, rel))
		r.Protected().DELETE(path, h.relationWrite(h.service.Disconnect, rel))
		r.Protected().PATCH(path, h.relationWrite(h.service.ReplaceAll, rel))
	}
}

// Create handles POST /api/<path>.
func (h *EntityHandler) Create(c echo.Context) error {
	patch, err := h.decodePatch(c)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	rec, err := h.service.Create(c.Request().Context(), patch)
	if err != nil {
		return httpserver.RespondError(c, err)
	}
	return httpserver.RespondCreated(c, RecordJSON{Schema: h.schema, Record: rec})
}

// Delete handles DELETE /api/<path>/:id.
func (h *EntityHandler) Delete(c echo.Context) error {
	if err := h.service.DeleteByID(c.Request().Context(), c.Param("id")); err != nil {
		return httpserver.RespondError(c, err)
	}
	return httpserver.RespondNoContent(c)
}

// List handles GET /api/<path>.
func (h *EntityHandler) List(c echo.Context) error {
	args, err := ParseFindManyArgs(h.schema, c.QueryParams())
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	records, err := h.service.List(c.Request().Context(), args)
	if err != nil {
		return httpserver.RespondError(c, err)
	}
	return httpserver.RespondOK(c, EncodeRecords(h.schema, records))
}

// Meta handles POST /api/<path>/meta. The filter comes from the query string.
func (h *EntityHandler) Meta(c echo.Context) error {
	where, err := ParseWhere(h.schema, c.QueryParams())
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	n, err := h.service.Count(c.Request().Context(), where)
	if err != nil {
		return httpserver.RespondError(c, err)
	}
	return httpserver.RespondOK(c, MetadataResponse{Count: n})
}

// Get handles GET /api/<path>/:id.
func (h *EntityHandler) Get(c echo.Context) error {
	rec, err := h.service.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpserver.RespondError(c, err)
	}
	return httpserver.RespondOK(c, RecordJSON{Schema: h.schema, Record: rec})
}

// Update handles PATCH /api/<path>/:id.
func (h *EntityHandler) Update(c echo.Context) error {
	patch, err := h.decodePatch(c)
	if err != nil {
		return httpserver.RespondError(c, err)
	}

	rec, err := h.service.Update(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return httpserver.RespondError(c, err)
	}
	return httpserver.RespondOK(c, RecordJSON{Schema: h.schema, Record: rec})
}

func (h *EntityHandler) relatedSingle(rel entity.Relation) echo.HandlerFunc {
	target := h.catalog.Target(rel)
	return func(c echo.Context) error {
		rec, err := h.service.GetRelatedSingle(c.Request().Context(), c.Param("id"), rel.Name)
		if err != nil {
			return httpserver.RespondError(c, err)
		}
		return httpserver.RespondOK(c, RecordJSON{Schema: target, Record: rec})
	}
}

func (h *EntityHandler) listRelated(rel entity.Relation) echo.HandlerFunc {
	target := h.catalog.Target(rel)
	return func(c echo.Context) error {
		args, err := ParseFindManyArgs(target, c.QueryParams())
		if err != nil {
			return httpserver.RespondError(c, err)
		}

		records, err := h.service.ListRelated(c.Request().Context(), c.Param("id"), rel.Name, args)
		if err != nil {
			return httpserver.RespondError(c, err)
		}
		return httpserver.RespondOK(c, EncodeRecords(target, records))
	}
}

type relationOp func(ctx context.Context, id, relation string, childIDs []string) error

func (h *EntityHandler) relationWrite(op relationOp, rel entity.Relation) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := readBody(c)
		if err != nil {
			return httpserver.RespondError(c, err)
		}
		ids, err := DecodeIDs(body)
		if err != nil {
			return httpserver.RespondError(c, err)
		}

		if err = op(c.Request().Context(), c.Param("id"), rel.Name, ids); err != nil {
			return httpserver.RespondError(c, err)
		}
		return httpserver.RespondNoContent(c)
	}
}

func (h *EntityHandler) decodePatch(c echo.Context) (*entity.Patch, error) {
	body, err := readBody(c)
	if err != nil {
		return nil, err
	}
	return DecodePatch(h.schema, body)
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		// the body limit middleware aborts reads with a 413
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return nil, httpErr
		}
		return nil, fmt.Errorf("read request body: %w", errs.ErrInvalidInput)
	}
	return body, nil
}

// NewEntityHandlers creates one handler per service in the registry.
func NewEntityHandlers(registry *crud.Registry, catalog *entity.Catalog) []httpserver.RouteRegistrar {
	services := registry.Services()
	out := make([]httpserver.RouteRegistrar, 0, len(services))
	for _, svc := range services {
		out = append(out, NewEntityHandler(svc, catalog))
	}
	return out
}
