package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"dtindex/internal/config"
	apierrors "dtindex/internal/errors"
	"dtindex/internal/exporter"
	"dtindex/internal/middleware"
	"dtindex/internal/query"
	"dtindex/internal/schema"
	"dtindex/internal/services"
	api "dtindex/pkg/contracts/api/v1"
)

// IndexHandler serves dataset, entity, group and comparison queries.
type IndexHandler struct {
	service      IndexService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
	validation   *middleware.ValidationMiddleware
	params       *middleware.QueryParamValidator
	auditLogger  *slog.Logger
}

// NewIndexHandler creates a new index handler
func NewIndexHandler(service IndexService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *IndexHandler {
	return &IndexHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "index_handler")),
		errorHandler: errorHandler,
		validation:   middleware.NewValidationMiddleware(logger, errorHandler),
		params:       middleware.NewQueryParamValidator(logger, errorHandler),
		auditLogger:  logger.With(slog.String("component", "audit")),
	}
}

// Routes returns the index routes as a standalone router.
func (h *IndexHandler) Routes() chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes adds the index routes to r, which is mounted at /api.
func (h *IndexHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/dataset", h.GetDataset)
		r.Get("/dataset/schema", h.GetSchema)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuditLog(h.auditLogger))
			r.With(
				middleware.ContentTypeValidator("application/json"),
				h.validation.ValidateRequest,
			).Put("/dataset/schema", h.PutSchema)
			r.Post("/dataset/reload", h.Reload)
		})

		r.Get("/entities", h.ListEntities)
		r.Get("/entities/{query}", h.GetEntity)
		r.Get("/groups/{group}/average", h.GetGroupAverage)
		r.Get("/compare", h.Compare)
	})
}

func (h *IndexHandler) success(w http.ResponseWriter, r *http.Request, data interface{}) {
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   data,
	})
}

// window reads from and to. It reports false after writing an error.
func (h *IndexHandler) window(w http.ResponseWriter, r *http.Request) (api.WindowRequest, bool) {
	from, ok := h.params.ValidateInt(w, r, "from", 0)
	if !ok {
		return api.WindowRequest{}, false
	}
	to, ok := h.params.ValidateInt(w, r, "to", 0)
	if !ok {
		return api.WindowRequest{}, false
	}
	return api.WindowRequest{From: from, To: to}, true
}

// pathParam returns a decoded URL parameter. Chinese names arrive
// percent-encoded in the raw path.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(raw)
}

// GetDataset handles GET /api/dataset
func (h *IndexHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.success(w, r, overview)
}

// GetSchema handles GET /api/dataset/schema. Unresolved roles are a
// normal answer here; only a dataset that cannot be read is an error.
func (h *IndexHandler) GetSchema(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Schema(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.success(w, r, status)
}

// PutSchema handles PUT /api/dataset/schema
func (h *IndexHandler) PutSchema(w http.ResponseWriter, r *http.Request) {
	var req api.SchemaOverrideRequest
	if err := h.validation.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	status, err := h.service.OverrideSchema(r.Context(), schema.Roles{
		Identifier: strings.TrimSpace(req.Identifier),
		Period:     strings.TrimSpace(req.Period),
		Metric:     strings.TrimSpace(req.Metric),
		Group:      strings.TrimSpace(req.Group),
		GroupName:  strings.TrimSpace(req.GroupName),
		Name:       strings.TrimSpace(req.Name),
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "column mapping replaced",
		slog.String("identifier", req.Identifier),
		slog.String("period", req.Period),
		slog.String("metric", req.Metric),
	)
	h.success(w, r, status)
}

// Reload handles POST /api/dataset/reload
func (h *IndexHandler) Reload(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Reload(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.success(w, r, overview)
}

// ListEntities handles GET /api/entities
func (h *IndexHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	req := api.EntityListRequest{Group: strings.TrimSpace(r.URL.Query().Get("group"))}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	entities, err := h.service.ListEntities(r.Context(), req.Group)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   entities,
		"count":  len(entities),
	})
}

// GetEntity handles GET /api/entities/{query}
func (h *IndexHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	win, ok := h.window(w, r)
	if !ok {
		return
	}
	period, ok := h.params.ValidateInt(w, r, "period", 0)
	if !ok {
		return
	}

	req := api.EntityQueryRequest{
		WindowRequest: win,
		Query:         pathParam(r, "query"),
		By:            r.URL.Query().Get("by"),
		Period:        period,
	}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	profile, err := h.service.Profile(r.Context(), services.ProfileRequest{
		Query:  query.Query{By: query.LookupKind(req.By), Value: req.Query},
		Window: query.Window{From: req.From, To: req.To},
		Period: req.Period,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.success(w, r, profile)
}

// GetGroupAverage handles GET /api/groups/{group}/average
func (h *IndexHandler) GetGroupAverage(w http.ResponseWriter, r *http.Request) {
	win, ok := h.window(w, r)
	if !ok {
		return
	}

	req := api.GroupAverageRequest{WindowRequest: win, Group: pathParam(r, "group")}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	report, err := h.service.GroupAverage(r.Context(), req.Group, query.Window{From: req.From, To: req.To})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.success(w, r, report)
}

// Compare handles GET /api/compare. format=csv streams the joined table
// as a spreadsheet-friendly download.
func (h *IndexHandler) Compare(w http.ResponseWriter, r *http.Request) {
	win, ok := h.window(w, r)
	if !ok {
		return
	}
	format, ok := h.params.ValidateEnum(w, r, "format", []string{"json", "csv"}, "json")
	if !ok {
		return
	}

	params := r.URL.Query()
	req := api.CompareRequest{
		WindowRequest: win,
		Entity:        strings.TrimSpace(params.Get("entity")),
		Peer:          strings.TrimSpace(params.Get("peer")),
		By:            params.Get("by"),
		Format:        format,
	}
	if err := h.validation.ValidateStruct(&req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	by := query.LookupKind(req.By)
	cmp := services.CompareRequest{
		Entity: query.Query{By: by, Value: req.Entity},
		Window: query.Window{From: req.From, To: req.To},
	}
	if req.Peer != "" {
		cmp.Peer = &query.Query{By: by, Value: req.Peer}
	}

	result, err := h.service.Compare(r.Context(), cmp)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if req.Format != "csv" {
		h.success(w, r, result)
		return
	}

	filename := fmt.Sprintf("compare_%s.csv", result.Entity.Identifier)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := exporter.WriteTable(w, result.Table, config.PeriodHeader, config.DisplayPrecision); err != nil {
		// Headers are already sent; all that is left is to log.
		h.logger.ErrorContext(r.Context(), "failed to stream comparison",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	}
}
