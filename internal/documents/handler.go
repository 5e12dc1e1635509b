package documents

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ledgergate/ledgergate/internal/platform/httpx"
	"github.com/ledgergate/ledgergate/internal/shared"
)

// Handler exposes document endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/count", h.count)
	r.Get("/{id}", h.get)
}

type createDocumentPayload struct {
	Number    string    `json:"number" validate:"required,max=64"`
	CompanyID int64     `json:"company_id" validate:"required,gt=0"`
	Kind      string    `json:"kind" validate:"required,oneof=INVOICE CREDIT_NOTE STATEMENT"`
	Currency  string    `json:"currency" validate:"required,len=3"`
	Total     float64   `json:"total" validate:"required"`
	IssuedAt  time.Time `json:"issued_at" validate:"required"`
	DueAt     time.Time `json:"due_at" validate:"required"`
}

type listDocumentsResponse struct {
	Documents  []Document        `json:"documents"`
	Pagination shared.Pagination `json:"pagination"`
}

func queryFromRequest(r *http.Request) ListQuery {
	q := ListQuery{
		Kind:   Kind(r.URL.Query().Get("kind")),
		Status: Status(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
	}
	q.OverdueOnly = r.URL.Query().Get("overdue") == "true"
	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	return q
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	items, pagination, err := h.service.List(r.Context(), p, queryFromRequest(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if items == nil {
		items = []Document{}
	}
	httpx.JSON(w, http.StatusOK, listDocumentsResponse{Documents: items, Pagination: pagination})
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	total, err := h.service.Count(r.Context(), p, queryFromRequest(r))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"count": total})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	doc, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var payload createDocumentPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), p, Document{
		Number:    payload.Number,
		CompanyID: payload.CompanyID,
		Kind:      Kind(payload.Kind),
		Currency:  payload.Currency,
		Total:     payload.Total,
		IssuedAt:  payload.IssuedAt,
		DueAt:     payload.DueAt,
	})
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.IsInternal(err) {
		h.logger.Error("documents request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
