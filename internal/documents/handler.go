package documents

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/tradedocs/tradedocs/internal/numbering"
	"github.com/tradedocs/tradedocs/internal/platform/httpx"
	"github.com/tradedocs/tradedocs/internal/shared"
	"github.com/tradedocs/tradedocs/internal/totals"
)

// PDFRenderer turns a document into a rendered PDF.
type PDFRenderer interface {
	RenderDocument(ctx context.Context, doc *Document) ([]byte, error)
}

// IdempotencyGuard rejects replayed creation requests.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler manages document endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validator   *validator.Validate
	pdf         PDFRenderer
	idempotency IdempotencyGuard

	renderGroup singleflight.Group
}

// NewHandler builds a Handler instance. pdf and idempotency may be nil.
func NewHandler(logger *slog.Logger, service *Service, pdf PDFRenderer, idempotency IdempotencyGuard) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		validator:   validator.New(),
		pdf:         pdf,
		idempotency: idempotency,
	}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/documents", h.create)
	r.Get("/documents", h.list)
	r.Get("/documents/lookup", h.lookup)
	r.Get("/documents/export", h.export)
	r.Get("/documents/{id}", h.show)
	r.Delete("/documents/{id}", h.remove)
	r.Put("/documents/{id}/items", h.replaceItems)
	r.Post("/documents/{id}/status", h.changeStatus)
	r.Post("/documents/{id}/duplicate", h.duplicate)
	r.Get("/documents/{id}/pdf", h.renderPDF)
	r.Post("/drafts/reduce", h.reduceDraft)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if !h.validateStruct(w, req) {
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "documents"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "idempotency key already processed")
				return
			}
			h.logger.Warn("idempotency check failed", slog.Any("error", err))
		}
	}

	doc, err := h.service.Create(r.Context(), req)
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			_ = h.idempotency.Delete(r.Context(), idemKey)
		}
		h.respondServiceError(w, err, "create document")
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListDocumentsRequest{
		DocType: numbering.DocumentType(q.Get("doc_type")),
		Status:  Status(q.Get("status")),
	}
	if v := q.Get("company_id"); v != "" {
		req.CompanyID, _ = strconv.ParseInt(v, 10, 64)
	}
	req.Page, _ = strconv.Atoi(q.Get("page"))
	req.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	docs, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err, "list documents")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"documents":  docs,
		"pagination": shared.NewPagination(req.Page, req.PerPage, total),
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	docType := numbering.DocumentType(r.URL.Query().Get("doc_type"))
	number := r.URL.Query().Get("number")
	if !docType.Valid() || number == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "doc_type and number are required")
		return
	}
	doc, err := h.service.GetByNumber(r.Context(), docType, number)
	if err != nil {
		h.respondServiceError(w, err, "lookup document")
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "get document")
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondServiceError(w, err, "delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) replaceItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req ReplaceItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if !h.validateStruct(w, req) {
		return
	}
	doc, err := h.service.ReplaceItems(r.Context(), id, req)
	if err != nil {
		h.respondServiceError(w, err, "replace items")
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req ChangeStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if !h.validateStruct(w, req) {
		return
	}
	doc, err := h.service.ChangeStatus(r.Context(), id, Status(req.Status))
	if err != nil {
		h.respondServiceError(w, err, "change status")
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) duplicate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Duplicate(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "duplicate document")
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListDocumentsRequest{
		DocType: numbering.DocumentType(q.Get("doc_type")),
		Status:  Status(q.Get("status")),
		PerPage: 10000,
	}
	if v := q.Get("company_id"); v != "" {
		req.CompanyID, _ = strconv.ParseInt(v, 10, 64)
	}
	docs, _, err := h.service.List(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err, "export documents")
		return
	}

	switch q.Get("format") {
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="documents.xlsx"`)
		if err := WriteXLSX(w, docs); err != nil {
			h.logger.Error("write xlsx export", slog.Any("error", err))
		}
	default:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="documents.csv"`)
		if err := WriteCSV(w, docs); err != nil {
			h.logger.Error("write csv export", slog.Any("error", err))
		}
	}
}

func (h *Handler) renderPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "PDF Unavailable", "pdf rendering is not configured")
		return
	}
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err, "get document")
		return
	}

	// Concurrent renders of the same document collapse into one upstream call.
	key := strconv.FormatInt(id, 10)
	result, err, _ := h.renderGroup.Do(key, func() (any, error) {
		return h.pdf.RenderDocument(r.Context(), doc)
	})
	if err != nil {
		h.logger.Error("render document pdf", slog.Int64("id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Render Failed", "")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+doc.Number+`.pdf"`)
	_, _ = w.Write(result.([]byte))
}

// draftCommandRequest is the JSON envelope for reducer commands.
type draftCommandRequest struct {
	Draft Draft  `json:"draft"`
	Op    string `json:"op" validate:"required,oneof=set_client add_item update_item remove_item clear_items set_rates"`

	Client *SetClient   `json:"client,omitempty"`
	Item   *ItemRequest `json:"item,omitempty"`
	Index  *int         `json:"index,omitempty"`
	Rates  *SetRates    `json:"rates,omitempty"`
}

func (h *Handler) reduceDraft(w http.ResponseWriter, r *http.Request) {
	var req draftCommandRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if !h.validateStruct(w, req) {
		return
	}

	cmd, err := req.command()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	next, err := Reduce(req.Draft, cmd)
	if err != nil {
		h.respondServiceError(w, err, "reduce draft")
		return
	}
	httpx.JSON(w, http.StatusOK, next)
}

func (r draftCommandRequest) command() (Command, error) {
	switch r.Op {
	case "set_client":
		if r.Client == nil {
			return nil, errors.New("client payload required")
		}
		return *r.Client, nil
	case "add_item":
		if r.Item == nil {
			return nil, errors.New("item payload required")
		}
		return AddItem{Item: *r.Item}, nil
	case "update_item":
		if r.Item == nil || r.Index == nil {
			return nil, errors.New("item and index payloads required")
		}
		return UpdateItem{Index: *r.Index, Item: *r.Item}, nil
	case "remove_item":
		if r.Index == nil {
			return nil, errors.New("index payload required")
		}
		return RemoveItem{Index: *r.Index}, nil
	case "clear_items":
		return ClearItems{}, nil
	case "set_rates":
		if r.Rates == nil {
			return nil, errors.New("rates payload required")
		}
		return *r.Rates, nil
	}
	return nil, errors.New("unknown op")
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid document id")
		return 0, false
	}
	return id, true
}

func (h *Handler) validateStruct(w http.ResponseWriter, v any) bool {
	if err := h.validator.Struct(v); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, op string) {
	var verr *totals.ValidationError
	switch {
	case errors.As(err, &verr):
		fields := map[string]string{verr.Field: verr.Message}
		if verr.ItemIndex >= 0 {
			fields["item_index"] = strconv.Itoa(verr.ItemIndex)
		}
		httpx.ValidationProblem(w, fields)
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "document not found")
	case errors.Is(err, ErrDuplicateNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate Number", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case errors.Is(err, ErrBadCommand):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, numbering.ErrUnknownType):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, numbering.ErrExhausted):
		httpx.Problem(w, http.StatusConflict, "Numbering Exhausted", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
