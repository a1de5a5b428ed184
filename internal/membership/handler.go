// internal/membership/handler.go
package membership

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"memberhub/internal/utils"
)

const defaultEventsPage = 100

// HandlerOptions tunes how errors are surfaced to clients.
type HandlerOptions struct {
	// Development exposes raw error text in 5xx responses.
	Development bool
	// ConflictOnDuplicate answers duplicate accounts with 409 instead of 500.
	ConflictOnDuplicate bool
	Logger              *zap.Logger
}

type Handler struct {
	service Service
	opts    HandlerOptions
	logger  *zap.Logger
}

func NewHandler(service Service, opts HandlerOptions) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, opts: opts, logger: logger}
}

// Routes mounts the member endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/members", func(r chi.Router) {
		r.Get("/", h.ListMembers)
		r.Post("/", h.CreateMember)
		r.Put("/", h.UpdateMember)
		r.Delete("/", h.DeleteMembers)
		r.Post("/activate", h.ActivateMember)
		r.Post("/deactivation", h.DeactivateMember)
		r.Get("/{id}", h.GetMember)
		r.Get("/{id}/events", h.GetHistory)
		r.Post("/{id}/verify", h.VerifyEmail)
		r.Post("/{id}/send-email", h.SendEmail)
	})
	r.Get("/events", h.ListEvents)
}

// ListMembers handles GET /members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve members")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, members, "")
}

// accountParam decodes the {id} segment. chi matches against RawPath when it
// is set, leaving the segment percent-encoded.
func accountParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return account, true
	}
	account, err := url.PathUnescape(account)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid member ID")
		return "", false
	}
	return account, true
}

// GetMember handles GET /members/{id}.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	member, err := h.service.GetMember(r.Context(), account)
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve member")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, member, "")
}

// CreateMember handles POST /members.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := utils.ParseJSONRequest(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	member, err := h.service.CreateMember(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, "Failed to create member")
		return
	}
	utils.RespondWithSuccess(w, http.StatusCreated, member, "Member created successfully. Verification email sent.")
}

// ActivateMember handles POST /members/activate.
func (h *Handler) ActivateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := utils.ParseJSONRequest(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.service.ActivateMember(r.Context(), req.ID); err != nil {
		h.fail(w, r, err, "Failed to activate member")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, nil, "Member activated successfully")
}

// DeactivateMember handles POST /members/deactivation.
func (h *Handler) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := utils.ParseJSONRequest(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.service.DeactivateMember(r.Context(), req.ID); err != nil {
		h.fail(w, r, err, "Failed to deactivate member")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, nil, "Member deactivated successfully. Notification email sent.")
}

// UpdateMember handles PUT /members.
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string `json:"account"`
		Patch
	}
	if err := utils.ParseJSONRequest(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	member, err := h.service.UpdateMember(r.Context(), req.Account, req.Patch)
	if err != nil {
		h.fail(w, r, err, "Failed to update member")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, member, "Member updated successfully")
}

// DeleteMembers handles DELETE /members.
func (h *Handler) DeleteMembers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := utils.ParseJSONRequest(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Member IDs array is required")
		return
	}

	deleted, err := h.service.DeleteMembers(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, r, err, "Failed to delete members")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK,
		map[string]int{"deleted": deleted},
		fmt.Sprintf("Successfully deleted %d members", deleted))
}

// VerifyEmail handles POST /members/{id}/verify.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	if err := h.service.VerifyEmail(r.Context(), account); err != nil {
		h.fail(w, r, err, "Failed to verify email")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, nil, "Email verified successfully")
}

// SendEmail handles POST /members/{id}/send-email.
func (h *Handler) SendEmail(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := utils.ParseJSONRequest(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.service.SendEmail(r.Context(), account, req.Content); err != nil {
		h.fail(w, r, err, "Failed to send email")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, nil, "Email sent successfully")
}

// GetHistory handles GET /members/{id}/events.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}
	events, err := h.service.History(r.Context(), account)
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve member history")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, events, "")
}

// ListEvents handles GET /events?after=&limit=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after", 0)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid after parameter")
		return
	}
	limit, err := queryInt(r, "limit", defaultEventsPage)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid limit parameter")
		return
	}

	events, err := h.service.Events(r.Context(), int64(after), limit)
	if err != nil {
		h.fail(w, r, err, "Failed to retrieve events")
		return
	}
	utils.RespondWithSuccess(w, http.StatusOK, events, "")
}

func queryInt(r *http.Request, key string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(raw)
}

// fail maps a service error to a status code and envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	var (
		validation *ValidationError
		bulk       *BulkDeleteError
	)
	switch {
	case errors.As(err, &validation):
		utils.RespondWithJSON(w, http.StatusBadRequest, utils.Envelope{
			Success: false,
			Message: validation.Message,
			Data:    fieldsData(validation.Fields),
		})
	case errors.As(err, &bulk):
		utils.RespondWithJSON(w, http.StatusNotFound, utils.Envelope{
			Success: false,
			Message: "Member not found",
			Data:    map[string][]string{"missing": bulk.Missing},
		})
	case errors.Is(err, ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Member not found")
	case errors.Is(err, ErrRateLimited):
		utils.RespondWithError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
	case errors.Is(err, ErrDuplicateAccount) && h.opts.ConflictOnDuplicate:
		utils.RespondWithError(w, http.StatusConflict, "Member with this account already exists")
	default:
		h.logger.Error(message,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		utils.RespondWithInternalError(w, http.StatusInternalServerError, message, err, h.opts.Development)
	}
}

func fieldsData(fields []string) any {
	if len(fields) == 0 {
		return nil
	}
	return map[string][]string{"missing": fields}
}
