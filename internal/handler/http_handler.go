package handler

import (
	"encoding/json"
	"net/http"

	"github.com/playbook-media/be-cms-governance/internal/errors"
	"github.com/playbook-media/be-cms-governance/internal/logger"
	"github.com/playbook-media/be-cms-governance/internal/repository"
	"github.com/playbook-media/be-cms-governance/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service *service.GovernanceService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service *service.GovernanceService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log,
	}
}

// CreateItem handles create content item HTTP requests
func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Vertical  string `json:"vertical"`
		Title     string `json:"title"`
		CreatedBy string `json:"created_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	item, err := h.service.CreateItem(r.Context(), &service.CreateItemRequest{
		Vertical:  req.Vertical,
		Title:     req.Title,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, item)
}

// GetItem handles get content item HTTP requests
func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Item ID is required", http.StatusBadRequest)
		return
	}

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

// Queue handles reviewer queue HTTP requests
func (h *HTTPHandler) Queue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	role := r.URL.Query().Get("role")
	userID := r.URL.Query().Get("user_id")
	if role == "" {
		http.Error(w, "Role is required", http.StatusBadRequest)
		return
	}

	items, err := h.service.QueueFor(r.Context(), role, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// RequestReview handles review entry HTTP requests
func (h *HTTPHandler) RequestReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID          string `json:"id"`
		RequesterID string `json:"requester_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	status, err := h.service.RequestReview(r.Context(), req.ID, req.RequesterID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// Decide handles review decision HTTP requests
func (h *HTTPHandler) Decide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID           string  `json:"id"`
		ApproverID   string  `json:"approver_id"`
		ApproverRole string  `json:"approver_role"`
		Level        string  `json:"level"`
		Decision     string  `json:"decision"`
		Note         *string `json:"note"`
		SubmissionID *string `json:"submission_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	level, err := repository.ParseReviewLevel(req.Level)
	if err != nil {
		h.writeError(w, errors.InvalidInput("level", err.Error()))
		return
	}
	decision, err := repository.ParseDecision(req.Decision)
	if err != nil {
		h.writeError(w, errors.InvalidInput("decision", err.Error()))
		return
	}

	status, err := h.service.Decide(r.Context(), &service.DecideRequest{
		ItemID:       req.ID,
		ApproverID:   req.ApproverID,
		ApproverRole: req.ApproverRole,
		Level:        level,
		Decision:     decision,
		Note:         req.Note,
		SubmissionID: req.SubmissionID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// AssetDecision handles production asset sign-off HTTP requests
func (h *HTTPHandler) AssetDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID         string  `json:"id"`
		AssetID    string  `json:"asset_id"`
		ApproverID string  `json:"approver_id"`
		Decision   string  `json:"decision"`
		Note       *string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	decision, err := repository.ParseDecision(req.Decision)
	if err != nil {
		h.writeError(w, errors.InvalidInput("decision", err.Error()))
		return
	}

	if err := h.service.RecordAssetDecision(r.Context(), &service.AssetDecisionRequest{
		ItemID:     req.ID,
		AssetID:    req.AssetID,
		ApproverID: req.ApproverID,
		Decision:   decision,
		Note:       req.Note,
	}); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// SetItemDelegate handles per-item delegate override HTTP requests
func (h *HTTPHandler) SetItemDelegate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.SetItemDelegate(r.Context(), req.ID, req.UserID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "delegated"})
}

// History handles approval history HTTP requests
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Item ID is required", http.StatusBadRequest)
		return
	}

	records, err := h.service.ApprovalHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"approvals": records,
		"total":     len(records),
	})
}

// AssetHistory handles asset approval history HTTP requests
func (h *HTTPHandler) AssetHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Item ID is required", http.StatusBadRequest)
		return
	}

	records, err := h.service.AssetApprovalHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset_approvals": records,
		"total":           len(records),
	})
}

// GetPolicy handles policy read HTTP requests, lazily creating the policy
// with tier defaults on first reference
func (h *HTTPHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	vertical := r.URL.Query().Get("vertical")
	if vertical == "" {
		http.Error(w, "Vertical is required", http.StatusBadRequest)
		return
	}

	pol, err := h.service.ResolvePolicy(r.Context(), vertical)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pol)
}

// DelegatePolicy handles standing delegate assignment HTTP requests
func (h *HTTPHandler) DelegatePolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Vertical string `json:"vertical"`
		UserID   string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Delegate(r.Context(), req.Vertical, req.UserID); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "delegated"})
}

// ── response helpers ──────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response body")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("internal error")
	}
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    string(errors.CodeOf(err)),
			"message": err.Error(),
		},
	})
}
