// permissions.go — обработчики управления правами:
// матрица эффективных прав, overrides, bulk-изменения, шаблоны,
// журнал изменений и заявки на доступ.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/fileguard/internal/api/errors"
	"github.com/bigkaa/fileguard/internal/api/middleware"
	"github.com/bigkaa/fileguard/internal/domain/model"
	"github.com/bigkaa/fileguard/internal/domain/policy"
)

// permissionResponse — представление прав на папку в API.
type permissionResponse struct {
	UserID       string             `json:"user_id"`
	FolderID     string             `json:"folder_id"`
	Access       policy.AccessLevel `json:"access"`
	Inherited    bool               `json:"inherited"`
	Customized   bool               `json:"customized"`
	Pending      bool               `json:"pending"`
	LastModified string             `json:"last_modified,omitempty"`
	ModifiedBy   string             `json:"modified_by,omitempty"`
}

func mapPermission(p *model.Permission) permissionResponse {
	resp := permissionResponse{
		UserID:     p.UserID,
		FolderID:   p.FolderID,
		Access:     p.Access,
		Inherited:  p.Inherited,
		Customized: p.Customized,
		Pending:    p.Pending,
		ModifiedBy: p.ModifiedBy,
	}
	if !p.LastModified.IsZero() {
		resp.LastModified = p.LastModified.UTC().Format(time.RFC3339)
	}
	return resp
}

// GetPermissionMatrix — GET /api/v1/permissions/{userId}.
// Возвращает эффективные права пользователя на все видимые папки.
// Доступ: admin.
func (h *APIHandler) GetPermissionMatrix(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	matrix, err := h.permissions.Matrix(r.Context(), userID, claims.Scope())
	if err != nil {
		h.writeServiceError(w, err, "Ошибка построения матрицы прав")
		return
	}

	items := make([]permissionResponse, len(matrix))
	for i, p := range matrix {
		items[i] = mapPermission(p)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// accessRequest — тело запроса установки уровня доступа.
type accessRequest struct {
	Access policy.AccessLevel `json:"access"`
}

// SetPermission — PUT /api/v1/permissions/{userId}/{folderId}.
// Ставит customized override. Изменение остаётся pending до save.
// Доступ: admin.
func (h *APIHandler) SetPermission(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	folderID := chi.URLParam(r, "folderId")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var req accessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	p, err := h.permissions.SetAccess(r.Context(), userID, folderID, req.Access, claims.Subject)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка установки прав")
		return
	}

	writeJSON(w, http.StatusOK, mapPermission(p))
}

// ResetPermissions — DELETE /api/v1/permissions/{userId}.
// Сбрасывает все overrides пользователя к дефолтам роли.
// Удаление строк из БД произойдёт при save.
// Доступ: admin.
func (h *APIHandler) ResetPermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	if err := h.permissions.ResetToRoleDefault(r.Context(), userID, claims.Subject); err != nil {
		h.writeServiceError(w, err, "Ошибка сброса прав")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SavePermissions — POST /api/v1/permissions/{userId}/save.
// Сохраняет накопленные pending-изменения одной транзакцией.
// Доступ: admin.
func (h *APIHandler) SavePermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	if err := h.permissions.Save(r.Context(), userID); err != nil {
		h.writeServiceError(w, err, "Ошибка сохранения прав")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// bulkRequest — тело bulk-запроса.
type bulkRequest struct {
	UserIDs  []string           `json:"user_ids"`
	FolderID string             `json:"folder_id"`
	Access   policy.AccessLevel `json:"access"`
}

// ApplyBulk — POST /api/v1/permissions/bulk.
// Ставит один уровень доступа на папку для набора пользователей
// и сразу сохраняет. Пустой список пользователей — no-op.
// Доступ: admin.
func (h *APIHandler) ApplyBulk(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	applied, err := h.permissions.ApplyBulk(r.Context(), req.UserIDs, req.FolderID, req.Access, claims.Subject)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка bulk-изменения прав")
		return
	}

	for _, userID := range req.UserIDs {
		if err := h.permissions.Save(r.Context(), userID); err != nil {
			h.writeServiceError(w, err, "Ошибка сохранения bulk-изменений")
			return
		}
	}

	items := make([]permissionResponse, len(applied))
	for i, p := range applied {
		items[i] = mapPermission(p)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// --- Шаблоны прав ---

// templateResponse — представление шаблона прав в API.
type templateResponse struct {
	ID          string                        `json:"id"`
	Name        string                        `json:"name"`
	Description string                        `json:"description,omitempty"`
	Role        string                        `json:"role,omitempty"`
	Entries     map[string]policy.AccessLevel `json:"entries"`
	CreatedBy   string                        `json:"created_by"`
	CreatedAt   string                        `json:"created_at"`
}

func mapTemplate(t *model.PermissionTemplate) templateResponse {
	return templateResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Role:        t.Role,
		Entries:     t.Entries,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListTemplates — GET /api/v1/templates.
// Доступ: admin.
func (h *APIHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.permissions.ListTemplates(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения шаблонов")
		return
	}

	items := make([]templateResponse, len(templates))
	for i, t := range templates {
		items[i] = mapTemplate(t)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// templateCreateRequest — тело запроса создания шаблона.
type templateCreateRequest struct {
	Name        string                        `json:"name"`
	Description string                        `json:"description"`
	Role        string                        `json:"role"`
	Entries     map[string]policy.AccessLevel `json:"entries"`
}

// CreateTemplate — POST /api/v1/templates.
// Доступ: admin.
func (h *APIHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var req templateCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	tmpl := &model.PermissionTemplate{
		Name:        req.Name,
		Description: req.Description,
		Role:        req.Role,
		Entries:     req.Entries,
		CreatedBy:   claims.Subject,
	}
	if err := h.permissions.CreateTemplate(r.Context(), tmpl); err != nil {
		h.writeServiceError(w, err, "Ошибка создания шаблона")
		return
	}

	writeJSON(w, http.StatusCreated, mapTemplate(tmpl))
}

// ApplyTemplate — POST /api/v1/templates/{id}/apply/{userId}.
// Замещает overrides пользователя для папок шаблона. Изменения
// остаются pending до save.
// Доступ: admin.
func (h *APIHandler) ApplyTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userId")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	if err := h.permissions.ApplyTemplate(r.Context(), userID, templateID, claims.Subject); err != nil {
		h.writeServiceError(w, err, "Ошибка применения шаблона")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// --- Журнал изменений ---

// historyResponse — запись журнала изменений прав в API.
type historyResponse struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	UserName      string             `json:"user_name,omitempty"`
	FolderID      string             `json:"folder_id"`
	FolderName    string             `json:"folder_name,omitempty"`
	Action        string             `json:"action"`
	Access        policy.AccessLevel `json:"access"`
	ChangedBy     string             `json:"changed_by"`
	ChangedByName string             `json:"changed_by_name,omitempty"`
	CreatedAt     string             `json:"created_at"`
}

// ListHistory — GET /api/v1/history.
// Журнал изменений прав, новые записи первыми.
// Доступ: admin.
func (h *APIHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	records, total, err := h.permissions.ListHistory(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения журнала")
		return
	}

	items := make([]historyResponse, len(records))
	for i, rec := range records {
		items[i] = historyResponse{
			ID:            rec.ID,
			UserID:        rec.UserID,
			UserName:      rec.UserName,
			FolderID:      rec.FolderID,
			FolderName:    rec.FolderName,
			Action:        rec.Action,
			Access:        rec.Access,
			ChangedBy:     rec.ChangedBy,
			ChangedByName: rec.ChangedByName,
			CreatedAt:     rec.CreatedAt.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":    items,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
		"has_more": offset+limit < total,
	})
}

// --- Заявки на доступ ---

// requestResponse — представление заявки на доступ в API.
type requestResponse struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	UserName   string  `json:"user_name,omitempty"`
	FolderID   string  `json:"folder_id"`
	FolderName string  `json:"folder_name,omitempty"`
	Requested  string  `json:"requested"`
	Reason     string  `json:"reason,omitempty"`
	Status     string  `json:"status"`
	DecidedBy  *string `json:"decided_by"`
	CreatedAt  string  `json:"created_at"`
	DecidedAt  *string `json:"decided_at"`
}

func mapRequest(req *model.PermissionRequest) requestResponse {
	resp := requestResponse{
		ID:         req.ID,
		UserID:     req.UserID,
		UserName:   req.UserName,
		FolderID:   req.FolderID,
		FolderName: req.FolderName,
		Requested:  req.Requested,
		Reason:     req.Reason,
		Status:     req.Status,
		DecidedBy:  req.DecidedBy,
		CreatedAt:  req.CreatedAt.UTC().Format(time.RFC3339),
	}
	if req.DecidedAt != nil {
		s := req.DecidedAt.UTC().Format(time.RFC3339)
		resp.DecidedAt = &s
	}
	return resp
}

// ListRequests — GET /api/v1/requests.
// Фильтр: status (pending, approved, rejected; пустой — все).
// Доступ: admin.
func (h *APIHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.requests.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения заявок")
		return
	}

	items := make([]requestResponse, len(requests))
	for i, req := range requests {
		items[i] = mapRequest(req)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// requestCreateRequest — тело заявки на доступ.
type requestCreateRequest struct {
	FolderID  string `json:"folder_id"`
	Requested string `json:"requested"`
	Reason    string `json:"reason"`
}

// CreateRequest — POST /api/v1/requests.
// Подаёт заявку от имени субъекта запроса.
func (h *APIHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var body requestCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	req := &model.PermissionRequest{
		FolderID:  body.FolderID,
		Requested: body.Requested,
		Reason:    body.Reason,
	}
	if err := h.requests.Create(r.Context(), claims.Subject, req); err != nil {
		h.writeServiceError(w, err, "Ошибка создания заявки")
		return
	}

	writeJSON(w, http.StatusCreated, mapRequest(req))
}

// ApproveRequest — POST /api/v1/requests/{id}/approve.
// Одобряет заявку: способность добавляется поверх эффективного уровня
// и сохраняется немедленно.
// Доступ: admin.
func (h *APIHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	if err := h.requests.Approve(r.Context(), claims.Subject, id); err != nil {
		h.writeServiceError(w, err, "Ошибка одобрения заявки")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": model.RequestApproved})
}

// RejectRequest — POST /api/v1/requests/{id}/reject.
// Доступ: admin.
func (h *APIHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	if err := h.requests.Reject(r.Context(), claims.Subject, id); err != nil {
		h.writeServiceError(w, err, "Ошибка отклонения заявки")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": model.RequestRejected})
}
