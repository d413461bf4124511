// users.go — обработчики /api/v1/users endpoints.
// Управление пользователями: список, получение, смена роли, блокировка.
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
	"github.com/bigkaa/fileguard/internal/repository"
)

// userResponse — представление профиля пользователя в API.
type userResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	Status     string `json:"status"`
	Banned     bool   `json:"banned"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// userListResponse — страница списка пользователей.
type userListResponse struct {
	Items   []userResponse `json:"items"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	HasMore bool           `json:"has_more"`
}

func mapUser(p *model.Profile) userResponse {
	return userResponse{
		ID:         p.ID,
		Name:       p.Name,
		Email:      p.Email,
		Role:       p.Role,
		Department: p.Department,
		AvatarURL:  p.AvatarURL,
		Status:     p.Status,
		Banned:     p.Banned,
		CreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListUsers — GET /api/v1/users.
// Фильтры: role, status, search. Доступ: admin.
func (h *APIHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	filter := repository.ProfileFilter{
		Role:   r.URL.Query().Get("role"),
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}

	users, total, err := h.users.List(r.Context(), filter, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка пользователей")
		return
	}

	items := make([]userResponse, len(users))
	for i, u := range users {
		items[i] = mapUser(u)
	}

	writeJSON(w, http.StatusOK, userListResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}

// GetUser — GET /api/v1/users/{id}.
// Доступ: admin или сам пользователь.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}
	if !claims.HasRole(policy.RoleAdmin) && claims.Subject != id {
		apierrors.Forbidden(w, "Недостаточно прав: чужой профиль")
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения пользователя")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// userRoleRequest — тело запроса смены роли.
type userRoleRequest struct {
	Role string `json:"role"`
}

// SetUserRole — PUT /api/v1/users/{id}/role.
// Меняет роль пользователя. Администратор не может понизить сам себя.
// Доступ: admin.
func (h *APIHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var req userRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.users.SetRole(r.Context(), claims.Subject, id, req.Role); err != nil {
		h.writeServiceError(w, err, "Ошибка смены роли")
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения пользователя")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}

// userBanRequest — тело запроса блокировки.
type userBanRequest struct {
	Banned bool `json:"banned"`
}

// SetUserBanned — PUT /api/v1/users/{id}/ban.
// Блокирует или разблокирует пользователя. Самоблокировка запрещена.
// Доступ: admin.
func (h *APIHandler) SetUserBanned(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var req userBanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	if err := h.users.SetBanned(r.Context(), claims.Subject, id, req.Banned); err != nil {
		h.writeServiceError(w, err, "Ошибка блокировки пользователя")
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения пользователя")
		return
	}

	writeJSON(w, http.StatusOK, mapUser(user))
}
