// folders.go — обработчики /api/v1/folders endpoints.
// Папки: список, дерево, создание, удаление.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/fileguard/internal/api/errors"
	"github.com/bigkaa/fileguard/internal/api/middleware"
	"github.com/bigkaa/fileguard/internal/domain/model"
)

// folderResponse — представление папки в API.
type folderResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	OwnerID     string  `json:"owner_id"`
	ParentID    *string `json:"parent_id"`
	FileCount   int     `json:"file_count"`
	CreatedAt   string  `json:"created_at"`
}

// folderTreeNode — узел дерева папок в API.
type folderTreeNode struct {
	folderResponse
	Children []folderTreeNode `json:"children"`
}

func mapFolder(f *model.Folder) folderResponse {
	return folderResponse{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		OwnerID:     f.OwnerID,
		ParentID:    f.ParentID,
		FileCount:   f.FileCount,
		CreatedAt:   f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func mapFolderTree(nodes []*model.FolderNode) []folderTreeNode {
	out := make([]folderTreeNode, len(nodes))
	for i, n := range nodes {
		out[i] = folderTreeNode{
			folderResponse: mapFolder(n.Folder),
			Children:       mapFolderTree(n.Children),
		}
	}
	return out
}

// ListFolders — GET /api/v1/folders.
// Возвращает папки в области видимости субъекта.
func (h *APIHandler) ListFolders(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	folders, err := h.folders.List(r.Context(), claims.Scope())
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка папок")
		return
	}

	items := make([]folderResponse, len(folders))
	for i, f := range folders {
		items[i] = mapFolder(f)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// GetFolderTree — GET /api/v1/folders/tree.
// Возвращает дерево папок в области видимости субъекта.
func (h *APIHandler) GetFolderTree(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	tree, err := h.folders.Tree(r.Context(), claims.Scope())
	if err != nil {
		h.writeServiceError(w, err, "Ошибка построения дерева папок")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": mapFolderTree(tree)})
}

// folderCreateRequest — тело запроса создания папки.
type folderCreateRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_id"`
}

// CreateFolder — POST /api/v1/folders.
// Создаёт папку, владелец — субъект запроса.
func (h *APIHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var req folderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}

	folder := &model.Folder{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
	}
	if err := h.folders.Create(r.Context(), claims.Scope(), folder); err != nil {
		h.writeServiceError(w, err, "Ошибка создания папки")
		return
	}

	writeJSON(w, http.StatusCreated, mapFolder(folder))
}

// DeleteFolder — DELETE /api/v1/folders/{id}.
// Удаляет папку каскадно вместе с вложенными папками, файлами
// и их объектами в хранилище.
func (h *APIHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	if err := h.folders.Delete(r.Context(), claims.Scope(), id); err != nil {
		h.writeServiceError(w, err, "Ошибка удаления папки")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
