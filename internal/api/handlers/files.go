// files.go — обработчики /api/v1/files endpoints.
// Файлы: список, загрузка (multipart), подписанная ссылка, удаление.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/fileguard/internal/api/errors"
	"github.com/bigkaa/fileguard/internal/api/middleware"
	"github.com/bigkaa/fileguard/internal/domain/model"
)

// fileResponse — представление файла в API.
type fileResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	SizeBytes   int64   `json:"size_bytes"`
	ContentType string  `json:"content_type"`
	OwnerID     string  `json:"owner_id"`
	FolderID    *string `json:"folder_id"`
	CreatedAt   string  `json:"created_at"`
}

func mapFile(f *model.File) fileResponse {
	return fileResponse{
		ID:          f.ID,
		Name:        f.Name,
		SizeBytes:   f.SizeBytes,
		ContentType: f.ContentType,
		OwnerID:     f.OwnerID,
		FolderID:    f.FolderID,
		CreatedAt:   f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListFiles — GET /api/v1/files.
// Без folder_id возвращает файлы корня.
func (h *APIHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	var folderID *string
	if s := r.URL.Query().Get("folder_id"); s != "" {
		folderID = &s
	}

	files, err := h.files.List(r.Context(), claims.Scope(), folderID)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка получения списка файлов")
		return
	}

	items := make([]fileResponse, len(files))
	for i, f := range files {
		items[i] = mapFile(f)
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

// UploadFile — POST /api/v1/files.
// Multipart form: file (обязательно), folder_id (опционально).
// Содержимое уходит в объектное хранилище, в БД — только метаданные.
func (h *APIHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB buffer
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	part, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer part.Close()

	var folderID *string
	if s := r.FormValue("folder_id"); s != "" {
		folderID = &s
	}

	f := &model.File{
		Name:        header.Filename,
		SizeBytes:   header.Size,
		ContentType: header.Header.Get("Content-Type"),
		FolderID:    folderID,
	}
	if err := h.files.Upload(r.Context(), claims.Scope(), f, part); err != nil {
		h.writeServiceError(w, err, "Ошибка загрузки файла")
		return
	}

	writeJSON(w, http.StatusCreated, mapFile(f))
}

// GetDownloadURL — GET /api/v1/files/{id}/download-url.
// Возвращает подписанную ссылку на скачивание из объектного хранилища.
func (h *APIHandler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	url, err := h.files.SignedURL(r.Context(), claims.Scope(), id)
	if err != nil {
		h.writeServiceError(w, err, "Ошибка генерации подписанной ссылки")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// DeleteFile — DELETE /api/v1/files/{id}.
// Удаляет объект из хранилища и запись реестра.
func (h *APIHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	if err := h.files.Delete(r.Context(), claims.Scope(), id); err != nil {
		h.writeServiceError(w, err, "Ошибка удаления файла")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
