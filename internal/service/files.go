// files.go — сервис файлов: загрузка в объектное хранилище,
// реестр метаданных, подписанные ссылки на скачивание.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bigkaa/fileguard/internal/domain/model"
	"github.com/bigkaa/fileguard/internal/repository"
	"github.com/bigkaa/fileguard/internal/storage"
)

// FileService — сервис файлов.
type FileService struct {
	files   repository.FileRepository
	folders repository.FolderRepository
	store   storage.ObjectStore
	logger  *slog.Logger
}

// NewFileService создаёт сервис файлов.
func NewFileService(
	files repository.FileRepository,
	folders repository.FolderRepository,
	store storage.ObjectStore,
	logger *slog.Logger,
) *FileService {
	return &FileService{
		files:   files,
		folders: folders,
		store:   store,
		logger:  logger.With(slog.String("component", "file_service")),
	}
}

// List возвращает файлы в области видимости субъекта.
// folderID == nil — файлы корня.
func (s *FileService) List(ctx context.Context, scope model.Scope, folderID *string) ([]*model.File, error) {
	files, err := s.files.List(ctx, scope, folderID)
	if err != nil {
		return nil, fmt.Errorf("получение списка файлов: %w", err)
	}
	return files, nil
}

// Upload загружает содержимое в объектное хранилище и создаёт запись
// реестра. Ключ объекта — "<ownerID>/<unix>-<имя>": владелец как
// префикс, отметка времени против коллизий имён.
func (s *FileService) Upload(ctx context.Context, scope model.Scope, f *model.File, body io.Reader) error {
	if f.Name == "" {
		return fmt.Errorf("%w: имя файла не задано", ErrValidation)
	}
	if f.ContentType == "" {
		f.ContentType = "application/octet-stream"
	}

	if f.FolderID != nil {
		folder, err := s.folders.GetByID(ctx, *f.FolderID)
		if err != nil {
			if err == repository.ErrNotFound {
				return fmt.Errorf("%w: папка не найдена", ErrValidation)
			}
			return fmt.Errorf("проверка папки: %w", err)
		}
		if !scope.All() && folder.OwnerID != scope.ActorID {
			return ErrForbidden
		}
	}

	f.OwnerID = scope.ActorID
	f.ObjectKey = fmt.Sprintf("%s/%d-%s", f.OwnerID, time.Now().Unix(), filepath.Base(f.Name))

	if err := s.store.Upload(ctx, f.ObjectKey, f.ContentType, body); err != nil {
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}

	if err := s.files.Create(ctx, f); err != nil {
		// Реестр не принял запись — убираем уже загруженный объект,
		// чтобы он не остался сиротой.
		if rmErr := s.store.Remove(ctx, []string{f.ObjectKey}); rmErr != nil {
			s.logger.Error("Объект не удалён после отказа реестра",
				slog.String("key", f.ObjectKey),
				slog.String("error", rmErr.Error()))
		}
		if err == repository.ErrConflict {
			return ErrConflict
		}
		return fmt.Errorf("регистрация файла: %w", err)
	}

	if f.FolderID != nil {
		if err := s.folders.AdjustFileCount(ctx, *f.FolderID, 1); err != nil {
			s.logger.Warn("Счётчик файлов папки не обновлён",
				slog.String("folder_id", *f.FolderID),
				slog.String("error", err.Error()))
		}
	}

	s.logger.Info("Файл загружен",
		slog.String("file_id", f.ID),
		slog.String("key", f.ObjectKey),
		slog.Int64("size", f.SizeBytes))
	return nil
}

// SignedURL возвращает подписанную ссылку на скачивание файла.
// Содержимое через сервис не проксируется.
func (s *FileService) SignedURL(ctx context.Context, scope model.Scope, id string) (string, error) {
	f, err := s.get(ctx, scope, id)
	if err != nil {
		return "", err
	}

	url, err := s.store.SignedURL(ctx, f.ObjectKey)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	return url, nil
}

// Delete удаляет файл: объект из хранилища, затем запись реестра.
func (s *FileService) Delete(ctx context.Context, scope model.Scope, id string) error {
	f, err := s.get(ctx, scope, id)
	if err != nil {
		return err
	}

	if err := s.store.Remove(ctx, []string{f.ObjectKey}); err != nil {
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return fmt.Errorf("удаление записи реестра: %w", err)
	}

	if f.FolderID != nil {
		if err := s.folders.AdjustFileCount(ctx, *f.FolderID, -1); err != nil {
			s.logger.Warn("Счётчик файлов папки не обновлён",
				slog.String("folder_id", *f.FolderID),
				slog.String("error", err.Error()))
		}
	}

	s.logger.Info("Файл удалён", slog.String("file_id", id))
	return nil
}

// get возвращает файл с проверкой области видимости.
func (s *FileService) get(ctx context.Context, scope model.Scope, id string) (*model.File, error) {
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение файла: %w", err)
	}
	if !scope.All() && f.OwnerID != scope.ActorID {
		return nil, ErrForbidden
	}
	return f, nil
}
