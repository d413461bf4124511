// folders.go — сервис папок: дерево категорий файлов.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/fileguard/internal/domain/model"
	"github.com/bigkaa/fileguard/internal/repository"
	"github.com/bigkaa/fileguard/internal/storage"
)

// FolderService — сервис папок.
type FolderService struct {
	folders repository.FolderRepository
	store   storage.ObjectStore
	logger  *slog.Logger
}

// NewFolderService создаёт сервис папок.
func NewFolderService(folders repository.FolderRepository, store storage.ObjectStore, logger *slog.Logger) *FolderService {
	return &FolderService{
		folders: folders,
		store:   store,
		logger:  logger.With(slog.String("component", "folder_service")),
	}
}

// List возвращает папки в области видимости субъекта плоским списком.
func (s *FolderService) List(ctx context.Context, scope model.Scope) ([]*model.Folder, error) {
	folders, err := s.folders.List(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("получение списка папок: %w", err)
	}
	return folders, nil
}

// Tree возвращает папки деревом, восстановленным из плоской выборки.
func (s *FolderService) Tree(ctx context.Context, scope model.Scope) ([]*model.FolderNode, error) {
	folders, err := s.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	return model.BuildFolderTree(folders), nil
}

// Create создаёт папку. Родитель, если указан, должен существовать
// и быть видимым субъекту.
func (s *FolderService) Create(ctx context.Context, scope model.Scope, f *model.Folder) error {
	if f.Name == "" {
		return fmt.Errorf("%w: имя папки не задано", ErrValidation)
	}

	if f.ParentID != nil {
		parent, err := s.folders.GetByID(ctx, *f.ParentID)
		if err != nil {
			if err == repository.ErrNotFound {
				return fmt.Errorf("%w: родительская папка не найдена", ErrValidation)
			}
			return fmt.Errorf("проверка родительской папки: %w", err)
		}
		if !scope.All() && parent.OwnerID != scope.ActorID {
			return ErrForbidden
		}
	}

	f.OwnerID = scope.ActorID
	if err := s.folders.Create(ctx, f); err != nil {
		return fmt.Errorf("создание папки: %w", err)
	}

	s.logger.Info("Папка создана",
		slog.String("folder_id", f.ID),
		slog.String("name", f.Name))
	return nil
}

// Delete удаляет папку: сначала содержимое поддерева из объектного
// хранилища, затем строку; каскад БД убирает вложенные папки и
// записи реестра.
func (s *FolderService) Delete(ctx context.Context, scope model.Scope, id string) error {
	folder, err := s.folders.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("получение папки: %w", err)
	}
	if !scope.All() && folder.OwnerID != scope.ActorID {
		return ErrForbidden
	}

	keys, err := s.folders.SubtreeObjectKeys(ctx, id)
	if err != nil {
		return fmt.Errorf("сбор ключей поддерева: %w", err)
	}
	if err := s.store.Remove(ctx, keys); err != nil {
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, err.Error())
	}

	if err := s.folders.Delete(ctx, id); err != nil {
		return fmt.Errorf("удаление папки: %w", err)
	}

	s.logger.Info("Папка удалена",
		slog.String("folder_id", id),
		slog.Int("objects_removed", len(keys)))
	return nil
}
