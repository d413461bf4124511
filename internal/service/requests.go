// requests.go — сервис заявок на доступ к папкам.
// Пользователь запрашивает способность (view, edit, upload, delete);
// одобрение администратором ставит override поверх текущего
// эффективного уровня и сразу сохраняет его.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/fileguard/internal/domain/model"
	"github.com/bigkaa/fileguard/internal/repository"
)

// Запрашиваемые способности.
var validCapabilities = map[string]bool{
	"view": true, "edit": true, "upload": true, "delete": true,
}

// RequestService — сервис заявок на доступ.
type RequestService struct {
	requests    repository.RequestRepository
	folders     repository.FolderRepository
	profiles    repository.ProfileRepository
	permissions *PermissionService
	logger      *slog.Logger
}

// NewRequestService создаёт сервис заявок.
func NewRequestService(
	requests repository.RequestRepository,
	folders repository.FolderRepository,
	profiles repository.ProfileRepository,
	permissions *PermissionService,
	logger *slog.Logger,
) *RequestService {
	return &RequestService{
		requests:    requests,
		folders:     folders,
		profiles:    profiles,
		permissions: permissions,
		logger:      logger.With(slog.String("component", "request_service")),
	}
}

// Create подаёт заявку от имени субъекта.
func (s *RequestService) Create(ctx context.Context, actorID string, req *model.PermissionRequest) error {
	if !validCapabilities[req.Requested] {
		return fmt.Errorf("%w: недопустимая способность %q", ErrValidation, req.Requested)
	}
	if _, err := s.folders.GetByID(ctx, req.FolderID); err != nil {
		if err == repository.ErrNotFound {
			return fmt.Errorf("%w: папка не найдена", ErrValidation)
		}
		return fmt.Errorf("проверка папки: %w", err)
	}

	req.UserID = actorID
	if err := s.requests.Create(ctx, req); err != nil {
		return fmt.Errorf("создание заявки: %w", err)
	}

	s.logger.Info("Заявка на доступ подана",
		slog.String("request_id", req.ID),
		slog.String("user_id", req.UserID),
		slog.String("folder_id", req.FolderID),
		slog.String("requested", req.Requested))
	return nil
}

// List возвращает заявки с указанным статусом (пустой — все).
func (s *RequestService) List(ctx context.Context, status string) ([]*model.PermissionRequest, error) {
	requests, err := s.requests.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("получение списка заявок: %w", err)
	}
	return requests, nil
}

// Approve одобряет заявку: запрошенная способность добавляется
// поверх текущего эффективного уровня пользователя и сохраняется
// немедленно, после чего заявка помечается approved.
func (s *RequestService) Approve(ctx context.Context, actorID, requestID string) error {
	req, err := s.get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != model.RequestPending {
		return ErrConflict
	}

	profile, err := s.profiles.GetByID(ctx, req.UserID)
	if err != nil {
		if err == repository.ErrNotFound {
			return fmt.Errorf("%w: заявитель не найден", ErrValidation)
		}
		return fmt.Errorf("получение профиля заявителя: %w", err)
	}

	if err := s.permissions.Load(ctx, req.UserID); err != nil {
		return err
	}
	access := s.permissions.EffectiveAccess(req.UserID, req.FolderID, profile.Role).Access
	switch req.Requested {
	case "view":
		access.View = true
	case "edit":
		access.Edit = true
	case "upload":
		access.Upload = true
	case "delete":
		access.Delete = true
	}

	if _, err := s.permissions.SetAccess(ctx, req.UserID, req.FolderID, access, actorID); err != nil {
		return err
	}
	if err := s.permissions.Save(ctx, req.UserID); err != nil {
		return err
	}

	if err := s.requests.Decide(ctx, requestID, model.RequestApproved, actorID); err != nil {
		if err == repository.ErrConflict {
			return ErrConflict
		}
		return fmt.Errorf("пометка заявки approved: %w", err)
	}

	s.logger.Info("Заявка одобрена",
		slog.String("request_id", requestID),
		slog.String("actor_id", actorID))
	return nil
}

// Reject отклоняет заявку без изменения прав.
func (s *RequestService) Reject(ctx context.Context, actorID, requestID string) error {
	if err := s.requests.Decide(ctx, requestID, model.RequestRejected, actorID); err != nil {
		switch err {
		case repository.ErrNotFound:
			return ErrNotFound
		case repository.ErrConflict:
			return ErrConflict
		}
		return fmt.Errorf("пометка заявки rejected: %w", err)
	}

	s.logger.Info("Заявка отклонена",
		slog.String("request_id", requestID),
		slog.String("actor_id", actorID))
	return nil
}

func (s *RequestService) get(ctx context.Context, id string) (*model.PermissionRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение заявки: %w", err)
	}
	return req, nil
}
