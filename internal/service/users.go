// users.go — сервис управления пользователями.
// Аккаунты создаются внешним IdP; здесь — роли, статусы и блокировки.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/fileguard/internal/domain/model"
	"github.com/bigkaa/fileguard/internal/domain/policy"
	"github.com/bigkaa/fileguard/internal/repository"
)

// UserService — сервис управления пользователями.
type UserService struct {
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(profiles repository.ProfileRepository, logger *slog.Logger) *UserService {
	return &UserService{
		profiles: profiles,
		logger:   logger.With(slog.String("component", "user_service")),
	}
}

// List возвращает страницу профилей по фильтру и общее количество.
func (s *UserService) List(ctx context.Context, filter repository.ProfileFilter, limit, offset int) ([]*model.Profile, int, error) {
	if filter.Role != "" && !policy.IsValidRole(filter.Role) {
		return nil, 0, ErrInvalidRole
	}

	profiles, err := s.profiles.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка пользователей: %w", err)
	}
	total, err := s.profiles.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт пользователей: %w", err)
	}
	return profiles, total, nil
}

// Get возвращает профиль по UUID.
func (s *UserService) Get(ctx context.Context, id string) (*model.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return profile, nil
}

// SetRole меняет роль пользователя. Администратор не может снять
// роль администратора с самого себя — иначе консоль можно оставить
// без единого администратора.
func (s *UserService) SetRole(ctx context.Context, actorID, userID, role string) error {
	if !policy.IsValidRole(role) {
		return ErrInvalidRole
	}
	if actorID == userID && role != policy.RoleAdmin {
		return ErrSelfDemotion
	}

	if err := s.profiles.UpdateRole(ctx, userID, role); err != nil {
		if err == repository.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("изменение роли: %w", err)
	}

	s.logger.Info("Роль пользователя изменена",
		slog.String("user_id", userID),
		slog.String("role", role),
		slog.String("actor_id", actorID))
	return nil
}

// SetBanned блокирует или разблокирует пользователя.
// Бан — флаг и статус, никогда не удаление: история и файлы
// пользователя остаются на месте.
func (s *UserService) SetBanned(ctx context.Context, actorID, userID string, banned bool) error {
	if actorID == userID && banned {
		return ErrForbidden
	}

	status := model.StatusActive
	if banned {
		status = model.StatusSuspended
	}

	if err := s.profiles.UpdateBanned(ctx, userID, banned, status); err != nil {
		if err == repository.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("изменение блокировки: %w", err)
	}

	s.logger.Info("Блокировка пользователя изменена",
		slog.String("user_id", userID),
		slog.Bool("banned", banned),
		slog.String("actor_id", actorID))
	return nil
}
