package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bigkaa/fileguard/internal/domain/model"
	"github.com/bigkaa/fileguard/internal/domain/policy"
)

// HistoryRepository — интерфейс журнала изменений прав (permission_history).
// Журнал append-only: интерфейс сознательно не содержит Update и Delete.
type HistoryRepository interface {
	// Append добавляет запись журнала; заполняет ID и CreatedAt.
	Append(ctx context.Context, h *model.PermissionHistory) error
	// List возвращает записи журнала, новые первыми.
	// Имена пользователя, папки и администратора подтягиваются JOIN'ом
	// одной выборкой.
	List(ctx context.Context, limit, offset int) ([]*model.PermissionHistory, error)
	// Count возвращает количество записей журнала.
	Count(ctx context.Context) (int, error)
}

// historyRepo — реализация HistoryRepository.
type historyRepo struct {
	db DBTX
}

// NewHistoryRepository создаёт репозиторий журнала.
func NewHistoryRepository(db DBTX) HistoryRepository {
	return &historyRepo{db: db}
}

func (r *historyRepo) Append(ctx context.Context, h *model.PermissionHistory) error {
	accessJSON, err := json.Marshal(h.Access)
	if err != nil {
		return fmt.Errorf("ошибка сериализации уровня доступа: %w", err)
	}

	query := `
		INSERT INTO permission_history (user_id, folder_id, action, access, changed_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err = r.db.QueryRow(ctx, query,
		h.UserID, h.FolderID, h.Action, accessJSON, h.ChangedBy,
	).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка добавления записи журнала: %w", err)
	}
	return nil
}

func (r *historyRepo) List(ctx context.Context, limit, offset int) ([]*model.PermissionHistory, error) {
	// folder_id не имеет FK: журнал переживает удаление папки,
	// поэтому имя папки может быть NULL.
	query := `
		SELECT h.id, h.user_id, COALESCE(u.name, ''), h.folder_id, COALESCE(f.name, ''),
		       h.action, h.access, h.changed_by, COALESCE(a.name, ''), h.created_at
		FROM permission_history h
		LEFT JOIN profiles u ON u.id = h.user_id
		LEFT JOIN folders f ON f.id = h.folder_id
		LEFT JOIN profiles a ON a.id = h.changed_by
		ORDER BY h.created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения журнала: %w", err)
	}
	defer rows.Close()

	var result []*model.PermissionHistory
	for rows.Next() {
		h := &model.PermissionHistory{}
		var accessJSON []byte
		if err := rows.Scan(
			&h.ID, &h.UserID, &h.UserName, &h.FolderID, &h.FolderName,
			&h.Action, &accessJSON, &h.ChangedBy, &h.ChangedByName, &h.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		if err := json.Unmarshal(accessJSON, &h.Access); err != nil {
			// Некорректный jsonb не валит выборку целиком
			h.Access = policy.NoAccess()
		}
		result = append(result, h)
	}
	return result, rows.Err()
}

func (r *historyRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM permission_history`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей журнала: %w", err)
	}
	return count, nil
}
