package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/fileguard/internal/domain/model"
)

// PermissionRepository — интерфейс доступа к таблице folder_permissions.
// Хранит только явные overrides: унаследованные от роли права
// в БД не записываются, они выводятся Resolver'ом.
type PermissionRepository interface {
	// ListByUser возвращает все overrides пользователя.
	ListByUser(ctx context.Context, userID string) ([]*model.Permission, error)
	// Upsert создаёт или обновляет override пары (user, folder).
	// Заполняет ID и LastModified из БД.
	Upsert(ctx context.Context, p *model.Permission) error
	// DeleteByUserFolder удаляет override пары (user, folder).
	// Отсутствие записи ошибкой не считается: reset мог затронуть
	// пару, которую ещё не сохраняли.
	DeleteByUserFolder(ctx context.Context, userID, folderID string) error
	// DeleteAllForUser удаляет все overrides пользователя.
	DeleteAllForUser(ctx context.Context, userID string) error
}

// permissionRepo — реализация PermissionRepository.
type permissionRepo struct {
	db DBTX
}

// NewPermissionRepository создаёт репозиторий overrides.
// db может быть как пулом, так и транзакцией — save-операции
// сервисного слоя создают репозиторий поверх pgx.Tx.
func NewPermissionRepository(db DBTX) PermissionRepository {
	return &permissionRepo{db: db}
}

func (r *permissionRepo) ListByUser(ctx context.Context, userID string) ([]*model.Permission, error) {
	query := `
		SELECT id, user_id, folder_id, can_view, can_edit, can_upload, can_delete,
		       updated_by, updated_at
		FROM folder_permissions
		WHERE user_id = $1`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения overrides пользователя: %w", err)
	}
	defer rows.Close()

	var result []*model.Permission
	for rows.Next() {
		p := &model.Permission{Customized: true}
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.FolderID,
			&p.Access.View, &p.Access.Edit, &p.Access.Upload, &p.Access.Delete,
			&p.ModifiedBy, &p.LastModified,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования override: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *permissionRepo) Upsert(ctx context.Context, p *model.Permission) error {
	query := `
		INSERT INTO folder_permissions
			(user_id, folder_id, can_view, can_edit, can_upload, can_delete, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, folder_id) DO UPDATE SET
			can_view = EXCLUDED.can_view,
			can_edit = EXCLUDED.can_edit,
			can_upload = EXCLUDED.can_upload,
			can_delete = EXCLUDED.can_delete,
			updated_by = EXCLUDED.updated_by,
			updated_at = now()
		RETURNING id, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.UserID, p.FolderID,
		p.Access.View, p.Access.Edit, p.Access.Upload, p.Access.Delete,
		p.ModifiedBy,
	).Scan(&p.ID, &p.LastModified)
	if err != nil {
		return fmt.Errorf("ошибка upsert override: %w", err)
	}
	return nil
}

func (r *permissionRepo) DeleteByUserFolder(ctx context.Context, userID, folderID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM folder_permissions WHERE user_id = $1 AND folder_id = $2`,
		userID, folderID)
	if err != nil {
		return fmt.Errorf("ошибка удаления override: %w", err)
	}
	return nil
}

func (r *permissionRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM folder_permissions WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("ошибка удаления overrides пользователя: %w", err)
	}
	return nil
}
