package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fileguard/internal/domain/model"
)

// RequestRepository — интерфейс доступа к таблице permission_requests.
type RequestRepository interface {
	// Create создаёт заявку со статусом pending; заполняет ID и CreatedAt.
	Create(ctx context.Context, req *model.PermissionRequest) error
	// ListByStatus возвращает заявки с указанным статусом, новые первыми.
	// Пустой статус — все заявки.
	ListByStatus(ctx context.Context, status string) ([]*model.PermissionRequest, error)
	// GetByID возвращает заявку по UUID.
	GetByID(ctx context.Context, id string) (*model.PermissionRequest, error)
	// Decide переводит заявку из pending в approved или rejected.
	// Уже решённую заявку трогать нельзя — вернёт ErrConflict.
	Decide(ctx context.Context, id, status, decidedBy string) error
}

// requestRepo — реализация RequestRepository.
type requestRepo struct {
	db DBTX
}

// NewRequestRepository создаёт репозиторий заявок.
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepo{db: db}
}

func (r *requestRepo) Create(ctx context.Context, req *model.PermissionRequest) error {
	query := `
		INSERT INTO permission_requests (user_id, folder_id, requested, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at`

	err := r.db.QueryRow(ctx, query,
		req.UserID, req.FolderID, req.Requested, req.Reason,
	).Scan(&req.ID, &req.Status, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания заявки: %w", err)
	}
	return nil
}

const requestSelect = `
	SELECT r.id, r.user_id, COALESCE(p.name, ''), r.folder_id,
	       COALESCE(f.name, ''), r.requested, r.reason, r.status,
	       r.decided_by, r.created_at, r.decided_at
	FROM permission_requests r
	LEFT JOIN profiles p ON p.id = r.user_id
	LEFT JOIN folders f ON f.id = r.folder_id`

func (r *requestRepo) ListByStatus(ctx context.Context, status string) ([]*model.PermissionRequest, error) {
	query := requestSelect
	args := []any{}
	if status != "" {
		query += ` WHERE r.status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY r.created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка заявок: %w", err)
	}
	defer rows.Close()

	var result []*model.PermissionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования заявки: %w", err)
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*model.PermissionRequest, error) {
	query := requestSelect + ` WHERE r.id = $1`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения заявки: %w", err)
	}
	return req, nil
}

func (r *requestRepo) Decide(ctx context.Context, id, status, decidedBy string) error {
	query := `
		UPDATE permission_requests
		SET status = $2, decided_by = $3, decided_at = now()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.db.Exec(ctx, query, id, status, decidedBy)
	if err != nil {
		return fmt.Errorf("ошибка решения по заявке: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Либо заявки нет, либо она уже решена.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func scanRequest(row pgx.Row) (*model.PermissionRequest, error) {
	req := &model.PermissionRequest{}
	err := row.Scan(
		&req.ID, &req.UserID, &req.UserName, &req.FolderID,
		&req.FolderName, &req.Requested, &req.Reason, &req.Status,
		&req.DecidedBy, &req.CreatedAt, &req.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
