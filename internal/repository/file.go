package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fileguard/internal/domain/model"
)

// FileRepository — интерфейс доступа к реестру файлов (таблица files).
type FileRepository interface {
	// List возвращает файлы в области видимости scope.
	// folderID == nil — файлы корня; иначе — файлы указанной папки.
	List(ctx context.Context, scope model.Scope, folderID *string) ([]*model.File, error)
	// GetByID возвращает файл по UUID.
	GetByID(ctx context.Context, id string) (*model.File, error)
	// Create создаёт запись реестра; заполняет ID и CreatedAt.
	Create(ctx context.Context, f *model.File) error
	// Delete удаляет запись реестра по UUID.
	Delete(ctx context.Context, id string) error
}

// fileRepo — реализация FileRepository.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий реестра файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

const fileColumns = `id, name, object_key, size_bytes, content_type, owner_id, folder_id, created_at`

func (r *fileRepo) List(ctx context.Context, scope model.Scope, folderID *string) ([]*model.File, error) {
	var query string
	var args []any

	if folderID != nil {
		query = fmt.Sprintf(`SELECT %s FROM files WHERE folder_id = $1`, fileColumns)
		args = append(args, *folderID)
	} else {
		query = fmt.Sprintf(`SELECT %s FROM files WHERE folder_id IS NULL`, fileColumns)
	}

	scopeSQL, scopeArgs := ownerScope(scope, "owner_id", len(args)+1)
	query += scopeSQL + ` ORDER BY created_at DESC`
	args = append(args, scopeArgs...)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка файлов: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)

	f, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

func (r *fileRepo) Create(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (name, object_key, size_bytes, content_type, owner_id, folder_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		f.Name, f.ObjectKey, f.SizeBytes, f.ContentType, f.OwnerID, f.FolderID,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return nil
}

func (r *fileRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanFile сканирует строку выборки в модель.
func scanFile(row pgx.Row) (*model.File, error) {
	f := &model.File{}
	err := row.Scan(
		&f.ID, &f.Name, &f.ObjectKey, &f.SizeBytes, &f.ContentType,
		&f.OwnerID, &f.FolderID, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}
