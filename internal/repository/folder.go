package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fileguard/internal/domain/model"
)

// FolderRepository — интерфейс доступа к таблице folders.
// Удаление папки каскадно уносит вложенные папки и записи файлов
// (FK ON DELETE CASCADE); объекты в хранилище удаляет сервисный слой.
type FolderRepository interface {
	// List возвращает папки в области видимости scope, отсортированные по имени.
	List(ctx context.Context, scope model.Scope) ([]*model.Folder, error)
	// GetByID возвращает папку по UUID.
	GetByID(ctx context.Context, id string) (*model.Folder, error)
	// Create создаёт папку; заполняет ID и CreatedAt.
	Create(ctx context.Context, f *model.Folder) error
	// Delete удаляет папку по UUID.
	Delete(ctx context.Context, id string) error
	// SubtreeObjectKeys возвращает ключи объектов всех файлов
	// в поддереве папки (включая саму папку).
	SubtreeObjectKeys(ctx context.Context, id string) ([]string, error)
	// AdjustFileCount изменяет счётчик файлов папки на delta.
	AdjustFileCount(ctx context.Context, id string, delta int) error
}

// folderRepo — реализация FolderRepository.
type folderRepo struct {
	db DBTX
}

// NewFolderRepository создаёт репозиторий папок.
func NewFolderRepository(db DBTX) FolderRepository {
	return &folderRepo{db: db}
}

const folderColumns = `id, name, description, owner_id, parent_id, file_count, created_at`

func (r *folderRepo) List(ctx context.Context, scope model.Scope) ([]*model.Folder, error) {
	query := fmt.Sprintf(`SELECT %s FROM folders WHERE TRUE`, folderColumns)
	scopeSQL, args := ownerScope(scope, "owner_id", 1)
	query += scopeSQL + ` ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка папок: %w", err)
	}
	defer rows.Close()

	var result []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования папки: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *folderRepo) GetByID(ctx context.Context, id string) (*model.Folder, error) {
	query := fmt.Sprintf(`SELECT %s FROM folders WHERE id = $1`, folderColumns)

	f, err := scanFolder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения папки: %w", err)
	}
	return f, nil
}

func (r *folderRepo) Create(ctx context.Context, f *model.Folder) error {
	query := `
		INSERT INTO folders (name, description, owner_id, parent_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		f.Name, f.Description, f.OwnerID, f.ParentID,
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания папки: %w", err)
	}
	return nil
}

func (r *folderRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM folders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления папки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *folderRepo) SubtreeObjectKeys(ctx context.Context, id string) ([]string, error) {
	// Рекурсивный обход поддерева папок одной выборкой
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id FROM folders WHERE id = $1
			UNION ALL
			SELECT f.id FROM folders f
			JOIN subtree s ON f.parent_id = s.id
		)
		SELECT fi.object_key
		FROM files fi
		JOIN subtree s ON fi.folder_id = s.id`

	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки ключей поддерева: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ключа объекта: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *folderRepo) AdjustFileCount(ctx context.Context, id string, delta int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE folders SET file_count = GREATEST(file_count + $1, 0) WHERE id = $2`, delta, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления счётчика файлов: %w", err)
	}
	return nil
}

// scanFolder сканирует строку выборки в модель.
func scanFolder(row pgx.Row) (*model.Folder, error) {
	f := &model.Folder{}
	err := row.Scan(
		&f.ID, &f.Name, &f.Description, &f.OwnerID, &f.ParentID,
		&f.FileCount, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}
