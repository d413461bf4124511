package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fileguard/internal/domain/model"
)

// TemplateRepository — интерфейс доступа к таблице permission_templates.
type TemplateRepository interface {
	// List возвращает все шаблоны, новые первыми.
	List(ctx context.Context) ([]*model.PermissionTemplate, error)
	// GetByID возвращает шаблон по UUID.
	GetByID(ctx context.Context, id string) (*model.PermissionTemplate, error)
	// Create создаёт шаблон; заполняет ID и CreatedAt.
	Create(ctx context.Context, t *model.PermissionTemplate) error
}

// templateRepo — реализация TemplateRepository.
type templateRepo struct {
	db DBTX
}

// NewTemplateRepository создаёт репозиторий шаблонов.
func NewTemplateRepository(db DBTX) TemplateRepository {
	return &templateRepo{db: db}
}

const templateColumns = `id, name, description, role, entries, created_by, created_at`

func (r *templateRepo) List(ctx context.Context) ([]*model.PermissionTemplate, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM permission_templates
		ORDER BY created_at DESC`, templateColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка шаблонов: %w", err)
	}
	defer rows.Close()

	var result []*model.PermissionTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования шаблона: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *templateRepo) GetByID(ctx context.Context, id string) (*model.PermissionTemplate, error) {
	query := fmt.Sprintf(`SELECT %s FROM permission_templates WHERE id = $1`, templateColumns)

	t, err := scanTemplate(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения шаблона: %w", err)
	}
	return t, nil
}

func (r *templateRepo) Create(ctx context.Context, t *model.PermissionTemplate) error {
	entriesJSON, err := json.Marshal(t.Entries)
	if err != nil {
		return fmt.Errorf("ошибка сериализации шаблона: %w", err)
	}

	query := `
		INSERT INTO permission_templates (name, description, role, entries, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err = r.db.QueryRow(ctx, query,
		t.Name, t.Description, t.Role, entriesJSON, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания шаблона: %w", err)
	}
	return nil
}

// scanTemplate сканирует строку выборки в модель.
// Граница типизации: jsonb entries разбирается здесь,
// дальше шаблон существует только в типизированном виде.
func scanTemplate(row pgx.Row) (*model.PermissionTemplate, error) {
	t := &model.PermissionTemplate{}
	var entriesJSON []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Role, &entriesJSON,
		&t.CreatedBy, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(entriesJSON, &t.Entries); err != nil {
		return nil, fmt.Errorf("некорректный jsonb шаблона: %w", err)
	}
	return t, nil
}
