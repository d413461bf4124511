package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fileguard/internal/domain/model"
)

// ProfileFilter — фильтры выборки профилей.
type ProfileFilter struct {
	// Role — роль (пустая строка — любая)
	Role string
	// Status — статус аккаунта (пустая строка — любой)
	Status string
	// Search — подстрока имени или email (регистронезависимо)
	Search string
}

// ProfileRepository — интерфейс доступа к таблице profiles.
// Профили создаются внешним IdP при регистрации и никогда не удаляются:
// блокировка — это флаг banned, не DELETE.
type ProfileRepository interface {
	// List возвращает профили по фильтру с пагинацией.
	List(ctx context.Context, filter ProfileFilter, limit, offset int) ([]*model.Profile, error)
	// Count возвращает количество профилей по фильтру.
	Count(ctx context.Context, filter ProfileFilter) (int, error)
	// GetByID возвращает профиль по UUID.
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	// UpdateRole меняет роль пользователя.
	UpdateRole(ctx context.Context, id, role string) error
	// UpdateBanned меняет флаг блокировки и статус.
	UpdateBanned(ctx context.Context, id string, banned bool, status string) error
}

// profileRepo — реализация ProfileRepository.
type profileRepo struct {
	db DBTX
}

// NewProfileRepository создаёт репозиторий профилей.
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

const profileColumns = `id, name, email, role, department, avatar_url, status, banned, created_at, updated_at`

// filterClause собирает WHERE-часть по фильтру.
// Возвращает SQL-фрагмент и аргументы; нумерация placeholder начинается с 1.
func (r *profileRepo) filterClause(filter ProfileFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.Role != "" {
		args = append(args, filter.Role)
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d)", len(args), len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *profileRepo) List(ctx context.Context, filter ProfileFilter, limit, offset int) ([]*model.Profile, error) {
	where, args := r.filterClause(filter)
	query := fmt.Sprintf(`
		SELECT %s
		FROM profiles%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, profileColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка профилей: %w", err)
	}
	defer rows.Close()

	var result []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования профиля: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *profileRepo) Count(ctx context.Context, filter ProfileFilter) (int, error) {
	where, args := r.filterClause(filter)
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта профилей: %w", err)
	}
	return count, nil
}

func (r *profileRepo) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	query := fmt.Sprintf(`SELECT %s FROM profiles WHERE id = $1`, profileColumns)

	p, err := scanProfile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения профиля: %w", err)
	}
	return p, nil
}

func (r *profileRepo) UpdateRole(ctx context.Context, id, role string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET role = $1, updated_at = now() WHERE id = $2`, role, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления роли: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *profileRepo) UpdateBanned(ctx context.Context, id string, banned bool, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET banned = $1, status = $2, updated_at = now() WHERE id = $3`,
		banned, status, id)
	if err != nil {
		return fmt.Errorf("ошибка обновления блокировки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanProfile сканирует строку выборки в модель.
func scanProfile(row pgx.Row) (*model.Profile, error) {
	p := &model.Profile{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Email, &p.Role, &p.Department, &p.AvatarURL,
		&p.Status, &p.Banned, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
