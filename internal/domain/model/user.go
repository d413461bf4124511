// Пакет model — доменные модели FileGuard.
package model

import (
	"time"

	"github.com/bigkaa/fileguard/internal/domain/policy"
)

// Статусы профиля пользователя.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Profile — профиль пользователя из таблицы profiles.
// Учётная запись создаётся внешним IdP при регистрации; здесь хранятся
// роль, подразделение и статус. Профиль никогда не удаляется —
// бан/приостановка выражаются флагом, не удалением записи.
type Profile struct {
	// ID — UUID пользователя (sub из JWT)
	ID string
	// Name — отображаемое имя
	Name string
	// Email — адрес электронной почты (уникальный)
	Email string
	// Role — роль (admin, user, guest) — ключ дефолтных прав
	Role string
	// Department — подразделение
	Department string
	// AvatarURL — ссылка на аватар в объектном хранилище
	AvatarURL string
	// Status — статус аккаунта (active, inactive, suspended)
	Status string
	// Banned — заблокирован ли пользователь
	Banned bool
	// CreatedAt — время создания профиля
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Scope — область видимости запросов к данным.
// Единая точка ограничения выборок: администратор видит всё,
// остальные — только собственные записи. Передаётся в репозитории
// вместо разбросанных по коду проверок роли.
type Scope struct {
	// ActorID — UUID субъекта запроса
	ActorID string
	// Role — эффективная роль субъекта
	Role string
}

// All сообщает, покрывает ли область видимости все записи.
func (s Scope) All() bool {
	return s.Role == policy.RoleAdmin
}
