package model

import (
	"time"

	"github.com/bigkaa/fileguard/internal/domain/policy"
)

// Permission — права пользователя на папку.
// На пару (пользователь, папка) существует не более одной записи.
// Жизненный цикл: Inherited -> (правка) -> CustomizedPending ->
// (успешный save) -> CustomizedPersisted -> (reset + save) -> Inherited.
// Неудачный save оставляет запись в CustomizedPending — повтор только
// вручную, оператором.
type Permission struct {
	// ID — UUID записи в folder_permissions (пустой, пока не сохранена)
	ID string
	// UserID — UUID пользователя
	UserID string
	// FolderID — UUID папки
	FolderID string
	// Access — уровень доступа
	Access policy.AccessLevel
	// Inherited — уровень выведен из роли, записи в БД нет
	Inherited bool
	// Customized — явный override, имеет приоритет над ролью
	Customized bool
	// Pending — изменение ещё не сохранено в БД
	Pending bool
	// LastModified — время последнего изменения
	LastModified time.Time
	// ModifiedBy — кто изменил (UUID администратора)
	ModifiedBy string
}

// PermissionTemplate — именованный набор прав из таблицы permission_templates.
// Применяется к пользователю целиком: overrides для покрытых папок
// перезаписываются.
type PermissionTemplate struct {
	// ID — UUID шаблона
	ID string
	// Name — имя шаблона
	Name string
	// Description — описание
	Description string
	// Role — роль, для которой предназначен шаблон
	Role string
	// Entries — уровни доступа по папкам (хранится как jsonb)
	Entries map[string]policy.AccessLevel
	// CreatedBy — кто создал шаблон
	CreatedBy string
	// CreatedAt — время создания
	CreatedAt time.Time
}

// PermissionHistory — запись журнала изменений прав (permission_history).
// Журнал append-only: записи никогда не изменяются и не удаляются.
type PermissionHistory struct {
	// ID — UUID записи
	ID string
	// UserID — чьи права изменены
	UserID string
	// UserName — имя пользователя (JOIN при выборке)
	UserName string
	// FolderID — какая папка
	FolderID string
	// FolderName — имя папки (JOIN при выборке)
	FolderName string
	// Action — granted, revoked или modified
	Action string
	// Access — уровень доступа после изменения
	Access policy.AccessLevel
	// ChangedBy — UUID администратора
	ChangedBy string
	// ChangedByName — имя администратора (JOIN при выборке)
	ChangedByName string
	// CreatedAt — время изменения
	CreatedAt time.Time
}

// Статусы заявок на доступ.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// PermissionRequest — заявка пользователя на доступ к папке
// (таблица permission_requests). Одобрение создаёт override поверх
// текущего эффективного уровня.
type PermissionRequest struct {
	// ID — UUID заявки
	ID string
	// UserID — кто запрашивает
	UserID string
	// UserName — имя заявителя (JOIN при выборке)
	UserName string
	// FolderID — к какой папке
	FolderID string
	// FolderName — имя папки (JOIN при выборке)
	FolderName string
	// Requested — запрошенная способность (view, edit, upload, delete)
	Requested string
	// Reason — обоснование заявки
	Reason string
	// Status — pending, approved или rejected
	Status string
	// DecidedBy — UUID администратора, принявшего решение (nil для pending)
	DecidedBy *string
	// CreatedAt — время подачи заявки
	CreatedAt time.Time
	// DecidedAt — время решения (nil для pending)
	DecidedAt *time.Time
}
