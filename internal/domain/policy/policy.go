// Пакет policy — таблица ролевых прав доступа FileGuard.
// Роль пользователя (admin, user, guest) задаёт дефолтный уровень доступа
// к папкам; явный override на пару (пользователь, папка) всегда побеждает
// дефолт, независимо от того, расширяет он права или сужает.
package policy

// Роли в порядке возрастания привилегий.
const (
	RoleGuest = "guest"
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// roleWeight — вес роли для сравнения.
// Чем выше вес, тем больше привилегий.
var roleWeight = map[string]int{
	RoleGuest: 1,
	RoleUser:  2,
	RoleAdmin: 3,
}

// AccessLevel — уровень доступа к папке: четыре независимых флага.
// Чистый value type без идентичности. Любая комбинация флагов допустима,
// включая полностью пустую («нет доступа»).
type AccessLevel struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Upload bool `json:"upload"`
	Delete bool `json:"delete"`
}

// NoAccess возвращает уровень «нет доступа» (все флаги false).
func NoAccess() AccessLevel {
	return AccessLevel{}
}

// FullAccess возвращает полный уровень доступа (все флаги true).
func FullAccess() AccessLevel {
	return AccessLevel{View: true, Edit: true, Upload: true, Delete: true}
}

// IsNone сообщает, что уровень не даёт никаких прав.
func (a AccessLevel) IsNone() bool {
	return !a.View && !a.Edit && !a.Upload && !a.Delete
}

// defaultAccess — дефолтный уровень доступа по роли.
// Таблица тотальна: для неизвестной роли возвращается «нет доступа».
var defaultAccess = map[string]AccessLevel{
	RoleAdmin: FullAccess(),
	RoleUser:  {View: true},
	RoleGuest: {},
}

// DefaultAccess возвращает дефолтный уровень доступа для роли.
// Функция тотальна и не имеет побочных эффектов: для любой роли
// (включая неизвестную) результат определён.
func DefaultAccess(role string) AccessLevel {
	return defaultAccess[role]
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

// HighestRole возвращает максимальную роль из набора.
// Если набор пуст — возвращает пустую строку.
func HighestRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	highest := roles[0]
	for _, r := range roles[1:] {
		if roleWeight[r] > roleWeight[highest] {
			highest = r
		}
	}
	return highest
}

// Действия в журнале изменений прав.
const (
	ActionGranted  = "granted"
	ActionRevoked  = "revoked"
	ActionModified = "modified"
)

// DeriveAction вычисляет действие для записи журнала по диффу уровней:
// появление прав на пустом месте — granted, полный отзыв — revoked,
// всё остальное — modified.
func DeriveAction(old, new AccessLevel) string {
	switch {
	case old.IsNone() && !new.IsNone():
		return ActionGranted
	case !old.IsNone() && new.IsNone():
		return ActionRevoked
	default:
		return ActionModified
	}
}
