// Пакет service — бизнес-логика FileGuard.
// permissions.go — ядро: рабочий набор overrides, вычисление эффективных
// прав и атомарное сохранение изменений с журналом.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/fileguard/internal/domain/model"
	"github.com/bigkaa/fileguard/internal/domain/policy"
	"github.com/bigkaa/fileguard/internal/repository"
)

// Prometheus-метрики кэша overrides.
var (
	permCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fg_perm_cache_hits_total",
		Help: "Общее количество попаданий в кэш overrides.",
	})
	permCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fg_perm_cache_misses_total",
		Help: "Общее количество промахов кэша overrides.",
	})
	permSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fg_perm_saves_total",
		Help: "Общее количество сохранений изменений прав по результату.",
	}, []string{"result"})
)

// userOverrides — рабочий набор overrides одного пользователя.
// perms — текущее состояние (включая несохранённые правки),
// saved — последнее сохранённое состояние: по диффу perms/saved
// строится ChangeSet и вычисляются действия журнала.
type userOverrides struct {
	role  string
	perms map[string]*model.Permission
	saved map[string]policy.AccessLevel
	// resetBy — кто выполнил последний reset. Удаления в журнале
	// атрибутируются оператору, а не целевому пользователю.
	resetBy string
}

// PermissionService — ядро управления правами доступа.
// Рабочие наборы пользователей живут в expirable LRU: записи других
// пользователей переживают переключение между ними, но вытесняются
// по размеру и TTL, а не вручную. Все мутации — под mu.
type PermissionService struct {
	profiles  repository.ProfileRepository
	folders   repository.FolderRepository
	perms     repository.PermissionRepository
	templates repository.TemplateRepository
	history   repository.HistoryRepository
	writer    repository.ChangeWriter

	mu    sync.Mutex
	cache *expirable.LRU[string, *userOverrides]
	// gen — счётчик поколений загрузки по пользователю. Загрузка,
	// чьё поколение устарело к моменту завершения, отбрасывает
	// результат, а не перетирает более новое состояние.
	gen map[string]uint64

	logger *slog.Logger
}

// NewPermissionService создаёт сервис управления правами.
func NewPermissionService(
	profiles repository.ProfileRepository,
	folders repository.FolderRepository,
	perms repository.PermissionRepository,
	templates repository.TemplateRepository,
	history repository.HistoryRepository,
	writer repository.ChangeWriter,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *PermissionService {
	return &PermissionService{
		profiles:  profiles,
		folders:   folders,
		perms:     perms,
		templates: templates,
		history:   history,
		writer:    writer,
		cache:     expirable.NewLRU[string, *userOverrides](cacheSize, nil, cacheTTL),
		gen:       make(map[string]uint64),
		logger:    logger.With(slog.String("component", "permission_service")),
	}
}

// Load загружает overrides пользователя из БД и замещает только его
// запись в кэше. При ошибке выборки запись очищается, а ошибка уходит
// вызывающему: пользователь трактуется как «без overrides», повторная
// загрузка — только по явному действию оператора.
func (s *PermissionService) Load(ctx context.Context, userID string) error {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if err == repository.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("получение профиля пользователя: %w", err)
	}

	s.mu.Lock()
	s.gen[userID]++
	myGen := s.gen[userID]
	s.mu.Unlock()

	records, err := s.perms.ListByUser(ctx, userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen[userID] != myGen {
		// Пока шла выборка, стартовала более новая загрузка —
		// её результат авторитетнее.
		s.logger.Debug("Устаревшая загрузка overrides отброшена",
			slog.String("user_id", userID))
		return nil
	}

	if err != nil {
		s.cache.Remove(userID)
		s.logger.Error("Ошибка загрузки overrides",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return fmt.Errorf("загрузка overrides пользователя: %w", err)
	}

	entry := &userOverrides{
		role:  profile.Role,
		perms: make(map[string]*model.Permission, len(records)),
		saved: make(map[string]policy.AccessLevel, len(records)),
	}
	for _, p := range records {
		entry.perms[p.FolderID] = p
		entry.saved[p.FolderID] = p.Access
	}
	s.cache.Add(userID, entry)

	s.logger.Debug("Overrides пользователя загружены",
		slog.String("user_id", userID),
		slog.Int("count", len(records)))
	return nil
}

// ensureLoaded возвращает рабочий набор пользователя, при необходимости
// загрузив его. Вызывается без удержания mu.
func (s *PermissionService) ensureLoaded(ctx context.Context, userID string) (*userOverrides, error) {
	s.mu.Lock()
	entry, ok := s.cache.Get(userID)
	s.mu.Unlock()
	if ok {
		permCacheHitsTotal.Inc()
		return entry, nil
	}
	permCacheMissesTotal.Inc()

	if err := s.Load(ctx, userID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok = s.cache.Get(userID)
	if !ok {
		// Успели вытеснить между Load и Get — трактуем как пустой набор.
		entry = &userOverrides{
			perms: make(map[string]*model.Permission),
			saved: make(map[string]policy.AccessLevel),
		}
		s.cache.Add(userID, entry)
	}
	return entry, nil
}

// EffectiveAccess вычисляет эффективный уровень доступа пары
// (пользователь, папка). Customized override побеждает безусловно —
// независимо от того, расширяет он дефолт роли или сужает; без
// override возвращается дефолт роли с флагом Inherited.
func (s *PermissionService) EffectiveAccess(userID, folderID, role string) model.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.cache.Get(userID); ok {
		if p, ok := entry.perms[folderID]; ok && p.Customized {
			return *p
		}
	}
	return model.Permission{
		UserID:    userID,
		FolderID:  folderID,
		Access:    policy.DefaultAccess(role),
		Inherited: true,
	}
}

// Matrix возвращает эффективные права пользователя по всем папкам:
// строка на папку, override или унаследованный дефолт роли.
func (s *PermissionService) Matrix(ctx context.Context, userID string, scope model.Scope) ([]*model.Permission, error) {
	entry, err := s.ensureLoaded(ctx, userID)
	if err != nil {
		return nil, err
	}

	folders, err := s.folders.List(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("получение списка папок: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*model.Permission, 0, len(folders))
	for _, f := range folders {
		if p, ok := entry.perms[f.ID]; ok && p.Customized {
			cp := *p
			result = append(result, &cp)
			continue
		}
		result = append(result, &model.Permission{
			UserID:    userID,
			FolderID:  f.ID,
			Access:    policy.DefaultAccess(entry.role),
			Inherited: true,
		})
	}
	return result, nil
}

// SetAccess ставит override пары (пользователь, папка) в рабочем наборе.
// Только память, без записи в БД: изменение становится pending до Save.
// Принимается любая комбинация флагов, включая полностью пустую.
func (s *PermissionService) SetAccess(ctx context.Context, userID, folderID string, access policy.AccessLevel, actor string) (*model.Permission, error) {
	entry, err := s.ensureLoaded(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Набор могли перезагрузить между ensureLoaded и захватом mu —
	// правка должна попасть в актуальный экземпляр.
	if e, ok := s.cache.Get(userID); ok {
		entry = e
	} else {
		s.cache.Add(userID, entry)
	}

	p := &model.Permission{
		UserID:       userID,
		FolderID:     folderID,
		Access:       access,
		Customized:   true,
		Pending:      true,
		LastModified: time.Now().UTC(),
		ModifiedBy:   actor,
	}
	if old, ok := entry.perms[folderID]; ok {
		p.ID = old.ID
	}
	entry.perms[folderID] = p

	cp := *p
	return &cp, nil
}

// ResetToRoleDefault удаляет все customized overrides пользователя
// из рабочего набора. Сам reset — тоже pending-изменение: удаление
// строк из БД происходит при Save. actor — оператор, выполняющий
// reset; попадает в журнал как changed_by удалённых пар.
func (s *PermissionService) ResetToRoleDefault(ctx context.Context, userID, actor string) error {
	if _, err := s.ensureLoaded(ctx, userID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache.Get(userID)
	if !ok {
		return nil
	}
	entry.perms = make(map[string]*model.Permission)
	entry.resetBy = actor
	return nil
}

// bulkUndo — снимок override одного пользователя до bulk-изменения.
type bulkUndo struct {
	userID string
	prev   *model.Permission
	had    bool
}

// ApplyBulk ставит один и тот же уровень доступа на папку для набора
// пользователей (создание или полная замена override, last-write-wins).
// Пустой список пользователей или пустая папка — no-op без ошибки.
// Применение атомарно в памяти: при ошибке на любом пользователе уже
// внесённые изменения откатываются к прежнему состоянию.
// Возвращает материализованные записи; журнал пишется только при Save.
func (s *PermissionService) ApplyBulk(ctx context.Context, userIDs []string, folderID string, access policy.AccessLevel, actor string) ([]*model.Permission, error) {
	if len(userIDs) == 0 || folderID == "" {
		return nil, nil
	}

	applied := make([]bulkUndo, 0, len(userIDs))
	result := make([]*model.Permission, 0, len(userIDs))
	for _, userID := range userIDs {
		undo, err := s.snapshotOverride(ctx, userID, folderID)
		if err != nil {
			s.rollbackBulk(applied, folderID)
			return nil, fmt.Errorf("bulk-изменение для пользователя %s: %w", userID, err)
		}

		p, err := s.SetAccess(ctx, userID, folderID, access, actor)
		if err != nil {
			s.rollbackBulk(applied, folderID)
			return nil, fmt.Errorf("bulk-изменение для пользователя %s: %w", userID, err)
		}
		applied = append(applied, undo)
		result = append(result, p)
	}
	return result, nil
}

// snapshotOverride загружает рабочий набор пользователя и возвращает
// снимок его текущего override на папку для возможного отката.
func (s *PermissionService) snapshotOverride(ctx context.Context, userID, folderID string) (bulkUndo, error) {
	if _, err := s.ensureLoaded(ctx, userID); err != nil {
		return bulkUndo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	undo := bulkUndo{userID: userID}
	if entry, ok := s.cache.Get(userID); ok {
		if p, ok := entry.perms[folderID]; ok {
			cp := *p
			undo.prev = &cp
			undo.had = true
		}
	}
	return undo, nil
}

// rollbackBulk возвращает затронутые bulk-изменением overrides
// к состоянию из снимков, в обратном порядке применения.
func (s *PermissionService) rollbackBulk(applied []bulkUndo, folderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(applied) - 1; i >= 0; i-- {
		undo := applied[i]
		entry, ok := s.cache.Get(undo.userID)
		if !ok {
			continue
		}
		if undo.had {
			entry.perms[folderID] = undo.prev
		} else {
			delete(entry.perms, folderID)
		}
	}
}

// ApplyTemplate замещает overrides пользователя для папок, покрытых
// шаблоном. Только память: изменения становятся pending до Save.
func (s *PermissionService) ApplyTemplate(ctx context.Context, userID, templateID, actor string) error {
	tmpl, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		if err == repository.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("получение шаблона: %w", err)
	}

	for folderID, access := range tmpl.Entries {
		if _, err := s.SetAccess(ctx, userID, folderID, access, actor); err != nil {
			return err
		}
	}

	s.logger.Info("Шаблон применён",
		slog.String("template_id", templateID),
		slog.String("user_id", userID))
	return nil
}

// Save сохраняет накопленные изменения пользователя одной транзакцией:
// upsert по изменённым парам, удаление сброшенных, по записи журнала
// на каждую пару. При ошибке рабочий набор остаётся pending — повтор
// только вручную, автоматических ретраев нет.
func (s *PermissionService) Save(ctx context.Context, userID string) error {
	s.mu.Lock()
	entry, ok := s.cache.Get(userID)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	cs, myGen := s.buildChangeSet(userID, entry)
	s.mu.Unlock()

	if cs.Empty() {
		return nil
	}

	if err := s.writer.Apply(ctx, userID, cs); err != nil {
		permSavesTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка сохранения изменений прав",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return fmt.Errorf("сохранение изменений прав: %w", err)
	}

	permSavesTotal.WithLabelValues("ok").Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen[userID] != myGen {
		// Набор перезагрузили во время записи — состояние уже свежее.
		return nil
	}
	if entry, ok := s.cache.Get(userID); ok {
		s.reconcile(entry, cs)
	}
	s.logger.Info("Изменения прав сохранены",
		slog.String("user_id", userID),
		slog.Int("upserts", len(cs.Upserts)),
		slog.Int("deletes", len(cs.Deletes)))
	return nil
}

// buildChangeSet строит ChangeSet по диффу рабочего набора и последнего
// сохранённого состояния. Вызывается под mu.
func (s *PermissionService) buildChangeSet(userID string, entry *userOverrides) (*repository.ChangeSet, uint64) {
	cs := &repository.ChangeSet{}

	for folderID, p := range entry.perms {
		if !p.Pending {
			continue
		}
		cp := *p
		cs.Upserts = append(cs.Upserts, &cp)

		// Старый уровень для журнала: сохранённый override,
		// иначе дефолт роли.
		old, had := entry.saved[folderID]
		if !had {
			old = policy.DefaultAccess(entry.role)
		}
		cs.History = append(cs.History, &model.PermissionHistory{
			UserID:    userID,
			FolderID:  folderID,
			Action:    policy.DeriveAction(old, p.Access),
			Access:    p.Access,
			ChangedBy: p.ModifiedBy,
		})
	}

	// Сохранённые ранее пары, исчезнувшие из набора — это reset:
	// строка удаляется, эффективный уровень возвращается к дефолту роли.
	// Журнал атрибутирует удаление оператору из последнего reset.
	roleDefault := policy.DefaultAccess(entry.role)
	resetBy := entry.resetBy
	if resetBy == "" {
		resetBy = userID
	}
	for folderID, old := range entry.saved {
		if _, ok := entry.perms[folderID]; ok {
			continue
		}
		cs.Deletes = append(cs.Deletes, folderID)
		cs.History = append(cs.History, &model.PermissionHistory{
			UserID:    userID,
			FolderID:  folderID,
			Action:    policy.DeriveAction(old, roleDefault),
			Access:    roleDefault,
			ChangedBy: resetBy,
		})
	}

	return cs, s.gen[userID]
}

// reconcile переводит записи рабочего набора pending → persisted
// после успешной записи. Вызывается под mu.
func (s *PermissionService) reconcile(entry *userOverrides, cs *repository.ChangeSet) {
	for _, saved := range cs.Upserts {
		p, ok := entry.perms[saved.FolderID]
		if !ok || p.Access != saved.Access {
			// Пару успели поправить ещё раз — она остаётся pending.
			continue
		}
		p.ID = saved.ID
		p.LastModified = saved.LastModified
		p.Pending = false
		entry.saved[saved.FolderID] = saved.Access
	}
	for _, folderID := range cs.Deletes {
		if _, ok := entry.perms[folderID]; !ok {
			delete(entry.saved, folderID)
		}
	}
}

// ListHistory возвращает страницу журнала изменений прав и общее
// количество записей.
func (s *PermissionService) ListHistory(ctx context.Context, limit, offset int) ([]*model.PermissionHistory, int, error) {
	records, err := s.history.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение журнала: %w", err)
	}
	total, err := s.history.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт журнала: %w", err)
	}
	return records, total, nil
}

// ListTemplates возвращает все шаблоны прав.
func (s *PermissionService) ListTemplates(ctx context.Context) ([]*model.PermissionTemplate, error) {
	return s.templates.List(ctx)
}

// CreateTemplate создаёт шаблон прав.
func (s *PermissionService) CreateTemplate(ctx context.Context, t *model.PermissionTemplate) error {
	if t.Name == "" {
		return fmt.Errorf("%w: имя шаблона не задано", ErrValidation)
	}
	if t.Role != "" && !policy.IsValidRole(t.Role) {
		return ErrInvalidRole
	}
	if err := s.templates.Create(ctx, t); err != nil {
		return fmt.Errorf("создание шаблона: %w", err)
	}
	s.logger.Info("Шаблон создан", slog.String("name", t.Name))
	return nil
}
