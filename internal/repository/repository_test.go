package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/fileguard/internal/config"
	"github.com/bigkaa/fileguard/internal/database"
	"github.com/bigkaa/fileguard/internal/domain/model"
	"github.com/bigkaa/fileguard/internal/domain/policy"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool; очистка через t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("fileguard_test"),
		postgres.WithUsername("fileguard"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("FG_DB_HOST", host)
	os.Setenv("FG_DB_PORT", port.Port())
	os.Setenv("FG_DB_NAME", "fileguard_test")
	os.Setenv("FG_DB_USER", "fileguard")
	os.Setenv("FG_DB_PASSWORD", "test-password")
	os.Setenv("FG_DB_SSL_MODE", "disable")
	os.Setenv("FG_IDP_ISSUER", "http://localhost:8080/realms/test")
	os.Setenv("FG_S3_BUCKET", "test-bucket")
	os.Setenv("FG_S3_ACCESS_KEY", "test")
	os.Setenv("FG_S3_SECRET_KEY", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// insertProfile создаёт профиль напрямую: аккаунты приходят из IdP,
// у ProfileRepository нет Create.
func insertProfile(t *testing.T, pool *pgxpool.Pool, name, role string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO profiles (id, name, email, role) VALUES ($1, $2, $3, $4)`,
		id, name, name+"@example.com", role)
	if err != nil {
		t.Fatalf("Создание профиля %s: %v", name, err)
	}
	return id
}

var adminScope = model.Scope{ActorID: "", Role: policy.RoleAdmin}

// --- Тесты ProfileRepository ---

func TestProfileRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewProfileRepository(pool)

	adminID := insertProfile(t, pool, "admin-ivan", policy.RoleAdmin)
	userID := insertProfile(t, pool, "user-anna", policy.RoleUser)
	insertProfile(t, pool, "guest-petr", policy.RoleGuest)

	// List без фильтра
	all, err := repo.List(ctx, ProfileFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List() вернул %d профилей, хотели 3", len(all))
	}

	// Фильтр по роли
	admins, err := repo.List(ctx, ProfileFilter{Role: policy.RoleAdmin}, 10, 0)
	if err != nil {
		t.Fatalf("List(role=admin) ошибка: %v", err)
	}
	if len(admins) != 1 || admins[0].ID != adminID {
		t.Errorf("List(role=admin) вернул %d профилей, хотели 1 (admin-ivan)", len(admins))
	}

	// Поиск по имени
	found, err := repo.List(ctx, ProfileFilter{Search: "anna"}, 10, 0)
	if err != nil {
		t.Fatalf("List(search) ошибка: %v", err)
	}
	if len(found) != 1 || found[0].ID != userID {
		t.Errorf("List(search=anna) вернул %d профилей, хотели 1", len(found))
	}

	// Count с фильтром
	count, err := repo.Count(ctx, ProfileFilter{Role: policy.RoleUser})
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count(role=user) = %d, хотели 1", count)
	}

	// UpdateRole
	if err := repo.UpdateRole(ctx, userID, policy.RoleAdmin); err != nil {
		t.Fatalf("UpdateRole() ошибка: %v", err)
	}
	got, err := repo.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Role != policy.RoleAdmin {
		t.Errorf("После UpdateRole: Role = %q, хотели %q", got.Role, policy.RoleAdmin)
	}

	// UpdateBanned — бан, не удаление
	if err := repo.UpdateBanned(ctx, userID, true, model.StatusSuspended); err != nil {
		t.Fatalf("UpdateBanned() ошибка: %v", err)
	}
	got2, _ := repo.GetByID(ctx, userID)
	if !got2.Banned || got2.Status != model.StatusSuspended {
		t.Errorf("После бана: Banned=%v, Status=%q", got2.Banned, got2.Status)
	}

	// GetByID несуществующего
	if _, err := repo.GetByID(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID несуществующего: ожидали ErrNotFound, получили %v", err)
	}
}

// --- Тесты FolderRepository ---

func TestFolderScopedList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFolderRepository(pool)

	aliceID := insertProfile(t, pool, "alice", policy.RoleUser)
	bobID := insertProfile(t, pool, "bob", policy.RoleUser)

	fa := &model.Folder{Name: "Финансы", OwnerID: aliceID}
	fb := &model.Folder{Name: "Кадры", OwnerID: bobID}
	if err := repo.Create(ctx, fa); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := repo.Create(ctx, fb); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if fa.ID == "" || fa.CreatedAt.IsZero() {
		t.Error("ID/CreatedAt не установлены после Create")
	}

	// Администратор видит всё
	all, err := repo.List(ctx, adminScope)
	if err != nil {
		t.Fatalf("List(admin) ошибка: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List(admin) вернул %d папок, хотели 2", len(all))
	}

	// Обычный пользователь — только свои
	own, err := repo.List(ctx, model.Scope{ActorID: aliceID, Role: policy.RoleUser})
	if err != nil {
		t.Fatalf("List(user) ошибка: %v", err)
	}
	if len(own) != 1 || own[0].ID != fa.ID {
		t.Errorf("List(user) вернул %d папок, хотели 1 (свою)", len(own))
	}
}

func TestFolderSubtreeAndCascade(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	folderRepo := NewFolderRepository(pool)
	fileRepo := NewFileRepository(pool)

	ownerID := insertProfile(t, pool, "owner", policy.RoleUser)

	root := &model.Folder{Name: "root", OwnerID: ownerID}
	if err := folderRepo.Create(ctx, root); err != nil {
		t.Fatalf("Создание root: %v", err)
	}
	child := &model.Folder{Name: "child", OwnerID: ownerID, ParentID: &root.ID}
	if err := folderRepo.Create(ctx, child); err != nil {
		t.Fatalf("Создание child: %v", err)
	}

	f1 := &model.File{Name: "a.txt", ObjectKey: ownerID + "/1-a.txt", OwnerID: ownerID, FolderID: &root.ID}
	f2 := &model.File{Name: "b.txt", ObjectKey: ownerID + "/2-b.txt", OwnerID: ownerID, FolderID: &child.ID}
	if err := fileRepo.Create(ctx, f1); err != nil {
		t.Fatalf("Создание файла: %v", err)
	}
	if err := fileRepo.Create(ctx, f2); err != nil {
		t.Fatalf("Создание файла: %v", err)
	}

	// SubtreeObjectKeys собирает ключи по всему поддереву
	keys, err := folderRepo.SubtreeObjectKeys(ctx, root.ID)
	if err != nil {
		t.Fatalf("SubtreeObjectKeys() ошибка: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("SubtreeObjectKeys вернул %d ключей, хотели 2: %v", len(keys), keys)
	}

	// AdjustFileCount не уходит ниже нуля
	if err := folderRepo.AdjustFileCount(ctx, root.ID, -5); err != nil {
		t.Fatalf("AdjustFileCount() ошибка: %v", err)
	}
	got, _ := folderRepo.GetByID(ctx, root.ID)
	if got.FileCount != 0 {
		t.Errorf("FileCount = %d, хотели 0", got.FileCount)
	}

	// Удаление root каскадно убирает child и файлы
	if err := folderRepo.Delete(ctx, root.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := folderRepo.GetByID(ctx, child.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("child после каскада: ожидали ErrNotFound, получили %v", err)
	}
	if _, err := fileRepo.GetByID(ctx, f2.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("файл после каскада: ожидали ErrNotFound, получили %v", err)
	}
}

// --- Тесты FileRepository ---

func TestFileRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	folderRepo := NewFolderRepository(pool)
	fileRepo := NewFileRepository(pool)

	ownerID := insertProfile(t, pool, "uploader", policy.RoleUser)
	folder := &model.Folder{Name: "docs", OwnerID: ownerID}
	if err := folderRepo.Create(ctx, folder); err != nil {
		t.Fatalf("Создание папки: %v", err)
	}

	inFolder := &model.File{
		Name: "report.pdf", ObjectKey: ownerID + "/10-report.pdf",
		SizeBytes: 2048, ContentType: "application/pdf",
		OwnerID: ownerID, FolderID: &folder.ID,
	}
	atRoot := &model.File{
		Name: "notes.txt", ObjectKey: ownerID + "/11-notes.txt",
		OwnerID: ownerID,
	}
	if err := fileRepo.Create(ctx, inFolder); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if err := fileRepo.Create(ctx, atRoot); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Дублирующийся object_key — ErrConflict
	dup := &model.File{Name: "copy.pdf", ObjectKey: inFolder.ObjectKey, OwnerID: ownerID}
	if err := fileRepo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Дубликат object_key: ожидали ErrConflict, получили %v", err)
	}

	// List по папке и по корню
	list, err := fileRepo.List(ctx, adminScope, &folder.ID)
	if err != nil {
		t.Fatalf("List(folder) ошибка: %v", err)
	}
	if len(list) != 1 || list[0].ID != inFolder.ID {
		t.Errorf("List(folder) вернул %d файлов, хотели 1", len(list))
	}
	rootList, err := fileRepo.List(ctx, adminScope, nil)
	if err != nil {
		t.Fatalf("List(root) ошибка: %v", err)
	}
	if len(rootList) != 1 || rootList[0].ID != atRoot.ID {
		t.Errorf("List(root) вернул %d файлов, хотели 1", len(rootList))
	}

	// Delete
	if err := fileRepo.Delete(ctx, atRoot.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if _, err := fileRepo.GetByID(ctx, atRoot.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("После Delete ожидали ErrNotFound, получили %v", err)
	}
}

// --- Тесты PermissionRepository ---

func TestPermissionUpsert(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	folderRepo := NewFolderRepository(pool)
	permRepo := NewPermissionRepository(pool)

	adminID := insertProfile(t, pool, "admin", policy.RoleAdmin)
	userID := insertProfile(t, pool, "member", policy.RoleUser)
	folder := &model.Folder{Name: "Финансы", OwnerID: adminID}
	if err := folderRepo.Create(ctx, folder); err != nil {
		t.Fatalf("Создание папки: %v", err)
	}

	p := &model.Permission{
		UserID:     userID,
		FolderID:   folder.ID,
		Access:     policy.AccessLevel{View: true, Edit: true},
		ModifiedBy: adminID,
	}

	// Upsert (создание)
	if err := permRepo.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	if p.ID == "" {
		t.Error("ID не установлен после Upsert")
	}
	firstID := p.ID

	// Повторный Upsert той же пары обновляет, а не дублирует
	p.Access = policy.AccessLevel{View: true}
	if err := permRepo.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() повторный ошибка: %v", err)
	}
	if p.ID != firstID {
		t.Errorf("Повторный Upsert создал новую запись: %s != %s", p.ID, firstID)
	}

	list, err := permRepo.ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListByUser() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListByUser() вернул %d записей, хотели 1", len(list))
	}
	if !list[0].Customized || list[0].Inherited {
		t.Error("Запись из БД должна читаться как Customized, не Inherited")
	}
	if list[0].Access.Edit {
		t.Error("Edit должен быть снят после повторного Upsert")
	}

	// DeleteByUserFolder: отсутствие записи — не ошибка
	if err := permRepo.DeleteByUserFolder(ctx, userID, uuid.New().String()); err != nil {
		t.Errorf("DeleteByUserFolder несуществующей пары: %v", err)
	}

	// DeleteAllForUser
	if err := permRepo.DeleteAllForUser(ctx, userID); err != nil {
		t.Fatalf("DeleteAllForUser() ошибка: %v", err)
	}
	empty, _ := permRepo.ListByUser(ctx, userID)
	if len(empty) != 0 {
		t.Errorf("После DeleteAllForUser осталось %d записей", len(empty))
	}
}

// --- Тесты HistoryRepository ---

func TestHistoryAppendAndList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	folderRepo := NewFolderRepository(pool)
	histRepo := NewHistoryRepository(pool)

	adminID := insertProfile(t, pool, "admin-olga", policy.RoleAdmin)
	userID := insertProfile(t, pool, "user-dima", policy.RoleUser)
	folder := &model.Folder{Name: "Отчёты", OwnerID: adminID}
	if err := folderRepo.Create(ctx, folder); err != nil {
		t.Fatalf("Создание папки: %v", err)
	}

	h := &model.PermissionHistory{
		UserID:    userID,
		FolderID:  folder.ID,
		Action:    policy.ActionGranted,
		Access:    policy.AccessLevel{View: true, Upload: true},
		ChangedBy: adminID,
	}
	if err := histRepo.Append(ctx, h); err != nil {
		t.Fatalf("Append() ошибка: %v", err)
	}
	if h.ID == "" || h.CreatedAt.IsZero() {
		t.Error("ID/CreatedAt не установлены после Append")
	}

	list, err := histRepo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("List() вернул %d записей, хотели 1", len(list))
	}
	got := list[0]
	if got.UserName != "user-dima" || got.FolderName != "Отчёты" || got.ChangedByName != "admin-olga" {
		t.Errorf("JOIN-имена: user=%q folder=%q changedBy=%q",
			got.UserName, got.FolderName, got.ChangedByName)
	}
	if !got.Access.View || !got.Access.Upload || got.Access.Edit {
		t.Errorf("Access из jsonb: %+v", got.Access)
	}

	// Журнал переживает удаление папки: запись остаётся, имя пустеет
	if err := folderRepo.Delete(ctx, folder.ID); err != nil {
		t.Fatalf("Удаление папки: %v", err)
	}
	list2, err := histRepo.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List() после удаления папки ошибка: %v", err)
	}
	if len(list2) != 1 {
		t.Fatalf("Журнал потерял записи после удаления папки: %d", len(list2))
	}
	if list2[0].FolderName != "" {
		t.Errorf("FolderName после удаления папки = %q, хотели пустое", list2[0].FolderName)
	}

	count, err := histRepo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, хотели 1", count)
	}
}

// --- Тесты TemplateRepository ---

func TestTemplateRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	folderRepo := NewFolderRepository(pool)
	tmplRepo := NewTemplateRepository(pool)

	adminID := insertProfile(t, pool, "admin", policy.RoleAdmin)
	folder := &model.Folder{Name: "Общие", OwnerID: adminID}
	if err := folderRepo.Create(ctx, folder); err != nil {
		t.Fatalf("Создание папки: %v", err)
	}

	tmpl := &model.PermissionTemplate{
		Name:        "Только чтение",
		Description: "Просмотр без изменений",
		Role:        policy.RoleGuest,
		Entries: map[string]policy.AccessLevel{
			folder.ID: {View: true},
		},
		CreatedBy: adminID,
	}
	if err := tmplRepo.Create(ctx, tmpl); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if tmpl.ID == "" {
		t.Error("ID не установлен после Create")
	}

	got, err := tmplRepo.GetByID(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	entry, ok := got.Entries[folder.ID]
	if !ok || !entry.View || entry.Edit {
		t.Errorf("Entries из jsonb: %+v", got.Entries)
	}

	list, err := tmplRepo.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() вернул %d шаблонов, хотели 1", len(list))
	}

	if _, err := tmplRepo.GetByID(ctx, uuid.New().String()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID несуществующего: ожидали ErrNotFound, получили %v", err)
	}
}

// --- Тесты RequestRepository ---

func TestRequestLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	folderRepo := NewFolderRepository(pool)
	reqRepo := NewRequestRepository(pool)

	adminID := insertProfile(t, pool, "admin", policy.RoleAdmin)
	userID := insertProfile(t, pool, "requester", policy.RoleUser)
	folder := &model.Folder{Name: "Проекты", OwnerID: adminID}
	if err := folderRepo.Create(ctx, folder); err != nil {
		t.Fatalf("Создание папки: %v", err)
	}

	req := &model.PermissionRequest{
		UserID:    userID,
		FolderID:  folder.ID,
		Requested: "upload",
		Reason:    "нужно загружать отчёты",
	}
	if err := reqRepo.Create(ctx, req); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if req.Status != model.RequestPending {
		t.Errorf("Status = %q, хотели %q", req.Status, model.RequestPending)
	}

	pending, err := reqRepo.ListByStatus(ctx, model.RequestPending)
	if err != nil {
		t.Fatalf("ListByStatus() ошибка: %v", err)
	}
	if len(pending) != 1 || pending[0].UserName != "requester" {
		t.Errorf("ListByStatus(pending): %d записей", len(pending))
	}

	// Решение по заявке
	if err := reqRepo.Decide(ctx, req.ID, model.RequestApproved, adminID); err != nil {
		t.Fatalf("Decide() ошибка: %v", err)
	}
	got, err := reqRepo.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Status != model.RequestApproved || got.DecidedBy == nil || got.DecidedAt == nil {
		t.Errorf("После Decide: Status=%q DecidedBy=%v DecidedAt=%v",
			got.Status, got.DecidedBy, got.DecidedAt)
	}

	// Повторное решение по уже решённой заявке — конфликт
	if err := reqRepo.Decide(ctx, req.ID, model.RequestRejected, adminID); !errors.Is(err, ErrConflict) {
		t.Errorf("Повторный Decide: ожидали ErrConflict, получили %v", err)
	}

	// Решение по несуществующей заявке
	if err := reqRepo.Decide(ctx, uuid.New().String(), model.RequestApproved, adminID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Decide несуществующей: ожидали ErrNotFound, получили %v", err)
	}
}

// --- Тесты TxRunner ---

func TestTxRunnerRollback(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	folderRepo := NewFolderRepository(pool)
	runner := NewTxRunner(pool)

	adminID := insertProfile(t, pool, "admin", policy.RoleAdmin)
	userID := insertProfile(t, pool, "member", policy.RoleUser)
	folder := &model.Folder{Name: "tx", OwnerID: adminID}
	if err := folderRepo.Create(ctx, folder); err != nil {
		t.Fatalf("Создание папки: %v", err)
	}

	boom := errors.New("boom")
	err := runner.RunInTx(ctx, func(tx pgx.Tx) error {
		permRepo := NewPermissionRepository(tx)
		p := &model.Permission{
			UserID: userID, FolderID: folder.ID,
			Access: policy.FullAccess(), ModifiedBy: adminID,
		}
		if err := permRepo.Upsert(ctx, p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx: ожидали boom, получили %v", err)
	}

	// Откат: override не сохранился
	list, err := NewPermissionRepository(pool).ListByUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListByUser() ошибка: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("После отката осталось %d записей", len(list))
	}
}
