package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/fileguard/internal/domain/model"
)

// ChangeSet — накопленные изменения overrides одного пользователя,
// применяемые атомарно: либо записывается всё вместе с журналом,
// либо ничего.
type ChangeSet struct {
	// Upserts — создаваемые или обновляемые overrides.
	// После успешного применения у записей заполнены ID и LastModified.
	Upserts []*model.Permission
	// Deletes — folderID overrides, подлежащих удалению (reset).
	Deletes []string
	// History — записи журнала, по одной на каждую изменённую пару.
	History []*model.PermissionHistory
}

// Empty сообщает, что изменений нет.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Upserts) == 0 && len(cs.Deletes) == 0
}

// ChangeWriter применяет ChangeSet в одной транзакции.
type ChangeWriter interface {
	Apply(ctx context.Context, userID string, cs *ChangeSet) error
}

// changeWriter — реализация ChangeWriter поверх TxRunner.
type changeWriter struct {
	runner *TxRunner
}

// NewChangeWriter создаёт писатель изменений overrides.
func NewChangeWriter(runner *TxRunner) ChangeWriter {
	return &changeWriter{runner: runner}
}

func (w *changeWriter) Apply(ctx context.Context, userID string, cs *ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	return w.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		perms := NewPermissionRepository(tx)
		history := NewHistoryRepository(tx)

		for _, p := range cs.Upserts {
			if err := perms.Upsert(ctx, p); err != nil {
				return err
			}
		}
		for _, folderID := range cs.Deletes {
			if err := perms.DeleteByUserFolder(ctx, userID, folderID); err != nil {
				return err
			}
		}
		// Журнал пишется той же транзакцией: запись появляется только
		// вместе с самим изменением.
		for _, h := range cs.History {
			if err := history.Append(ctx, h); err != nil {
				return err
			}
		}
		return nil
	})
}
