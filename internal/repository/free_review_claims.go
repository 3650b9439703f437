package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// FreeReviewClaimRepository — заявки на бесплатную рецензию.
// Backend считает использованные бесплатные рецензии только после перехода
// публикации в pending; заявки закрывают окно между проверкой счётчика и PATCH.
type FreeReviewClaimRepository interface {
	// Claim атомарно резервирует бесплатную рецензию, если
	// backendUsed + активные заявки пользователя < limit.
	Claim(ctx context.Context, claim *model.FreeReviewClaim, backendUsed, limit int) error
	// Release удаляет заявку после ответа backend.
	Release(ctx context.Context, claimID string) error
	// Active возвращает количество активных заявок пользователя.
	Active(ctx context.Context, userID string) (int, error)
}

type freeReviewClaimRepo struct {
	tx *TxRunner
	db DBTX
	// staleAfter — заявки старше считаются брошенными (сбой процесса до Release).
	staleAfter time.Duration
}

// NewFreeReviewClaimRepository создаёт репозиторий заявок.
func NewFreeReviewClaimRepository(db DBTX, staleAfter time.Duration) FreeReviewClaimRepository {
	return &freeReviewClaimRepo{
		tx:         NewTxRunner(db),
		db:         db,
		staleAfter: staleAfter,
	}
}

func (r *freeReviewClaimRepo) Claim(ctx context.Context, claim *model.FreeReviewClaim, backendUsed, limit int) error {
	if claim.ID == "" {
		claim.ID = uuid.New().String()
	}
	cutoff := time.Now().Add(-r.staleAfter)

	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		// Строка-замок сериализует конкурентные заявки одного пользователя
		_, err := tx.Exec(ctx, `
			INSERT INTO free_review_locks (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()`, claim.UserID)
		if err != nil {
			return fmt.Errorf("ошибка блокировки заявок: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM free_review_claims WHERE user_id = $1 AND created_at < $2`,
			claim.UserID, cutoff,
		); err != nil {
			return fmt.Errorf("ошибка очистки брошенных заявок: %w", err)
		}

		var active int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM free_review_claims WHERE user_id = $1`, claim.UserID,
		).Scan(&active); err != nil {
			return fmt.Errorf("ошибка подсчёта заявок: %w", err)
		}
		if backendUsed+active >= limit {
			return ErrLimitReached
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO free_review_claims (id, user_id, publication_id, transition)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at`,
			claim.ID, claim.UserID, claim.PublicationID, claim.Transition,
		).Scan(&claim.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("заявка для публикации %s: %w", claim.PublicationID, ErrConflict)
			}
			return fmt.Errorf("ошибка создания заявки: %w", err)
		}
		return nil
	})
}

func (r *freeReviewClaimRepo) Release(ctx context.Context, claimID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM free_review_claims WHERE id = $1`, claimID)
	if err != nil {
		return fmt.Errorf("ошибка удаления заявки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *freeReviewClaimRepo) Active(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM free_review_claims WHERE user_id = $1 AND created_at >= $2`,
		userID, time.Now().Add(-r.staleAfter),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта заявок: %w", err)
	}
	return n, nil
}
