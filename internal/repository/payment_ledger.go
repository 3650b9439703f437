package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// PaymentLedgerRepository — журнал платёжных reference (таблица payment_references).
type PaymentLedgerRepository interface {
	// Record сохраняет новый reference после инициализации платежа.
	Record(ctx context.Context, rec *model.PaymentRecord) error
	// Get возвращает запись по reference.
	Get(ctx context.Context, reference string) (*model.PaymentRecord, error)
	// SaveVerification сохраняет результат проверки платежа.
	// Статус success окончательный и не перезаписывается.
	SaveVerification(ctx context.Context, rec *model.PaymentRecord) (*model.PaymentRecord, error)
	// Consume привязывает подтверждённый reference к переходу публикации.
	Consume(ctx context.Context, reference, publicationID, consumedBy string) (*model.PaymentRecord, error)
	// Release отменяет Consume, если переход на backend не состоялся.
	Release(ctx context.Context, reference, consumedBy string) error
}

type paymentLedgerRepo struct {
	db DBTX
}

// NewPaymentLedgerRepository создаёт репозиторий журнала платежей.
func NewPaymentLedgerRepository(db DBTX) PaymentLedgerRepository {
	return &paymentLedgerRepo{db: db}
}

const paymentColumns = `reference, user_id, COALESCE(publication_id, ''), payment_type, amount,
	status, consumed_at, COALESCE(consumed_by, ''), created_at, verified_at`

func scanPayment(row pgx.Row) (*model.PaymentRecord, error) {
	rec := &model.PaymentRecord{}
	err := row.Scan(
		&rec.Reference, &rec.UserID, &rec.PublicationID, &rec.PaymentType, &rec.Amount,
		&rec.Status, &rec.ConsumedAt, &rec.ConsumedBy, &rec.CreatedAt, &rec.VerifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *paymentLedgerRepo) Record(ctx context.Context, rec *model.PaymentRecord) error {
	query := `
		INSERT INTO payment_references (reference, user_id, publication_id, payment_type, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	if rec.Status == "" {
		rec.Status = model.PaymentPending
	}
	err := r.db.QueryRow(ctx, query,
		rec.Reference, rec.UserID, nullString(rec.PublicationID), rec.PaymentType, rec.Amount, rec.Status,
	).Scan(&rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("reference %s: %w", rec.Reference, ErrConflict)
		}
		return fmt.Errorf("ошибка записи reference: %w", err)
	}
	return nil
}

func (r *paymentLedgerRepo) Get(ctx context.Context, reference string) (*model.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_references WHERE reference = $1`

	rec, err := scanPayment(r.db.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения reference: %w", err)
	}
	return rec, nil
}

func (r *paymentLedgerRepo) SaveVerification(ctx context.Context, rec *model.PaymentRecord) (*model.PaymentRecord, error) {
	query := `
		INSERT INTO payment_references
			(reference, user_id, publication_id, payment_type, amount, status, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (reference) DO UPDATE SET
			status         = EXCLUDED.status,
			amount         = CASE WHEN EXCLUDED.amount <> '' THEN EXCLUDED.amount ELSE payment_references.amount END,
			publication_id = COALESCE(payment_references.publication_id, EXCLUDED.publication_id),
			verified_at    = NOW()
		WHERE payment_references.status <> 'success'
		RETURNING ` + paymentColumns

	saved, err := scanPayment(r.db.QueryRow(ctx, query,
		rec.Reference, rec.UserID, nullString(rec.PublicationID), rec.PaymentType, rec.Amount, rec.Status,
	))
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка сохранения проверки платежа: %w", err)
	}

	// Запись уже в статусе success — возвращаем её без изменений
	return r.Get(ctx, rec.Reference)
}

func (r *paymentLedgerRepo) Consume(ctx context.Context, reference, publicationID, consumedBy string) (*model.PaymentRecord, error) {
	query := `
		UPDATE payment_references SET
			consumed_at    = NOW(),
			consumed_by    = $3,
			publication_id = COALESCE(publication_id, $2)
		WHERE reference = $1
		  AND status = 'success'
		  AND consumed_at IS NULL
		  AND (publication_id IS NULL OR publication_id = $2)
		RETURNING ` + paymentColumns

	rec, err := scanPayment(r.db.QueryRow(ctx, query, reference, publicationID, consumedBy))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ошибка использования reference: %w", err)
	}

	// Определяем причину отказа
	current, getErr := r.Get(ctx, reference)
	if getErr != nil {
		return nil, getErr
	}
	switch {
	case current.IsConsumed():
		return nil, ErrAlreadyConsumed
	case current.Status != model.PaymentSuccess:
		return nil, ErrNotVerified
	default:
		return nil, ErrPublicationMismatch
	}
}

func (r *paymentLedgerRepo) Release(ctx context.Context, reference, consumedBy string) error {
	query := `
		UPDATE payment_references SET consumed_at = NULL, consumed_by = NULL
		WHERE reference = $1 AND consumed_by = $2`

	tag, err := r.db.Exec(ctx, query, reference, consumedBy)
	if err != nil {
		return fmt.Errorf("ошибка освобождения reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
