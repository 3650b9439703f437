package model

import "time"

// PaymentRecord — запись локального журнала платёжных reference.
type PaymentRecord struct {
	Reference string
	UserID    string
	// PublicationID — пусто, пока платёж не привязан к публикации.
	PublicationID string
	PaymentType   PaymentType
	Amount        string
	Status        PaymentStatus
	// ConsumedAt/ConsumedBy — переход, оплаченный этим reference.
	ConsumedAt *time.Time
	ConsumedBy string
	CreatedAt  time.Time
	VerifiedAt *time.Time
}

// IsConsumed сообщает, что reference уже использован.
func (r *PaymentRecord) IsConsumed() bool {
	return r.ConsumedAt != nil
}

// FreeReviewClaim — заявка на бесплатную рецензию, ещё не учтённая backend.
type FreeReviewClaim struct {
	ID            string
	UserID        string
	PublicationID string
	Transition    string
	CreatedAt     time.Time
}
