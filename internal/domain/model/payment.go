package model

import (
	"encoding/json"
	"time"
)

// PaymentType — назначение платежа.
type PaymentType string

const (
	// PaymentPublicationFee — оплата первичной отправки публикации.
	PaymentPublicationFee PaymentType = "publication_fee"
	// PaymentReviewFee — оплата повторного рецензирования.
	PaymentReviewFee PaymentType = "review_fee"
)

// IsValid проверяет допустимость типа платежа.
func (t PaymentType) IsValid() bool {
	return t == PaymentPublicationFee || t == PaymentReviewFee
}

// PaymentStatus — статус платежа у платёжного шлюза.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Payment — платёж из истории платежей backend.
type Payment struct {
	Reference   string          `json:"reference"`
	Amount      json.Number     `json:"amount"`
	PaymentType PaymentType     `json:"payment_type"`
	Status      PaymentStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	Metadata    PaymentMetadata `json:"metadata"`
}

// PaymentMetadata — метаданные платежа; publication_id может отсутствовать.
type PaymentMetadata struct {
	PublicationID string `json:"publication_id,omitempty"`
	PaymentType   string `json:"payment_type,omitempty"`
}

// PaymentInit — ответ инициализации платежа.
type PaymentInit struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	AccessCode       string `json:"access_code,omitempty"`
}

// PaymentVerification — результат проверки платежа по reference.
type PaymentVerification struct {
	Reference string          `json:"reference"`
	Status    PaymentStatus   `json:"status"`
	Amount    json.Number     `json:"amount,omitempty"`
	Metadata  PaymentMetadata `json:"metadata"`
}

// RefundRequest — запрос на возврат платежа.
type RefundRequest struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// FreeReviewStatus — счётчик бесплатных рецензий автора.
type FreeReviewStatus struct {
	FreeReviewsUsed        int  `json:"free_reviews_used"`
	FreeReviewsGranted     bool `json:"free_reviews_granted"`
	HasFreeReviewAvailable bool `json:"has_free_review_available"`
}

// Subscription — подписка автора (счётчик бесплатных рецензий на стороне backend).
type Subscription struct {
	User            string `json:"user"`
	FreeReviewsUsed int    `json:"free_reviews_used"`
}
