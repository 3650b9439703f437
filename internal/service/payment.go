// payment.go — платёжный шлюз: инициализация, проверка и однократное
// использование платёжных reference.
//
// Каждый reference записывается в локальный журнал (payment_references).
// Успешно проверенный reference может оплатить ровно один переход публикации.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/domain/model"
	"github.com/bigkaa/journivo/internal/repository"
)

var paymentOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jv_payment_operations_total",
	Help: "Операции платёжного шлюза по результатам.",
}, []string{"operation", "result"})

// PaymentService — платёжный шлюз.
type PaymentService struct {
	backend     *backend.Client
	ledger      repository.PaymentLedgerRepository
	callbackURL string
	logger      *slog.Logger
}

// NewPaymentService создаёт платёжный шлюз.
func NewPaymentService(
	backendClient *backend.Client,
	ledger repository.PaymentLedgerRepository,
	callbackURL string,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		backend:     backendClient,
		ledger:      ledger,
		callbackURL: callbackURL,
		logger:      logger.With(slog.String("component", "payment_gate")),
	}
}

// Initialize открывает платёж и записывает reference в журнал.
// publicationID может быть пустым. Повторов при сбое нет.
func (s *PaymentService) Initialize(
	ctx context.Context,
	userID, publicationID string,
	paymentType model.PaymentType,
) (*model.PaymentInit, error) {
	if !paymentType.IsValid() {
		return nil, fmt.Errorf("%w: недопустимый тип платежа %q", ErrValidation, paymentType)
	}

	payment, err := s.backend.InitializePayment(ctx, publicationID, paymentType, s.callbackURL)
	if err != nil {
		paymentOperationsTotal.WithLabelValues("initialize", "error").Inc()
		return nil, gateError("initialize", err)
	}

	rec := &model.PaymentRecord{
		Reference:     payment.Reference,
		UserID:        userID,
		PublicationID: publicationID,
		PaymentType:   paymentType,
		Status:        model.PaymentPending,
	}
	if err := s.ledger.Record(ctx, rec); err != nil {
		// Проверка платежа создаст запись заново
		s.logger.Warn("Не удалось записать reference в журнал",
			slog.String("reference", payment.Reference),
			slog.String("error", err.Error()),
		)
	}

	paymentOperationsTotal.WithLabelValues("initialize", "ok").Inc()
	s.logger.Info("Платёж инициализирован",
		slog.String("reference", payment.Reference),
		slog.String("user_id", userID),
		slog.String("publication_id", publicationID),
		slog.String("payment_type", string(paymentType)),
	)
	return payment, nil
}

// Verify проверяет платёж. Идемпотентна: reference, уже подтверждённый
// в журнале, возвращается без обращения к backend.
func (s *PaymentService) Verify(ctx context.Context, userID, reference string) (*model.PaymentRecord, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, fmt.Errorf("%w: reference обязателен", ErrValidation)
	}

	known, err := s.ledger.Get(ctx, reference)
	switch {
	case err == nil:
		if known.UserID != userID {
			return nil, ErrReferenceMismatch
		}
		if known.Status == model.PaymentSuccess {
			paymentOperationsTotal.WithLabelValues("verify", "cached").Inc()
			return known, nil
		}
	case errors.Is(err, repository.ErrNotFound):
		known = nil
	default:
		return nil, fmt.Errorf("чтение журнала платежей: %w", err)
	}

	v, err := s.backend.VerifyPayment(ctx, reference)
	if err != nil {
		paymentOperationsTotal.WithLabelValues("verify", "error").Inc()
		return nil, gateError("verify", err)
	}

	rec := &model.PaymentRecord{
		Reference:     reference,
		UserID:        userID,
		PublicationID: v.Metadata.PublicationID,
		PaymentType:   model.PaymentType(v.Metadata.PaymentType),
		Amount:        v.Amount.String(),
		Status:        v.Status,
	}
	if known != nil {
		if rec.PublicationID == "" {
			rec.PublicationID = known.PublicationID
		}
		if !rec.PaymentType.IsValid() {
			rec.PaymentType = known.PaymentType
		}
	}
	if !rec.PaymentType.IsValid() {
		return nil, &GateError{Op: "verify", Err: fmt.Errorf("неизвестное назначение платежа %q", v.Metadata.PaymentType)}
	}
	if rec.Status == "" {
		rec.Status = model.PaymentPending
	}

	saved, err := s.ledger.SaveVerification(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("сохранение проверки платежа: %w", err)
	}

	paymentOperationsTotal.WithLabelValues("verify", string(saved.Status)).Inc()
	s.logger.Info("Платёж проверен",
		slog.String("reference", reference),
		slog.String("status", string(saved.Status)),
	)
	return saved, nil
}

// Consume связывает подтверждённый reference с переходом публикации.
// Повторное использование — ErrReferenceConsumed; чужая публикация или
// другое назначение платежа — ErrReferenceMismatch.
func (s *PaymentService) Consume(
	ctx context.Context,
	userID, reference, publicationID string,
	expected model.PaymentType,
	transition string,
) (*model.PaymentRecord, error) {
	rec, err := s.Verify(ctx, userID, reference)
	if err != nil {
		return nil, err
	}
	if rec.Status != model.PaymentSuccess {
		return nil, ErrPaymentNotVerified
	}
	if rec.PaymentType != expected {
		return nil, ErrReferenceMismatch
	}

	consumed, err := s.ledger.Consume(ctx, reference, publicationID, consumedBy(transition, publicationID))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyConsumed):
			return nil, ErrReferenceConsumed
		case errors.Is(err, repository.ErrPublicationMismatch):
			return nil, ErrReferenceMismatch
		case errors.Is(err, repository.ErrNotVerified):
			return nil, ErrPaymentNotVerified
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		default:
			return nil, fmt.Errorf("использование reference: %w", err)
		}
	}

	paymentOperationsTotal.WithLabelValues("consume", "ok").Inc()
	return consumed, nil
}

// Release возвращает reference, если оплаченный переход не состоялся.
func (s *PaymentService) Release(ctx context.Context, reference, publicationID, transition string) {
	if err := s.ledger.Release(ctx, reference, consumedBy(transition, publicationID)); err != nil {
		s.logger.Error("Не удалось освободить reference",
			slog.String("reference", reference),
			slog.String("error", err.Error()),
		)
	}
}

// History возвращает историю платежей пользователя.
func (s *PaymentService) History(ctx context.Context) ([]model.Payment, error) {
	return s.backend.PaymentHistory(ctx)
}

// Details возвращает платёж по reference.
func (s *PaymentService) Details(ctx context.Context, reference string) (*model.Payment, error) {
	p, err := s.backend.PaymentDetails(ctx, reference)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

// Refund запрашивает возврат платежа.
func (s *PaymentService) Refund(ctx context.Context, req model.RefundRequest) (json.RawMessage, error) {
	req.Reference = strings.TrimSpace(req.Reference)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reference == "" || req.Reason == "" {
		return nil, fmt.Errorf("%w: reference и reason обязательны", ErrValidation)
	}
	raw, err := s.backend.RequestRefund(ctx, req)
	if err != nil {
		return nil, gateError("refund", err)
	}
	s.logger.Info("Запрошен возврат платежа", slog.String("reference", req.Reference))
	return raw, nil
}

// FreeReviewStatus возвращает счётчик бесплатных рецензий.
func (s *PaymentService) FreeReviewStatus(ctx context.Context) (*model.FreeReviewStatus, error) {
	return s.backend.FreeReviewStatus(ctx)
}

// Subscription возвращает подписку пользователя.
func (s *PaymentService) Subscription(ctx context.Context) (*model.Subscription, error) {
	sub, err := s.backend.Subscription(ctx)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	return sub, err
}

func consumedBy(transition, publicationID string) string {
	return transition + ":" + publicationID
}
