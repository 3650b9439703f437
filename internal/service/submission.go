// submission.go — создание, отправка и переотправка публикаций.
//
// Переходы draft → pending и rejected → pending требуют ровно одного из:
// свободная бесплатная рецензия (заявка в free_review_claims) или
// подтверждённый и ещё не использованный платёж за эту публикацию.
// Многошаговые сценарии — последовательность независимых вызовов backend;
// при сбое любого шага статус публикации не меняется.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/domain/lifecycle"
	"github.com/bigkaa/journivo/internal/domain/model"
	"github.com/bigkaa/journivo/internal/domain/validation"
	"github.com/bigkaa/journivo/internal/repository"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jv_submissions_total",
		Help: "Переходы публикаций в pending по операциям и способу оплаты.",
	}, []string{"operation", "gate"}) // gate: free, paid, payment_required, error

	draftAutosaveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jv_draft_autosave_failures_total",
		Help: "Неудачные автосохранения черновика перед переотправкой.",
	})
)

// Операции для InFlightGuard и журнала платежей.
const (
	opCreate   = "create"
	opSubmit   = "submit"
	opResubmit = "resubmit"
)

// OutcomeKind — итог операции отправки.
type OutcomeKind string

const (
	// OutcomeSubmitted — публикация переведена в pending.
	OutcomeSubmitted OutcomeKind = "submitted"
	// OutcomePaymentRequired — бесплатной рецензии нет, открыт платёж.
	OutcomePaymentRequired OutcomeKind = "payment_required"
	// OutcomeDraft — публикация создана и осталась черновиком.
	OutcomeDraft OutcomeKind = "draft"
)

// SubmissionOutcome — результат создания или (пере)отправки.
type SubmissionOutcome struct {
	Kind         OutcomeKind        `json:"outcome"`
	Publication  *model.Publication `json:"publication,omitempty"`
	IsFreeReview bool               `json:"is_free_review"`
	Payment      *model.PaymentInit `json:"payment,omitempty"`
	PaymentType  model.PaymentType  `json:"payment_type,omitempty"`
	DraftSaved   *bool              `json:"draft_saved,omitempty"`
}

// SubmissionService — жизненный цикл публикации со стороны автора.
type SubmissionService struct {
	backend       *backend.Client
	payments      *PaymentService
	claims        repository.FreeReviewClaimRepository
	guard         *InFlightGuard
	freeReviewCap int
	logger        *slog.Logger
}

// NewSubmissionService создаёт сервис отправки публикаций.
func NewSubmissionService(
	backendClient *backend.Client,
	payments *PaymentService,
	claims repository.FreeReviewClaimRepository,
	guard *InFlightGuard,
	freeReviewCap int,
	logger *slog.Logger,
) *SubmissionService {
	return &SubmissionService{
		backend:       backendClient,
		payments:      payments,
		claims:        claims,
		guard:         guard,
		freeReviewCap: freeReviewCap,
		logger:        logger.With(slog.String("component", "submission")),
	}
}

// Create проверяет форму правилами создания и создаёт черновик.
// Затем пробует сразу отправить его: при свободной бесплатной рецензии
// публикация уходит в pending, иначе открывается платёж publication_fee
// и публикация остаётся черновиком до оплаты.
func (s *SubmissionService) Create(ctx context.Context, userID string, form *backend.CreateForm) (*SubmissionOutcome, error) {
	if err := validation.ValidateCreate(createValidationForm(form)); err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(userID, opCreate, "")
	if err != nil {
		return nil, err
	}
	defer release()

	pub, err := s.backend.CreatePublication(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("создание публикации: %w", err)
	}
	if pub.Status == "" {
		pub.Status = model.StatusDraft
	}
	s.logger.Info("Публикация создана",
		slog.String("publication_id", pub.ID),
		slog.String("user_id", userID),
	)

	outcome, err := s.submit(ctx, userID, pub, "")
	if err != nil {
		if sessionExpired(err) {
			return nil, err
		}
		s.logger.Warn("Публикация осталась черновиком",
			slog.String("publication_id", pub.ID),
			slog.String("error", err.Error()),
		)
		return &SubmissionOutcome{Kind: OutcomeDraft, Publication: pub}, nil
	}
	return outcome, nil
}

// Submit переводит черновик в pending. reference — оплаченный publication_fee;
// пустой reference означает попытку бесплатной рецензии, а при её отсутствии —
// открытие платежа (OutcomePaymentRequired).
func (s *SubmissionService) Submit(ctx context.Context, userID, publicationID, reference string) (*SubmissionOutcome, error) {
	release, err := s.guard.Acquire(userID, opSubmit, publicationID)
	if err != nil {
		return nil, err
	}
	defer release()

	pub, err := s.getPublication(ctx, publicationID)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, userID, pub, reference)
}

func (s *SubmissionService) submit(ctx context.Context, userID string, pub *model.Publication, reference string) (*SubmissionOutcome, error) {
	if !lifecycle.CanTransition(pub.Status, lifecycle.EventSubmit) {
		_, err := lifecycle.Transition(pub.Status, lifecycle.EventSubmit, lifecycle.Guard{})
		return nil, err
	}

	if reference != "" {
		return s.paidTransition(ctx, userID, pub, reference, opSubmit, model.PaymentPublicationFee, lifecycle.Guard{})
	}

	outcome, ok, err := s.freeTransition(ctx, userID, pub, opSubmit, lifecycle.EventSubmit, lifecycle.Guard{})
	if err != nil || ok {
		return outcome, err
	}
	return s.requirePayment(ctx, userID, pub, opSubmit, model.PaymentPublicationFee)
}

// Resubmit переотправляет отклонённую публикацию:
//  1. проверка правилами переотправки;
//  2. автосохранение черновика (сбой только логируется);
//  3. запрос счётчика бесплатных рецензий;
//  4. свободная рецензия — заявка и PATCH pending с is_free_review=true;
//  5. иначе — платёж review_fee и OutcomePaymentRequired.
func (s *SubmissionService) Resubmit(ctx context.Context, userID, publicationID string, draft *backend.DraftForm) (*SubmissionOutcome, error) {
	if err := validation.ValidateResubmit(resubmitValidationForm(draft)); err != nil {
		return nil, err
	}

	release, err := s.guard.Acquire(userID, opResubmit, publicationID)
	if err != nil {
		return nil, err
	}
	defer release()

	pub, err := s.getPublication(ctx, publicationID)
	if err != nil {
		return nil, err
	}
	if !pub.IsResubmittable() {
		_, err := lifecycle.Transition(pub.Status, lifecycle.EventResubmit, lifecycle.Guard{Validated: true})
		return nil, err
	}

	saved := true
	if _, err := s.backend.UpdatePublication(ctx, publicationID, draft); err != nil {
		if sessionExpired(err) {
			return nil, err
		}
		saved = false
		draftAutosaveFailuresTotal.Inc()
		s.logger.Warn("Автосохранение черновика не удалось",
			slog.String("publication_id", publicationID),
			slog.String("error", err.Error()),
		)
	}

	guard := lifecycle.Guard{Validated: true}
	outcome, ok, err := s.freeTransition(ctx, userID, pub, opResubmit, lifecycle.EventResubmit, guard)
	if err == nil && !ok {
		outcome, err = s.requirePayment(ctx, userID, pub, opResubmit, model.PaymentReviewFee)
	}
	if outcome != nil {
		outcome.DraftSaved = &saved
	}
	return outcome, err
}

// CompleteResubmission завершает переотправку после оплаты review_fee.
func (s *SubmissionService) CompleteResubmission(ctx context.Context, userID, publicationID, reference string) (*SubmissionOutcome, error) {
	release, err := s.guard.Acquire(userID, opResubmit, publicationID)
	if err != nil {
		return nil, err
	}
	defer release()

	pub, err := s.getPublication(ctx, publicationID)
	if err != nil {
		return nil, err
	}
	// Платёж review_fee открывается только после успешной валидации формы
	return s.paidTransition(ctx, userID, pub, reference, opResubmit, model.PaymentReviewFee,
		lifecycle.Guard{Validated: true})
}

// freeTransition пытается выполнить переход за счёт бесплатной рецензии.
// ok=false без ошибки — бесплатной рецензии нет.
func (s *SubmissionService) freeTransition(
	ctx context.Context,
	userID string,
	pub *model.Publication,
	op string,
	ev lifecycle.Event,
	guard lifecycle.Guard,
) (*SubmissionOutcome, bool, error) {
	status, err := s.freeReviewStatus(ctx)
	if err != nil {
		return nil, false, err
	}
	if !status.HasFreeReviewAvailable {
		return nil, false, nil
	}

	claim := &model.FreeReviewClaim{UserID: userID, PublicationID: pub.ID, Transition: op}
	if err := s.claims.Claim(ctx, claim, status.FreeReviewsUsed, s.freeReviewCap); err != nil {
		if errors.Is(err, repository.ErrLimitReached) {
			return nil, false, nil
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, false, ErrSubmitInProgress
		}
		return nil, false, fmt.Errorf("заявка на бесплатную рецензию: %w", err)
	}
	// Backend учтёт рецензию после PATCH; при сбое слот возвращается
	defer func() {
		if err := s.claims.Release(context.WithoutCancel(ctx), claim.ID); err != nil {
			s.logger.Error("Не удалось освободить заявку на бесплатную рецензию",
				slog.String("claim_id", claim.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	// Счётчик мог устареть, пока ждали заявку: параллельная рецензия
	// успела завершиться и освободить свою заявку
	if ok, err := s.freeReviewStillAvailable(ctx, userID); err != nil || !ok {
		return nil, false, err
	}

	guard.FreeReview = true
	if _, err := lifecycle.Transition(pub.Status, ev, guard); err != nil {
		return nil, false, err
	}

	updated, err := s.backend.UpdatePublication(ctx, pub.ID, &backend.ResubmitForm{IsFreeReview: true})
	if err != nil {
		submissionsTotal.WithLabelValues(op, "error").Inc()
		return nil, false, fmt.Errorf("перевод публикации в pending: %w", err)
	}

	submissionsTotal.WithLabelValues(op, "free").Inc()
	s.logger.Info("Публикация отправлена на бесплатную рецензию",
		slog.String("publication_id", pub.ID),
		slog.String("user_id", userID),
		slog.String("operation", op),
	)
	return &SubmissionOutcome{Kind: OutcomeSubmitted, Publication: updated, IsFreeReview: true}, true, nil
}

func (s *SubmissionService) freeReviewStatus(ctx context.Context) (*model.FreeReviewStatus, error) {
	status, err := s.backend.FreeReviewStatus(ctx)
	if err != nil {
		if sessionExpired(err) {
			return nil, err
		}
		return nil, fmt.Errorf("запрос счётчика бесплатных рецензий: %w", err)
	}
	return status, nil
}

// freeReviewStillAvailable перечитывает счётчик backend после создания заявки.
// Бесплатная рецензия доступна, если использованные backend вместе с активными
// заявками пользователя (включая свою) не превышают лимит.
func (s *SubmissionService) freeReviewStillAvailable(ctx context.Context, userID string) (bool, error) {
	status, err := s.freeReviewStatus(ctx)
	if err != nil {
		return false, err
	}
	active, err := s.claims.Active(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("подсчёт заявок на бесплатную рецензию: %w", err)
	}
	if !status.HasFreeReviewAvailable || status.FreeReviewsUsed+active > s.freeReviewCap {
		s.logger.Info("Бесплатная рецензия занята параллельной отправкой",
			slog.String("user_id", userID),
			slog.Int("free_reviews_used", status.FreeReviewsUsed),
			slog.Int("active_claims", active),
		)
		return false, nil
	}
	return true, nil
}

// paidTransition выполняет переход по оплаченному reference.
func (s *SubmissionService) paidTransition(
	ctx context.Context,
	userID string,
	pub *model.Publication,
	reference, op string,
	paymentType model.PaymentType,
	guard lifecycle.Guard,
) (*SubmissionOutcome, error) {
	ev := lifecycle.EventSubmit
	if op == opResubmit {
		ev = lifecycle.EventResubmit
	}
	if !lifecycle.CanTransition(pub.Status, ev) {
		_, err := lifecycle.Transition(pub.Status, ev, guard)
		return nil, err
	}

	if _, err := s.payments.Consume(ctx, userID, reference, pub.ID, paymentType, op); err != nil {
		return nil, err
	}

	guard.PaymentVerified = true
	if _, err := lifecycle.Transition(pub.Status, ev, guard); err != nil {
		s.payments.Release(context.WithoutCancel(ctx), reference, pub.ID, op)
		return nil, err
	}

	updated, err := s.backend.UpdatePublication(ctx, pub.ID, &backend.ResubmitForm{PaymentReference: reference})
	if err != nil {
		s.payments.Release(context.WithoutCancel(ctx), reference, pub.ID, op)
		submissionsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("перевод публикации в pending: %w", err)
	}

	submissionsTotal.WithLabelValues(op, "paid").Inc()
	s.logger.Info("Публикация отправлена по оплате",
		slog.String("publication_id", pub.ID),
		slog.String("reference", reference),
		slog.String("operation", op),
	)
	return &SubmissionOutcome{Kind: OutcomeSubmitted, Publication: updated}, nil
}

// requirePayment открывает платёж; публикация сохраняет текущий статус.
func (s *SubmissionService) requirePayment(
	ctx context.Context,
	userID string,
	pub *model.Publication,
	op string,
	paymentType model.PaymentType,
) (*SubmissionOutcome, error) {
	payment, err := s.payments.Initialize(ctx, userID, pub.ID, paymentType)
	if err != nil {
		return nil, err
	}
	submissionsTotal.WithLabelValues(op, "payment_required").Inc()
	return &SubmissionOutcome{
		Kind:        OutcomePaymentRequired,
		Publication: pub,
		Payment:     payment,
		PaymentType: paymentType,
	}, nil
}

// List возвращает страницу публикаций.
func (s *SubmissionService) List(ctx context.Context, page int, search string) (*model.PublicationPage, error) {
	return s.backend.ListPublications(ctx, page, search)
}

// Publication возвращает публикацию по ID.
func (s *SubmissionService) Publication(ctx context.Context, id string) (*model.Publication, error) {
	return s.getPublication(ctx, id)
}

// SaveDraft сохраняет текст публикации без смены статуса.
// Черновик можно сохранить только в статусах draft и rejected.
func (s *SubmissionService) SaveDraft(ctx context.Context, publicationID string, draft *backend.DraftForm) (*model.Publication, error) {
	pub, err := s.getPublication(ctx, publicationID)
	if err != nil {
		return nil, err
	}
	if pub.Status != model.StatusDraft && pub.Status != model.StatusRejected {
		return nil, &lifecycle.TransitionError{
			Code:    lifecycle.CodeInvalidTransition,
			Message: fmt.Sprintf("публикацию в статусе %s нельзя редактировать", pub.Status),
		}
	}

	saved, err := s.backend.UpdatePublication(ctx, publicationID, draft)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("сохранение черновика %s: %w", publicationID, err)
	}
	return saved, nil
}

func (s *SubmissionService) getPublication(ctx context.Context, id string) (*model.Publication, error) {
	pub, err := s.backend.GetPublication(ctx, id)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение публикации %s: %w", id, err)
	}
	return pub, nil
}

func uploadName(u *backend.Upload) string {
	if u == nil {
		return ""
	}
	return u.FileName
}

func createValidationForm(f *backend.CreateForm) validation.Form {
	return validation.Form{
		Title:     f.Title,
		Abstract:  f.Abstract,
		Content:   f.Content,
		Category:  f.Category,
		Keywords:  f.Keywords,
		CoAuthors: f.CoAuthors,
		Volume:    f.Volume,
		FileName:  uploadName(f.File),
		VideoName: uploadName(f.Video),
		CoverName: uploadName(f.Cover),
	}
}

func resubmitValidationForm(f *backend.DraftForm) validation.Form {
	return validation.Form{
		Title:     f.Title,
		Abstract:  f.Abstract,
		Content:   f.Content,
		Keywords:  f.Keywords,
		CoAuthors: f.CoAuthors,
		Volume:    f.Volume,
		CoverName: uploadName(f.Cover),
	}
}
