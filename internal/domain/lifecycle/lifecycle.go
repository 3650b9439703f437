// Пакет lifecycle — конечный автомат жизненного цикла публикации.
//
//	(создание) → draft
//	draft → pending                 (оплата ИЛИ бесплатная рецензия)
//	pending → under_review          (editor)
//	under_review → approved         (editor)
//	pending | under_review → rejected (editor, непустая причина)
//	rejected → pending              (переотправка, оплата ИЛИ бесплатная рецензия)
//
// Статус хранится на backend; пакет только проверяет допустимость перехода.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/bigkaa/journivo/internal/domain/model"
	"github.com/bigkaa/journivo/internal/domain/rbac"
)

// Event — событие жизненного цикла.
type Event string

const (
	EventSubmit          Event = "submit"
	EventMarkUnderReview Event = "mark_under_review"
	EventApprove         Event = "approve"
	EventReject          Event = "reject"
	EventResubmit        Event = "resubmit"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeForbidden          = "FORBIDDEN"
	CodeNoteRequired       = "NOTE_REQUIRED"
	CodeGateRequired       = "GATE_REQUIRED"
	CodeGateConflict       = "GATE_CONFLICT"
	CodeValidationRequired = "VALIDATION_REQUIRED"
)

// validTransitions — матрица допустимых переходов: статус → событие → новый статус.
var validTransitions = map[model.PublicationStatus]map[Event]model.PublicationStatus{
	model.StatusDraft: {
		EventSubmit: model.StatusPending,
	},
	model.StatusPending: {
		EventMarkUnderReview: model.StatusUnderReview,
		EventReject:          model.StatusRejected,
	},
	model.StatusUnderReview: {
		EventApprove: model.StatusApproved,
		EventReject:  model.StatusRejected,
	},
	model.StatusRejected: {
		EventResubmit: model.StatusPending,
	},
	model.StatusApproved: {},
}

// editorEvents — события, доступные только редактору.
var editorEvents = map[Event]bool{
	EventMarkUnderReview: true,
	EventApprove:         true,
	EventReject:          true,
}

// gatedEvents — события, требующие ровно одного из: проверенная оплата, бесплатная рецензия.
var gatedEvents = map[Event]bool{
	EventSubmit:   true,
	EventResubmit: true,
}

// Guard — входные условия перехода, собранные вызывающим кодом.
type Guard struct {
	// Role — роль, подтверждённая сервером (/me/), не кэшированная.
	Role string
	// RejectionNote — причина отклонения (для reject).
	RejectionNote string
	// PaymentVerified — проверенный и ещё не использованный платёж привязан к публикации.
	PaymentVerified bool
	// FreeReview — захвачен слот бесплатной рецензии.
	FreeReview bool
	// Validated — данные формы прошли валидацию (для resubmit).
	Validated bool
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string
	Message string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CanTransition проверяет, есть ли переход по событию из статуса (без проверки guard).
func CanTransition(from model.PublicationStatus, ev Event) bool {
	_, ok := validTransitions[from][ev]
	return ok
}

// Transition возвращает новый статус или *TransitionError.
func Transition(from model.PublicationStatus, ev Event, g Guard) (model.PublicationStatus, error) {
	to, ok := validTransitions[from][ev]
	if !ok {
		return from, &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("событие %s недопустимо в статусе %q", ev, from),
		}
	}

	if editorEvents[ev] && !rbac.CanReview(g.Role) {
		return from, &TransitionError{
			Code:    CodeForbidden,
			Message: fmt.Sprintf("событие %s доступно только редактору", ev),
		}
	}

	if ev == EventReject && strings.TrimSpace(g.RejectionNote) == "" {
		return from, &TransitionError{
			Code:    CodeNoteRequired,
			Message: "для отклонения требуется причина",
		}
	}

	if ev == EventResubmit && !g.Validated {
		return from, &TransitionError{
			Code:    CodeValidationRequired,
			Message: "переотправка требует успешной валидации",
		}
	}

	if gatedEvents[ev] {
		switch {
		case g.PaymentVerified && g.FreeReview:
			return from, &TransitionError{
				Code:    CodeGateConflict,
				Message: "один переход не может использовать и оплату, и бесплатную рецензию",
			}
		case !g.PaymentVerified && !g.FreeReview:
			return from, &TransitionError{
				Code:    CodeGateRequired,
				Message: "требуется оплата или доступная бесплатная рецензия",
			}
		}
	}

	return to, nil
}

// ReviewAction — действие редактора в консоли рецензирования.
type ReviewAction string

const (
	ActionUnderReview ReviewAction = "under_review"
	ActionApprove     ReviewAction = "approve"
	ActionReject      ReviewAction = "reject"
)

// ParseReviewAction преобразует строку в ReviewAction.
func ParseReviewAction(s string) (ReviewAction, error) {
	a := ReviewAction(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionUnderReview, ActionApprove, ActionReject:
		return a, nil
	default:
		return "", fmt.Errorf("недопустимое действие %q, допустимые: under_review, approve, reject", s)
	}
}

// Event возвращает событие жизненного цикла для действия редактора.
func (a ReviewAction) Event() Event {
	switch a {
	case ActionUnderReview:
		return EventMarkUnderReview
	case ActionApprove:
		return EventApprove
	default:
		return EventReject
	}
}

// ParseStatus преобразует строку в PublicationStatus.
func ParseStatus(s string) (model.PublicationStatus, error) {
	st := model.PublicationStatus(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("недопустимый статус %q, допустимые: draft, pending, under_review, approved, rejected", s)
	}
	return st, nil
}

// CheckInvariants проверяет инвариант: rejection_note непустой тогда и только тогда,
// когда статус rejected.
func CheckInvariants(p *model.Publication) error {
	hasNote := strings.TrimSpace(p.RejectionNote) != ""
	rejected := p.Status == model.StatusRejected
	if hasNote != rejected {
		return fmt.Errorf("публикация %s: статус %q несовместим с наличием причины отклонения (%v)",
			p.ID, p.Status, hasNote)
	}
	return nil
}
