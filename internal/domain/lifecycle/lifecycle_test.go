package lifecycle

import (
	"errors"
	"testing"

	"github.com/bigkaa/journivo/internal/domain/model"
)

func transitionCode(t *testing.T, err error) string {
	t.Helper()
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("ожидалась *TransitionError, получено %v", err)
	}
	return te.Code
}

// TestTransition_Matrix проверяет полную матрицу переходов.
func TestTransition_Matrix(t *testing.T) {
	editor := Guard{Role: "editor", RejectionNote: "Needs more citations"}

	tests := []struct {
		name string
		from model.PublicationStatus
		ev   Event
		g    Guard
		want model.PublicationStatus
	}{
		{"draft → pending оплатой", model.StatusDraft, EventSubmit, Guard{PaymentVerified: true}, model.StatusPending},
		{"draft → pending бесплатной рецензией", model.StatusDraft, EventSubmit, Guard{FreeReview: true}, model.StatusPending},
		{"pending → under_review", model.StatusPending, EventMarkUnderReview, editor, model.StatusUnderReview},
		{"under_review → approved", model.StatusUnderReview, EventApprove, editor, model.StatusApproved},
		{"under_review → rejected", model.StatusUnderReview, EventReject, editor, model.StatusRejected},
		{"pending → rejected", model.StatusPending, EventReject, editor, model.StatusRejected},
		{"rejected → pending", model.StatusRejected, EventResubmit, Guard{Validated: true, FreeReview: true}, model.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev, tt.g)
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if got != tt.want {
				t.Errorf("Transition() = %q, ожидается %q", got, tt.want)
			}
		})
	}
}

func TestTransition_Invalid(t *testing.T) {
	editor := Guard{Role: "editor", RejectionNote: "note", PaymentVerified: true, Validated: true}

	tests := []struct {
		from model.PublicationStatus
		ev   Event
	}{
		{model.StatusDraft, EventApprove},
		{model.StatusDraft, EventReject},
		{model.StatusPending, EventApprove},
		{model.StatusPending, EventResubmit},
		{model.StatusApproved, EventReject},
		{model.StatusApproved, EventResubmit},
		{model.StatusRejected, EventApprove},
		{model.StatusUnderReview, EventSubmit},
	}

	for _, tt := range tests {
		got, err := Transition(tt.from, tt.ev, editor)
		if err == nil {
			t.Errorf("%s + %s: ожидалась ошибка", tt.from, tt.ev)
			continue
		}
		if code := transitionCode(t, err); code != CodeInvalidTransition {
			t.Errorf("%s + %s: код %q, ожидается INVALID_TRANSITION", tt.from, tt.ev, code)
		}
		if got != tt.from {
			t.Errorf("при ошибке статус не должен меняться: %q → %q", tt.from, got)
		}
	}
}

// TestTransition_EditorOnly — редакторские события без роли editor отклоняются.
func TestTransition_EditorOnly(t *testing.T) {
	for _, role := range []string{"", "publisher", "reader", "admin", "participant"} {
		for _, ev := range []Event{EventMarkUnderReview, EventReject} {
			_, err := Transition(model.StatusPending, ev, Guard{Role: role, RejectionNote: "x"})
			if code := transitionCode(t, err); code != CodeForbidden {
				t.Errorf("роль %q, событие %s: код %q, ожидается FORBIDDEN", role, ev, code)
			}
		}
	}
}

func TestTransition_RejectRequiresNote(t *testing.T) {
	_, err := Transition(model.StatusUnderReview, EventReject, Guard{Role: "Editor", RejectionNote: "   "})
	if code := transitionCode(t, err); code != CodeNoteRequired {
		t.Errorf("код %q, ожидается NOTE_REQUIRED", code)
	}
}

// TestTransition_Gate — ровно один из оплаты и бесплатной рецензии.
func TestTransition_Gate(t *testing.T) {
	_, err := Transition(model.StatusDraft, EventSubmit, Guard{})
	if code := transitionCode(t, err); code != CodeGateRequired {
		t.Errorf("без оплаты: код %q, ожидается GATE_REQUIRED", code)
	}

	_, err = Transition(model.StatusRejected, EventResubmit, Guard{Validated: true, PaymentVerified: true, FreeReview: true})
	if code := transitionCode(t, err); code != CodeGateConflict {
		t.Errorf("оплата + бесплатная рецензия: код %q, ожидается GATE_CONFLICT", code)
	}

	_, err = Transition(model.StatusRejected, EventResubmit, Guard{PaymentVerified: true})
	if code := transitionCode(t, err); code != CodeValidationRequired {
		t.Errorf("без валидации: код %q, ожидается VALIDATION_REQUIRED", code)
	}
}

func TestParseReviewAction(t *testing.T) {
	tests := map[string]Event{
		"under_review": EventMarkUnderReview,
		"APPROVE":      EventApprove,
		" reject ":     EventReject,
	}
	for in, want := range tests {
		a, err := ParseReviewAction(in)
		if err != nil {
			t.Fatalf("ParseReviewAction(%q): %v", in, err)
		}
		if a.Event() != want {
			t.Errorf("ParseReviewAction(%q).Event() = %s, ожидается %s", in, a.Event(), want)
		}
	}
	if _, err := ParseReviewAction("publish"); err == nil {
		t.Error("ParseReviewAction(publish) должен вернуть ошибку")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"draft", "pending", "under_review", "approved", "rejected"} {
		if _, err := ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseStatus("archived"); err == nil {
		t.Error("ParseStatus(archived) должен вернуть ошибку")
	}
}

func TestCheckInvariants(t *testing.T) {
	tests := []struct {
		name    string
		pub     model.Publication
		wantErr bool
	}{
		{"rejected с причиной", model.Publication{Status: model.StatusRejected, RejectionNote: "Needs more citations"}, false},
		{"rejected без причины", model.Publication{Status: model.StatusRejected}, true},
		{"pending без причины", model.Publication{Status: model.StatusPending}, false},
		{"pending с причиной", model.Publication{Status: model.StatusPending, RejectionNote: "old"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckInvariants(&tt.pub)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckInvariants() ошибка = %v, ожидается ошибка: %v", err, tt.wantErr)
			}
		})
	}
}
