// review.go — консоль рецензирования редактора.
// Роль редактора подтверждается свежим запросом /me/, а не кэшем профилей.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/domain/lifecycle"
	"github.com/bigkaa/journivo/internal/domain/model"
	"github.com/bigkaa/journivo/internal/domain/rbac"
	"github.com/bigkaa/journivo/internal/session"
)

var reviewDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jv_review_decisions_total",
	Help: "Решения редакторов по действиям.",
}, []string{"action"})

// ReviewService — решения и аннотации редактора.
type ReviewService struct {
	backend *backend.Client
	gate    *session.Gate
	logger  *slog.Logger
}

// NewReviewService создаёт сервис рецензирования.
func NewReviewService(backendClient *backend.Client, gate *session.Gate, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		backend: backendClient,
		gate:    gate,
		logger:  logger.With(slog.String("component", "review")),
	}
}

// Review применяет решение редактора. Допустимость перехода проверяется
// по текущему статусу backend; при отказе ничего не меняется.
func (s *ReviewService) Review(
	ctx context.Context,
	sess *session.Session,
	publicationID string,
	action lifecycle.ReviewAction,
	rejectionNote string,
) (*model.Publication, error) {
	editor, err := s.confirmEditor(ctx, sess)
	if err != nil {
		return nil, err
	}

	pub, err := s.getPublication(ctx, publicationID)
	if err != nil {
		return nil, err
	}

	note := strings.TrimSpace(rejectionNote)
	if action != lifecycle.ActionReject {
		note = ""
	}
	to, err := lifecycle.Transition(pub.Status, action.Event(), lifecycle.Guard{
		Role:          editor.Role,
		RejectionNote: note,
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.backend.ReviewPublication(ctx, publicationID, string(action), note)
	if err != nil {
		return nil, fmt.Errorf("решение по публикации %s: %w", publicationID, err)
	}
	if updated.Status == "" {
		updated.Status = to
	}
	if err := lifecycle.CheckInvariants(updated); err != nil {
		s.logger.Warn("Backend вернул несогласованную публикацию",
			slog.String("publication_id", publicationID),
			slog.String("error", err.Error()),
		)
	}

	reviewDecisionsTotal.WithLabelValues(string(action)).Inc()
	s.logger.Info("Решение редактора применено",
		slog.String("publication_id", publicationID),
		slog.String("editor_id", editor.UserID()),
		slog.String("action", string(action)),
		slog.String("from", string(pub.Status)),
		slog.String("to", string(to)),
	)
	return updated, nil
}

// Annotate сохраняет аннотации редактора целиком (последняя запись побеждает).
// Статус публикации не проверяется. Записям без ID присваивается UUID.
func (s *ReviewService) Annotate(
	ctx context.Context,
	sess *session.Session,
	publicationID string,
	records []model.Highlight,
) ([]model.Highlight, error) {
	if _, err := s.gate.RequireRole(ctx, sess, rbac.RoleEditor); err != nil {
		return nil, err
	}

	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.New().String()
		}
	}

	if err := s.backend.AnnotatePublication(ctx, publicationID, records); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("сохранение аннотаций %s: %w", publicationID, err)
	}

	s.logger.Debug("Аннотации сохранены",
		slog.String("publication_id", publicationID),
		slog.Int("count", len(records)),
	)
	return records, nil
}

// RejectionNote возвращает причину отклонения.
// ErrNotFound, если публикация не отклонена или причина пуста.
func (s *ReviewService) RejectionNote(ctx context.Context, sess *session.Session, publicationID string) (string, error) {
	if _, err := s.gate.RequireRole(ctx, sess, rbac.RoleEditor); err != nil {
		return "", err
	}

	pub, err := s.getPublication(ctx, publicationID)
	if err != nil {
		return "", err
	}
	note := strings.TrimSpace(pub.RejectionNote)
	if pub.Status != model.StatusRejected || note == "" {
		return "", ErrNotFound
	}
	return note, nil
}

// confirmEditor перепроверяет сессию через /me/ и требует роль редактора.
func (s *ReviewService) confirmEditor(ctx context.Context, sess *session.Session) (*session.Session, error) {
	fresh, err := s.gate.Revalidate(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !rbac.CanReview(fresh.Role) {
		s.logger.Info("Решение по публикации отклонено: нет роли редактора",
			slog.String("user_id", fresh.UserID()),
			slog.String("role", fresh.Role),
		)
		return nil, session.ErrForbidden
	}
	return fresh, nil
}

func (s *ReviewService) getPublication(ctx context.Context, id string) (*model.Publication, error) {
	pub, err := s.backend.GetPublication(ctx, id)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение публикации %s: %w", id, err)
	}
	return pub, nil
}
