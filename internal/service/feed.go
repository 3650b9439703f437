// feed.go — уведомления и комментарии.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/domain/model"
)

// FeedService — уведомления пользователя и комментарии к публикациям.
type FeedService struct {
	backend *backend.Client
	now     func() time.Time
	logger  *slog.Logger
}

// NewFeedService создаёт сервис ленты.
func NewFeedService(backendClient *backend.Client, logger *slog.Logger) *FeedService {
	return &FeedService{
		backend: backendClient,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "feed")),
	}
}

// Notifications возвращает уведомления; unreadOnly — только непрочитанные.
func (s *FeedService) Notifications(ctx context.Context, unreadOnly bool) ([]model.Notification, error) {
	if unreadOnly {
		return s.backend.UnreadNotifications(ctx)
	}
	return s.backend.Notifications(ctx)
}

// MarkRead отмечает уведомление прочитанным.
func (s *FeedService) MarkRead(ctx context.Context, id string) error {
	err := s.backend.MarkNotificationRead(ctx, id)
	if errors.Is(err, backend.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// MarkAllRead отмечает все уведомления прочитанными.
func (s *FeedService) MarkAllRead(ctx context.Context) error {
	return s.backend.MarkAllNotificationsRead(ctx)
}

// Comments возвращает комментарии к публикации.
func (s *FeedService) Comments(ctx context.Context, publicationID string) ([]model.Comment, error) {
	items, err := s.backend.ListComments(ctx, publicationID)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	return items, err
}

// AddComment добавляет комментарий; parentID — для ответа.
func (s *FeedService) AddComment(ctx context.Context, publicationID, text, parentID string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: текст комментария пуст", ErrValidation)
	}
	return s.backend.CreateComment(ctx, publicationID, text, strings.TrimSpace(parentID))
}

// EditComment изменяет комментарий в пределах окна редактирования.
func (s *FeedService) EditComment(ctx context.Context, publicationID, commentID, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: текст комментария пуст", ErrValidation)
	}
	if err := s.checkEditable(ctx, publicationID, commentID); err != nil {
		return nil, err
	}
	return s.backend.UpdateComment(ctx, publicationID, commentID, text)
}

// DeleteComment удаляет комментарий в пределах окна редактирования.
func (s *FeedService) DeleteComment(ctx context.Context, publicationID, commentID string) error {
	if err := s.checkEditable(ctx, publicationID, commentID); err != nil {
		return err
	}
	return s.backend.DeleteComment(ctx, publicationID, commentID)
}

func (s *FeedService) checkEditable(ctx context.Context, publicationID, commentID string) error {
	items, err := s.Comments(ctx, publicationID)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID != commentID {
			continue
		}
		if !items[i].CanModify(s.now()) {
			s.logger.Debug("Окно редактирования комментария истекло",
				slog.String("comment_id", commentID),
			)
			return ErrCommentLocked
		}
		return nil
	}
	return ErrNotFound
}
