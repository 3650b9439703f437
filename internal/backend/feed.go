package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// Notifications возвращает уведомления пользователя (GET /notifications/).
func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	return c.listNotifications(ctx, "notifications", "/notifications/")
}

// UnreadNotifications возвращает непрочитанные уведомления (GET /notifications/unread/).
func (c *Client) UnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	return c.listNotifications(ctx, "notifications_unread", "/notifications/unread/")
}

// MarkNotificationRead отмечает уведомление прочитанным.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, request{
		operation: "notification_read",
		method:    http.MethodPatch,
		path:      "/notifications/" + url.PathEscape(id) + "/read/",
	}, nil)
}

// MarkAllNotificationsRead отмечает все уведомления прочитанными.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, request{
		operation: "notifications_mark_all_read",
		method:    http.MethodPatch,
		path:      "/notifications/mark-all-read/",
	}, nil)
}

func (c *Client) listNotifications(ctx context.Context, operation, path string) ([]model.Notification, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{operation: operation, method: http.MethodGet, path: path}, &raw); err != nil {
		return nil, err
	}
	items, err := decodeList[model.Notification](raw)
	if err != nil {
		return nil, fmt.Errorf("декодирование уведомлений: %w", err)
	}
	return items, nil
}

// ListComments возвращает комментарии к публикации.
func (c *Client) ListComments(ctx context.Context, publicationID string) ([]model.Comment, error) {
	var raw json.RawMessage
	err := c.do(ctx, request{
		operation: "list_comments",
		method:    http.MethodGet,
		path:      commentsPath(publicationID),
	}, &raw)
	if err != nil {
		return nil, err
	}
	items, err := decodeList[model.Comment](raw)
	if err != nil {
		return nil, fmt.Errorf("декодирование комментариев: %w", err)
	}
	return items, nil
}

// CreateComment добавляет комментарий; parentID пуст для корневого комментария.
func (c *Client) CreateComment(ctx context.Context, publicationID, text, parentID string) (*model.Comment, error) {
	payload := map[string]string{"text": text}
	if parentID != "" {
		payload["parent"] = parentID
	}
	return c.writeComment(ctx, "create_comment", http.MethodPost, commentsPath(publicationID), payload)
}

// UpdateComment изменяет текст комментария.
func (c *Client) UpdateComment(ctx context.Context, publicationID, commentID, text string) (*model.Comment, error) {
	return c.writeComment(ctx, "update_comment", http.MethodPatch,
		commentsPath(publicationID)+url.PathEscape(commentID)+"/", map[string]string{"text": text})
}

// DeleteComment удаляет комментарий.
func (c *Client) DeleteComment(ctx context.Context, publicationID, commentID string) error {
	return c.do(ctx, request{
		operation: "delete_comment",
		method:    http.MethodDelete,
		path:      commentsPath(publicationID) + url.PathEscape(commentID) + "/",
	}, nil)
}

func (c *Client) writeComment(ctx context.Context, operation, method, path string, payload map[string]string) (*model.Comment, error) {
	body, err := jsonBody(payload)
	if err != nil {
		return nil, err
	}
	var comment model.Comment
	err = c.do(ctx, request{
		operation:   operation,
		method:      method,
		path:        path,
		body:        body,
		contentType: "application/json",
	}, &comment)
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func commentsPath(publicationID string) string {
	return "/publications/" + url.PathEscape(publicationID) + "/comments/"
}
