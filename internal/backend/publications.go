package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// ListPublications возвращает страницу публикаций (GET /publications/).
func (c *Client) ListPublications(ctx context.Context, page int, search string) (*model.PublicationPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if search != "" {
		q.Set("search", search)
	}
	path := "/publications/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result model.PublicationPage
	if err := c.do(ctx, request{operation: "list_publications", method: http.MethodGet, path: path}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPublication возвращает публикацию по ID (GET /publications/{id}/).
func (c *Client) GetPublication(ctx context.Context, id string) (*model.Publication, error) {
	var pub model.Publication
	err := c.do(ctx, request{
		operation: "get_publication",
		method:    http.MethodGet,
		path:      "/publications/" + url.PathEscape(id) + "/",
	}, &pub)
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

// CreatePublication создаёт публикацию (POST /publications/).
func (c *Client) CreatePublication(ctx context.Context, form *CreateForm) (*model.Publication, error) {
	return c.sendForm(ctx, "create_publication", http.MethodPost, "/publications/", form)
}

// UpdatePublication изменяет публикацию (PATCH /publications/{id}/update/).
// Набор полей определяется типом формы: DraftForm или ResubmitForm.
func (c *Client) UpdatePublication(ctx context.Context, id string, form Encoder) (*model.Publication, error) {
	return c.sendForm(ctx, "update_publication", http.MethodPatch,
		"/publications/"+url.PathEscape(id)+"/update/", form)
}

// ReviewPublication применяет решение редактора (PATCH /publications/{id}/review/).
func (c *Client) ReviewPublication(ctx context.Context, id, action, rejectionNote string) (*model.Publication, error) {
	payload := map[string]string{"action": action}
	if rejectionNote != "" {
		payload["rejection_note"] = rejectionNote
	}
	body, err := jsonBody(payload)
	if err != nil {
		return nil, err
	}

	var pub model.Publication
	err = c.do(ctx, request{
		operation:   "review_publication",
		method:      http.MethodPatch,
		path:        "/publications/" + url.PathEscape(id) + "/review/",
		body:        body,
		contentType: "application/json",
	}, &pub)
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

// AnnotatePublication сохраняет аннотации редактора (PATCH /publications/{id}/annotate/).
// Список передаётся целиком как JSON-строка editor_comments; последняя запись побеждает.
func (c *Client) AnnotatePublication(ctx context.Context, id string, records []model.Highlight) error {
	if records == nil {
		records = []model.Highlight{}
	}
	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("сериализация аннотаций: %w", err)
	}
	body, err := jsonBody(map[string]string{"editor_comments": string(encoded)})
	if err != nil {
		return err
	}

	return c.do(ctx, request{
		operation:   "annotate_publication",
		method:      http.MethodPatch,
		path:        "/publications/" + url.PathEscape(id) + "/annotate/",
		body:        body,
		contentType: "application/json",
	}, nil)
}

// React отправляет реакцию зрителя (PATCH /publications/{id}/views/).
func (c *Client) React(ctx context.Context, id string, reaction model.Reaction) (*model.ReactionCounts, error) {
	body, err := jsonBody(map[string]string{"action": string(reaction)})
	if err != nil {
		return nil, err
	}

	// nil — backend не вернул тело со счётчиками
	var counts *model.ReactionCounts
	err = c.do(ctx, request{
		operation:   "react",
		method:      http.MethodPatch,
		path:        "/publications/" + url.PathEscape(id) + "/views/",
		body:        body,
		contentType: "application/json",
	}, &counts)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// MyReaction возвращает реакции текущего зрителя (GET /publications/{id}/views/me/).
func (c *Client) MyReaction(ctx context.Context, id string) (*model.ViewerReaction, error) {
	var r model.ViewerReaction
	err := c.do(ctx, request{
		operation: "my_reaction",
		method:    http.MethodGet,
		path:      "/publications/" + url.PathEscape(id) + "/views/me/",
	}, &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) sendForm(ctx context.Context, operation, method, path string, form Encoder) (*model.Publication, error) {
	body, contentType, err := form.Encode()
	if err != nil {
		return nil, fmt.Errorf("кодирование формы %s: %w", operation, err)
	}

	var pub model.Publication
	err = c.do(ctx, request{
		operation:   operation,
		method:      method,
		path:        path,
		body:        body,
		contentType: contentType,
	}, &pub)
	if err != nil {
		return nil, err
	}
	return &pub, nil
}
