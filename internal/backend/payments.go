package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bigkaa/journivo/internal/domain/model"
)

// InitializePayment открывает платёж у шлюза (POST /payments/initialize/).
// publicationID может быть пустым: платёж ещё не привязан к публикации.
func (c *Client) InitializePayment(
	ctx context.Context,
	publicationID string,
	paymentType model.PaymentType,
	callbackURL string,
) (*model.PaymentInit, error) {
	payload := map[string]string{"payment_type": string(paymentType)}
	if publicationID != "" {
		payload["publication_id"] = publicationID
	}
	if callbackURL != "" {
		payload["callback_url"] = callbackURL
	}
	body, err := jsonBody(payload)
	if err != nil {
		return nil, err
	}

	var result model.PaymentInit
	err = c.do(ctx, request{
		operation:   "payment_initialize",
		method:      http.MethodPost,
		path:        "/payments/initialize/",
		body:        body,
		contentType: "application/json",
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Reference == "" || result.AuthorizationURL == "" {
		return nil, fmt.Errorf("ответ payment_initialize без reference или authorization_url")
	}
	return &result, nil
}

// VerifyPayment проверяет платёж по reference (POST /payments/verify/).
func (c *Client) VerifyPayment(ctx context.Context, reference string) (*model.PaymentVerification, error) {
	body, err := jsonBody(map[string]string{"reference": reference})
	if err != nil {
		return nil, err
	}

	var v model.PaymentVerification
	err = c.do(ctx, request{
		operation:   "payment_verify",
		method:      http.MethodPost,
		path:        "/payments/verify/",
		body:        body,
		contentType: "application/json",
	}, &v)
	if err != nil {
		return nil, err
	}
	if v.Reference == "" {
		v.Reference = reference
	}
	return &v, nil
}

// PaymentHistory возвращает историю платежей пользователя (GET /payments/history/).
func (c *Client) PaymentHistory(ctx context.Context) ([]model.Payment, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{operation: "payment_history", method: http.MethodGet, path: "/payments/history/"}, &raw); err != nil {
		return nil, err
	}
	payments, err := decodeList[model.Payment](raw)
	if err != nil {
		return nil, fmt.Errorf("декодирование истории платежей: %w", err)
	}
	return payments, nil
}

// PaymentDetails возвращает платёж по reference (GET /payments/details/{ref}/).
func (c *Client) PaymentDetails(ctx context.Context, reference string) (*model.Payment, error) {
	var p model.Payment
	err := c.do(ctx, request{
		operation: "payment_details",
		method:    http.MethodGet,
		path:      "/payments/details/" + url.PathEscape(reference) + "/",
	}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RequestRefund запрашивает возврат платежа (POST /payments/refund/).
func (c *Client) RequestRefund(ctx context.Context, req model.RefundRequest) (json.RawMessage, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	err = c.do(ctx, request{
		operation:   "payment_refund",
		method:      http.MethodPost,
		path:        "/payments/refund/",
		body:        body,
		contentType: "application/json",
	}, &raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// FreeReviewStatus возвращает счётчик бесплатных рецензий (GET /free-review-status/).
func (c *Client) FreeReviewStatus(ctx context.Context) (*model.FreeReviewStatus, error) {
	var s model.FreeReviewStatus
	if err := c.do(ctx, request{operation: "free_review_status", method: http.MethodGet, path: "/free-review-status/"}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Subscription возвращает подписку пользователя (GET /subscriptions/).
// Backend отдаёт список; берётся первая запись.
func (c *Client) Subscription(ctx context.Context) (*model.Subscription, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{operation: "subscription", method: http.MethodGet, path: "/subscriptions/"}, &raw); err != nil {
		return nil, err
	}

	if len(raw) > 0 && raw[0] == '{' {
		var single model.Subscription
		if err := json.Unmarshal(raw, &single); err == nil && single.User != "" {
			return &single, nil
		}
	}

	subs, err := decodeList[model.Subscription](raw)
	if err != nil {
		return nil, fmt.Errorf("декодирование подписки: %w", err)
	}
	if len(subs) == 0 {
		return nil, ErrNotFound
	}
	return &subs[0], nil
}
