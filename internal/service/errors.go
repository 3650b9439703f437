// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/journivo/internal/backend"
	"github.com/bigkaa/journivo/internal/session"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrSubmitInProgress — такая же операция с публикацией уже выполняется.
	ErrSubmitInProgress = errors.New("операция с публикацией уже выполняется")
	// ErrReferenceConsumed — платёжный reference уже оплатил другой переход.
	ErrReferenceConsumed = errors.New("платёжный reference уже использован")
	// ErrReferenceMismatch — платёж относится к другой публикации, пользователю или назначению.
	ErrReferenceMismatch = errors.New("платёж не относится к этой операции")
	// ErrPaymentNotVerified — платёж не подтверждён шлюзом.
	ErrPaymentNotVerified = errors.New("платёж не подтверждён")
	// ErrCommentLocked — окно изменения комментария истекло.
	ErrCommentLocked = errors.New("комментарий больше нельзя изменить")
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("ошибка валидации")
	// ErrBackendUnavailable — backend недоступен.
	ErrBackendUnavailable = backend.ErrUnavailable
)

// GateError — сбой платёжного шлюза (инициализация или проверка платежа).
// Переход публикации при этом не выполняется.
type GateError struct {
	Op  string
	Err error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("платёжный шлюз (%s): %v", e.Op, e.Err)
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// gateError оборачивает ошибку backend в GateError.
// Ошибки авторизации пропускаются как есть: их обрабатывает единый перехватчик 401.
func gateError(op string, err error) error {
	if errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, backend.ErrForbidden) {
		return err
	}
	return &GateError{Op: op, Err: err}
}

// sessionExpired сообщает, что сессия пользователя больше не действительна.
// Такие ошибки всегда доходят до HTTP-слоя без подмены итога операции.
func sessionExpired(err error) bool {
	return errors.Is(err, backend.ErrUnauthorized) || errors.Is(err, session.ErrUnauthenticated)
}
