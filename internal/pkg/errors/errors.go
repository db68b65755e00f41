package errors

import (
	"errors"
	"net/http"
)

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок авторизации (неверный токен, нет прав).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidCredentials возвращается хранилищем одинаково для неизвестного
	// идентификатора и неверного пароля.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken используется, когда срок действия токена истек.
	ErrExpiredToken = errors.New("token expired")

	// ErrInvalidSignature используется, когда подпись токена не совпадает.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrMalformedToken используется, когда токен не удается разобрать.
	ErrMalformedToken = errors.New("malformed token")

	// ErrConflict используется при нарушении уникальности (username, email, привязка провайдера).
	ErrConflict = errors.New("resource state conflict")

	// ErrUnavailable используется при сбое внешней зависимости (сеть, таймаут, 5xx).
	ErrUnavailable = errors.New("service unavailable")
)

// Error несет класс ошибки и сообщение, которое можно показать клиенту.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// New создает ошибку с публичным сообщением.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap создает ошибку с публичным сообщением и исходной причиной.
func Wrap(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap позволяет errors.Is находить как класс, так и причину.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// IsTokenError сообщает, относится ли ошибка к проверке токена.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrMalformedToken)
}

// HTTPStatus возвращает HTTP-код для ошибки.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials), IsTokenError(err):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает сообщение для клиента.
// Для ошибок без публичного сообщения используется текст класса ошибки.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	for _, kind := range []error{
		ErrValidation, ErrInvalidCredentials, ErrExpiredToken, ErrInvalidSignature,
		ErrMalformedToken, ErrUnauthorized, ErrNotFound, ErrConflict,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	// Для 500 отдаем исходное сообщение: сбои зависимостей не маскируются
	return err.Error()
}
