package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthenticated
	NotFound
	PermissionDenied
	InvalidState
	InsufficientStock
	ProductUnavailable
	AmountMismatch
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "VALIDATION_ERROR"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case NotFound:
		return "NOT_FOUND"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case InvalidState:
		return "INVALID_STATE"
	case InsufficientStock:
		return "INSUFFICIENT_STOCK"
	case ProductUnavailable:
		return "PRODUCT_UNAVAILABLE"
	case AmountMismatch:
		return "AMOUNT_MISMATCH"
	case Conflict:
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus также используется как code в конверте ответа.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case InvalidState, InsufficientStock, Conflict:
		return http.StatusConflict
	case ProductUnavailable, AmountMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error описывает нарушение бизнес-правила; текст можно показывать клиенту.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is сравнивает ошибки по виду. Цель без сообщения совпадает с любым
// сообщением этого вида, поэтому сентинелы ниже работают с errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

var (
	ErrValidation         = &Error{Kind: Validation}
	ErrUnauthenticated    = &Error{Kind: Unauthenticated}
	ErrNotFound           = &Error{Kind: NotFound}
	ErrPermissionDenied   = &Error{Kind: PermissionDenied}
	ErrInvalidState       = &Error{Kind: InvalidState}
	ErrInsufficientStock  = &Error{Kind: InsufficientStock}
	ErrProductUnavailable = &Error{Kind: ProductUnavailable}
	ErrAmountMismatch     = &Error{Kind: AmountMismatch}
	ErrConflict           = &Error{Kind: Conflict}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf возвращает Internal для всего, что не *Error.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// As возвращает бизнес-ошибку из цепочки err, если она есть.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
