package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
)

// Envelope оборачивает тело любого ответа.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type ValidationErrorResponse map[string]string

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":500,"message":"internal server error","data":null}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("handler: failed to write JSON response")
	}
}

func respondWithSuccess(w http.ResponseWriter, data any) {
	respondWithJSON(w, http.StatusOK, Envelope{Code: http.StatusOK, Message: "success", Data: data})
}

// respondWithError отдаёт бизнес-ошибки как есть и скрывает все остальные.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("handler: request failed")
		respondWithJSON(w, http.StatusInternalServerError, Envelope{Code: http.StatusInternalServerError, Message: "internal server error"})
		return
	}

	code := appErr.Kind.HTTPStatus()
	respondWithJSON(w, code, Envelope{Code: code, Message: appErr.Error()})
}

// WriteError даёт respondWithError middleware из других пакетов.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	respondWithError(w, r, err)
}

func respondWithValidation(w http.ResponseWriter, details ValidationErrorResponse) {
	respondWithJSON(w, http.StatusBadRequest, Envelope{
		Code:    http.StatusBadRequest,
		Message: "validation failed",
		Data:    details,
	})
}

func formatValidationErrors(errs validator.ValidationErrors) ValidationErrorResponse {
	details := make(ValidationErrorResponse, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			details[field] = "is required"
		case "min", "gte":
			details[field] = fmt.Sprintf("must be at least %s", fe.Param())
		case "max", "lte":
			details[field] = fmt.Sprintf("must be at most %s", fe.Param())
		case "gt":
			details[field] = fmt.Sprintf("must be greater than %s", fe.Param())
		case "oneof":
			details[field] = fmt.Sprintf("must be one of [%s]", fe.Param())
		default:
			details[field] = fmt.Sprintf("failed on %s", fe.Tag())
		}
	}
	return details
}

// decodeAndValidate сам пишет ответ с ошибкой и сообщает,
// можно ли хендлеру продолжать.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("handler: failed to decode request body")
		message := "invalid request body"
		if errors.Is(err, io.EOF) {
			message = "request body is empty"
		}
		respondWithError(w, r, apperror.New(apperror.Validation, message))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithValidation(w, formatValidationErrors(validationErrors))
			return false
		}
		log.Error().Err(err).Type("validation_error_type", err).Msg("handler: unexpected error type during validation")
		respondWithError(w, r, err)
		return false
	}

	return true
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Newf(apperror.Validation, "invalid %s parameter", name)
	}
	return id, nil
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// в details используем JSON-имена полей, как их шлёт клиент
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}
