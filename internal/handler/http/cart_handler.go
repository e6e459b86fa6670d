package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
	"github.com/vasiliy-maslov/checkout-service/internal/auth"
	"github.com/vasiliy-maslov/checkout-service/internal/cart"
)

type CartHandler struct {
	service  cart.Service
	validate *validator.Validate
}

func NewCartHandler(s cart.Service) *CartHandler {
	return &CartHandler{
		service:  s,
		validate: newValidator(),
	}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Route("/cart", func(r chi.Router) {
		r.Get("/list", h.list)
		r.Get("/selected", h.listSelected)
		r.Get("/count", h.count)
		r.Post("/add", h.add)
		r.Put("/update", h.update)
		r.Put("/select", h.selectLine)
		r.Put("/select/all", h.selectAll)
		r.Delete("/batch", h.removeMany)
		r.Delete("/clear", h.clear)
		r.Delete("/{cartId}", h.remove)
	})
}

// currentUser достаёт пользователя, которого положил auth middleware.
func currentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, r, apperror.New(apperror.Unauthenticated, "authentication required"))
		return 0, false
	}
	return userID, true
}

func (h *CartHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	views, err := h.service.List(r.Context(), userID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, toCartLines(views))
}

func (h *CartHandler) listSelected(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	views, err := h.service.ListSelected(r.Context(), userID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, toCartLines(views))
}

func (h *CartHandler) count(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	n, err := h.service.Count(r.Context(), userID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, CartCountResponse{Count: n})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req AddCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	line, err := h.service.AddItem(r.Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, toCartItem(line))
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req UpdateCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	line, err := h.service.UpdateQuantity(r.Context(), userID, req.CartID, req.Quantity)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, toCartItem(line))
}

func (h *CartHandler) selectLine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req SelectCartItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.service.Select(r.Context(), userID, req.CartID, *req.Selected); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, nil)
}

func (h *CartHandler) selectAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var selected bool
	switch r.URL.Query().Get("selected") {
	case "1", "true":
		selected = true
	case "0", "false":
	default:
		respondWithError(w, r, apperror.New(apperror.Validation, "selected must be 0 or 1"))
		return
	}

	if err := h.service.SelectAll(r.Context(), userID, selected); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, nil)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	lineID, err := parseIDParam(r, "cartId")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	if err := h.service.Remove(r.Context(), userID, lineID); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, nil)
}

func (h *CartHandler) removeMany(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req BatchDeleteCartRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.service.RemoveMany(r.Context(), userID, req.CartIDs); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, nil)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Clear(r.Context(), userID); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, nil)
}
