package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
	"github.com/vasiliy-maslov/checkout-service/internal/checkout"
	"github.com/vasiliy-maslov/checkout-service/internal/order"
)

const (
	idempotencyHeader = "Idempotency-Key"
	maxIdempotencyKey = 64
	dateLayout        = "2006-01-02"
)

var minTotalAmount = decimal.RequireFromString("0.01")

// OrderCreator описывает точку входа в оформление заказа для хендлера.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req checkout.Request) (*order.Order, error)
}

type OrderHandler struct {
	orders   order.Service
	checkout OrderCreator
	validate *validator.Validate
}

func NewOrderHandler(orders order.Service, creator OrderCreator) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		checkout: creator,
		validate: newValidator(),
	}
}

// RegisterRoutes регистрирует маршруты заказов; admin защищает отправку.
func (h *OrderHandler) RegisterRoutes(router chi.Router, admin func(http.Handler) http.Handler) {
	router.Route("/order", func(r chi.Router) {
		r.Post("/create", h.create)
		r.Get("/list", h.list)
		r.Get("/{orderId}", h.detail)
		r.Put("/{orderId}/pay", h.pay)
		r.Put("/{orderId}/confirm", h.confirm)
		r.Put("/{orderId}/cancel", h.cancel)
		r.Delete("/{orderId}", h.remove)
		r.With(admin).Put("/{orderId}/ship", h.ship)
	})
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	checkoutReq, err := toCheckoutRequest(userID, &req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	checkoutReq.IdempotencyKey = r.Header.Get(idempotencyHeader)
	if len(checkoutReq.IdempotencyKey) > maxIdempotencyKey {
		respondWithError(w, r, apperror.Newf(apperror.Validation, "%s must be at most %d characters", idempotencyHeader, maxIdempotencyKey))
		return
	}

	created, err := h.checkout.CreateOrder(r.Context(), checkoutReq)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, toOrderResponse(created))
}

func toCheckoutRequest(userID int64, req *CreateOrderRequest) (checkout.Request, error) {
	out := checkout.Request{
		UserID:         userID,
		TotalAmount:    *req.TotalAmount,
		ShippingFee:    decimal.Zero,
		DiscountAmount: decimal.Zero,
		PaymentMethod:  order.PaymentMethod(req.PaymentMethod),
		Receiver: order.Receiver{
			Name:    req.ReceiverName,
			Phone:   req.ReceiverPhone,
			Address: req.ReceiverAddress,
		},
		Remark: req.Remark,
	}
	if req.TotalAmount.LessThan(minTotalAmount) {
		return out, apperror.New(apperror.Validation, "total_amount must be at least 0.01")
	}
	if req.ShippingFee != nil {
		out.ShippingFee = *req.ShippingFee
	}
	if req.DiscountAmount != nil {
		out.DiscountAmount = *req.DiscountAmount
	}
	for _, d := range []decimal.Decimal{out.TotalAmount, out.ShippingFee, out.DiscountAmount} {
		if !d.Equal(d.Truncate(2)) {
			return out, checkout.ErrAmountScale
		}
	}

	fromCart := req.FromCart || len(req.CartIDs) > 0
	switch {
	case fromCart && len(req.Items) > 0:
		return out, checkout.ErrAmbiguousSource
	case fromCart:
		out.Source = checkout.FromCart{LineIDs: req.CartIDs}
	case len(req.Items) > 0:
		lines := make([]checkout.DirectLine, 0, len(req.Items))
		for _, it := range req.Items {
			lines = append(lines, checkout.DirectLine{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		out.Source = checkout.Direct{Lines: lines}
	default:
		return out, checkout.ErrNoLines
	}
	return out, nil
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	page, err := h.orders.ListOrders(r.Context(), userID, filter)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, toOrderPage(page))
}

func parseListFilter(r *http.Request) (order.ListFilter, error) {
	q := r.URL.Query()
	var filter order.ListFilter

	intParam := func(name string) (int, error) {
		raw := q.Get(name)
		if raw == "" {
			return 0, nil
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return 0, apperror.Newf(apperror.Validation, "invalid %s parameter", name)
		}
		return v, nil
	}

	var err error
	if filter.Page, err = intParam("page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = intParam("page_size"); err != nil {
		return filter, err
	}
	if raw := q.Get("status"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return filter, apperror.New(apperror.Validation, "invalid status parameter")
		}
		status := order.Status(v)
		filter.Status = &status
	}
	filter.OrderNumber = q.Get("order_number")

	if raw := q.Get("start_date"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, apperror.New(apperror.Validation, "start_date must be YYYY-MM-DD")
		}
		filter.From = &from
	}
	if raw := q.Get("end_date"); raw != "" {
		day, err := time.Parse(dateLayout, raw)
		if err != nil {
			return filter, apperror.New(apperror.Validation, "end_date must be YYYY-MM-DD")
		}
		// конечная дата включается
		to := day.Add(24*time.Hour - time.Nanosecond)
		filter.To = &to
	}
	return filter, nil
}

func (h *OrderHandler) detail(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, err := parseIDParam(r, "orderId")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	o, err := h.orders.GetOrderDetail(r.Context(), userID, orderID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, toOrderResponse(o))
}

type userTransition func(ctx context.Context, userID, orderID int64) (*order.Order, error)

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, do userTransition) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, err := parseIDParam(r, "orderId")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	o, err := do(r.Context(), userID, orderID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, toOrderResponse(o))
}

func (h *OrderHandler) pay(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Pay)
}

func (h *OrderHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Confirm)
}

func (h *OrderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Cancel)
}

func (h *OrderHandler) ship(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseIDParam(r, "orderId")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	o, err := h.orders.Ship(r.Context(), orderID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, toOrderResponse(o))
}

func (h *OrderHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, err := parseIDParam(r, "orderId")
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	if err := h.orders.Delete(r.Context(), userID, orderID); err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithSuccess(w, nil)
}
