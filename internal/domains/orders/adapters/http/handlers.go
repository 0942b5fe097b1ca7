package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/payetonkawa/order-api/internal/domains/orders/application"
	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
	"github.com/payetonkawa/order-api/internal/domains/orders/ports"
	sharederrors "github.com/payetonkawa/order-api/internal/shared/errors"
)

type itemRequest struct {
	ProductID int64    `json:"product_id"`
	Quantity  int32    `json:"quantity"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
}

type createOrderRequest struct {
	CustomerID int64         `json:"customer_id"`
	Items      []itemRequest `json:"items"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateItemsRequest struct {
	Items []itemRequest `json:"items"`
}

type itemResponse struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"order_id"`
	ProductID int64   `json:"product_id"`
	Quantity  int32   `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

type orderResponse struct {
	ID         int64          `json:"id"`
	CustomerID int64          `json:"customer_id"`
	Status     string         `json:"status"`
	Total      float64        `json:"total"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Items      []itemResponse `json:"items"`
}

// createOrder accepts the order and returns 202: pricing and validation
// happen asynchronously through the saga, not in this request.
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sharederrors.Respond(c, sharederrors.ErrBadRequest.WithDetail("invalid request body"))
		return
	}
	specs := make([]domain.ItemSpec, 0, len(req.Items))
	for _, it := range req.Items {
		specs = append(specs, domain.ItemSpec{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	order, err := s.svc.SubmitOrder(c.Request.Context(), req.CustomerID, specs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": order.ID, "status": string(order.Status)})
}

func (s *Server) listOrders(c *gin.Context) {
	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", 100)
	filter := ports.ListFilter{}
	if raw := c.Query("customer_id"); raw != "" {
		customerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			sharederrors.Respond(c, sharederrors.ErrBadRequest.WithDetail("invalid customer_id"))
			return
		}
		filter.CustomerID = &customerID
	}
	orders, err := s.svc.ListOrders(c.Request.Context(), filter, skip, limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	response := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		response = append(response, toResponse(order))
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := s.orderID(c)
	if !ok {
		return
	}
	order, err := s.svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(order))
}

func (s *Server) updateStatus(c *gin.Context) {
	id, ok := s.orderID(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		sharederrors.Respond(c, sharederrors.ErrBadRequest.WithDetail("status field is required"))
		return
	}
	status := domain.Status(req.Status)
	if !status.IsValid() {
		sharederrors.Respond(c, sharederrors.ErrBadRequest.WithDetail("invalid status value"))
		return
	}
	order, err := s.svc.TransitionStatus(c.Request.Context(), id, status, true)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(order))
}

func (s *Server) updateItems(c *gin.Context) {
	id, ok := s.orderID(c)
	if !ok {
		return
	}
	var req updateItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		sharederrors.Respond(c, sharederrors.ErrBadRequest.WithDetail("items field is required"))
		return
	}
	changes := make([]domain.ItemChange, 0, len(req.Items))
	for _, it := range req.Items {
		change := domain.ItemChange{ProductID: it.ProductID, Quantity: it.Quantity}
		if it.UnitPrice != nil {
			price := decimal.NewFromFloat(*it.UnitPrice)
			change.UnitPrice = &price
		}
		changes = append(changes, change)
	}
	order, err := s.svc.ReplaceItems(c.Request.Context(), id, changes)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResponse(order))
}

func (s *Server) deleteOrder(c *gin.Context) {
	id, ok := s.orderID(c)
	if !ok {
		return
	}
	if err := s.svc.RemoveOrder(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		sharederrors.Respond(c, sharederrors.ErrBadRequest.WithDetail("invalid order id"))
		return 0, false
	}
	return id, true
}

func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		sharederrors.Respond(c, sharederrors.NewNotFoundProblem("order", c.Param("id")))
	case errors.Is(err, ports.ErrConflict):
		sharederrors.Respond(c, sharederrors.ErrConflict.WithDetail("order was modified concurrently"))
	case errors.Is(err, application.ErrInvalidInput):
		sharederrors.Respond(c, sharederrors.ErrValidation.WithDetail(err.Error()))
	default:
		sharederrors.Respond(c, sharederrors.ErrInternal.WithDetail(err.Error()))
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func toResponse(order *domain.Order) orderResponse {
	items := make([]itemResponse, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, itemResponse{
			ID:        it.ID,
			OrderID:   it.OrderID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.InexactFloat64(),
			LineTotal: it.LineTotal.InexactFloat64(),
		})
	}
	return orderResponse{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		Total:      order.Total.InexactFloat64(),
		Version:    order.Version,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
		Items:      items,
	}
}
