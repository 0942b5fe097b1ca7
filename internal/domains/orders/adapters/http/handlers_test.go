package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordersmemory "github.com/payetonkawa/order-api/internal/domains/orders/adapters/memory"
	"github.com/payetonkawa/order-api/internal/domains/orders/application"
	"github.com/payetonkawa/order-api/internal/domains/orders/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *application.Service) {
	t.Helper()
	svc := application.NewService(ordersmemory.NewRepository(), nil)
	return NewServer(svc, "order-api-test", nil), svc
}

func perform(t *testing.T, s *Server, method, path string, body any, roles string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if roles != "" {
		req.Header.Set("X-Auth-Roles", roles)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func seedOrder(t *testing.T, svc *application.Service, customerID int64) *domain.Order {
	t.Helper()
	order, err := svc.SubmitOrder(context.Background(), customerID, []domain.ItemSpec{
		{ProductID: 1, Quantity: 2},
	})
	require.NoError(t, err)
	require.NoError(t, svc.ApplyPriceQuote(context.Background(), order.ID, customerID, []domain.PricedItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
	}, decimal.NewFromInt(20)))
	priced, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	return priced
}

func TestCreateOrder_Accepted(t *testing.T) {
	server, _ := newTestServer(t)

	rec := perform(t, server, http.MethodPost, "/orders", gin.H{
		"customer_id": 42,
		"items":       []gin.H{{"product_id": 1, "quantity": 2}},
	}, RoleWrite)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["id"])
	assert.Equal(t, string(domain.StatusPending), body["status"])
}

func TestCreateOrder_ValidationProblem(t *testing.T) {
	server, _ := newTestServer(t)

	rec := perform(t, server, http.MethodPost, "/orders", gin.H{
		"customer_id": 0,
		"items":       []gin.H{{"product_id": 1, "quantity": 2}},
	}, RoleWrite)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestCreateOrder_MissingRole(t *testing.T) {
	server, _ := newTestServer(t)

	rec := perform(t, server, http.MethodPost, "/orders", gin.H{
		"customer_id": 42,
		"items":       []gin.H{{"product_id": 1, "quantity": 2}},
	}, RoleRead)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestGetOrder_Found(t *testing.T) {
	server, svc := newTestServer(t)
	order := seedOrder(t, svc, 42)

	rec := perform(t, server, http.MethodGet, "/orders/1", nil, RoleRead)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(order.ID), body["id"])
	assert.Equal(t, float64(42), body["customer_id"])
	assert.Equal(t, 20.0, body["total"])
}

func TestGetOrder_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	rec := perform(t, server, http.MethodGet, "/orders/404", nil, RoleRead)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder_InvalidID(t *testing.T) {
	server, _ := newTestServer(t)

	rec := perform(t, server, http.MethodGet, "/orders/abc", nil, RoleRead)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrders_FilterByCustomer(t *testing.T) {
	server, svc := newTestServer(t)
	seedOrder(t, svc, 42)
	seedOrder(t, svc, 42)
	seedOrder(t, svc, 7)

	rec := perform(t, server, http.MethodGet, "/orders?customer_id=42", nil, RoleRead)

	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body, 2)
}

func TestListOrders_Pagination(t *testing.T) {
	server, svc := newTestServer(t)
	for i := 0; i < 3; i++ {
		seedOrder(t, svc, 42)
	}

	rec := perform(t, server, http.MethodGet, "/orders?skip=1&limit=1", nil, RoleRead)

	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, float64(2), body[0]["id"])
}

func TestUpdateStatus_Transition(t *testing.T) {
	server, svc := newTestServer(t)
	seedOrder(t, svc, 42)

	rec := perform(t, server, http.MethodPut, "/orders/1/status", gin.H{"status": "CANCELLED"}, RoleWrite)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CANCELLED", body["status"])
}

func TestUpdateStatus_InvalidValue(t *testing.T) {
	server, svc := newTestServer(t)
	seedOrder(t, svc, 42)

	rec := perform(t, server, http.MethodPut, "/orders/1/status", gin.H{"status": "SHIPPED"}, RoleWrite)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatus_IllegalTransition(t *testing.T) {
	server, svc := newTestServer(t)
	order := seedOrder(t, svc, 42)
	_, err := svc.TransitionStatus(context.Background(), order.ID, domain.StatusCancelled, false)
	require.NoError(t, err)

	rec := perform(t, server, http.MethodPut, "/orders/1/status", gin.H{"status": "CONFIRMED"}, RoleWrite)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateItems_ReplacesQuantities(t *testing.T) {
	server, svc := newTestServer(t)
	seedOrder(t, svc, 42)

	rec := perform(t, server, http.MethodPut, "/orders/1/items", gin.H{
		"items": []gin.H{{"product_id": 1, "quantity": 5}},
	}, RoleWrite)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 50.0, body["total"])
}

func TestUpdateItems_MissingPrice(t *testing.T) {
	server, svc := newTestServer(t)
	seedOrder(t, svc, 42)

	rec := perform(t, server, http.MethodPut, "/orders/1/items", gin.H{
		"items": []gin.H{{"product_id": 99, "quantity": 1}},
	}, RoleWrite)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteOrder_NoContent(t *testing.T) {
	server, svc := newTestServer(t)
	seedOrder(t, svc, 42)

	rec := perform(t, server, http.MethodDelete, "/orders/1", nil, RoleWrite)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = perform(t, server, http.MethodGet, "/orders/1", nil, RoleRead)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth_NoRoleRequired(t *testing.T) {
	server, _ := newTestServer(t)

	rec := perform(t, server, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}
