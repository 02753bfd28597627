package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"karte-backend/internal/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerHandler_List(t *testing.T) {
	customers := newFakeCustomers("Tanaka", "Suzuki")
	h := NewCustomerHandler(customers, &fakeLinks{}, apperror.NewValidator())

	rec := serve(h.ListCustomers, http.MethodGet, "/api/v1/customers", "/api/v1/customers?q=tana&limit=20", nil, "", adminSession)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tana", customers.query)
	assert.Equal(t, 20, customers.limit)

	var resp struct {
		Customers []map[string]any `json:"customers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Customers, 2)
	assert.NotContains(t, rec.Body.String(), "line_user_id")

	rec = serve(h.ListCustomers, http.MethodGet, "/api/v1/customers", "/api/v1/customers?limit=abc", nil, "", adminSession)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, customers.limit)
}

func TestCustomerHandler_CreateGetRenameDelete(t *testing.T) {
	customers := newFakeCustomers("Tanaka")
	h := NewCustomerHandler(customers, &fakeLinks{}, apperror.NewValidator())

	rec := serve(h.CreateCustomer, http.MethodPost, "/api/v1/customers", "/api/v1/customers",
		strings.NewReader(`{"display_name":"Suzuki"}`), "application/json", adminSession)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"display_name":"Suzuki"`)

	rec = serve(h.CreateCustomer, http.MethodPost, "/api/v1/customers", "/api/v1/customers",
		strings.NewReader(`{"display_name":""}`), "application/json", adminSession)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"validation failed","fields":[{"display_name":"is required"}]}`, rec.Body.String())

	rec = serve(h.GetCustomer, http.MethodGet, "/api/v1/customers/{id}", "/api/v1/customers/c1", nil, "", adminSession)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"linked":false`)

	rec = serve(h.GetCustomer, http.MethodGet, "/api/v1/customers/{id}", "/api/v1/customers/missing", nil, "", adminSession)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h.UpdateCustomer, http.MethodPatch, "/api/v1/customers/{id}", "/api/v1/customers/c1",
		strings.NewReader(`{"display_name":"Tanaka Hanako"}`), "application/json", adminSession)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Tanaka Hanako", customers.customers["c1"].DisplayName)

	rec = serve(h.DeleteCustomer, http.MethodDelete, "/api/v1/customers/{id}", "/api/v1/customers/c1", nil, "", adminSession)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"c1"}, customers.deleted)

	rec = serve(h.DeleteCustomer, http.MethodDelete, "/api/v1/customers/{id}", "/api/v1/customers/c1", nil, "", adminSession)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomerHandler_IssueLinkToken(t *testing.T) {
	links := &fakeLinks{}
	h := NewCustomerHandler(newFakeCustomers("Tanaka"), links, apperror.NewValidator())

	rec := serve(h.IssueLinkToken, http.MethodPost, "/api/v1/customers/{id}/link-tokens", "/api/v1/customers/c1/link-tokens", nil, "", adminSession)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "123456", resp["token"])
	assert.Equal(t, "c1", resp["customer_id"])
	assert.NotEmpty(t, resp["expires_at"])

	links.err = errors.New("connection reset")
	rec = serve(h.IssueLinkToken, http.MethodPost, "/api/v1/customers/{id}/link-tokens", "/api/v1/customers/c1/link-tokens", nil, "", adminSession)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}
