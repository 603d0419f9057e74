package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/arun-store/internal/auth"
	"github.com/safar/arun-store/internal/config"
	"github.com/safar/arun-store/internal/logging"
	"github.com/safar/arun-store/internal/testutil"
)

func newDBServer(t *testing.T) (*testServer, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewPostgres(t)
	tokens := auth.NewTokenManager(config.AuthConfig{
		JWTSecret: "test-secret",
		Issuer:    "arun-store-test",
		TokenTTL:  time.Hour,
	})
	h := NewHandler(db, &fakeOrders{}, &fakeQuotes{}, nil, logging.Discard())
	return &testServer{router: NewRouter(h, tokens, logging.Discard()), tokens: tokens}, db
}

func TestProductCatalog(t *testing.T) {
	s, db := newDBServer(t)
	staff := testutil.Staff(t, db)
	customer := testutil.Retail(t, db)
	staffTok := s.token(t, staff.ID, true)

	w := s.do(http.MethodPost, "/v1/admin/products", staffTok, gin.H{
		"sku":            "PASH-01",
		"name":           "Pashmina Shawl",
		"price":          "2500.00",
		"stock_quantity": 4,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "2500", created["wholesale_price"])
	assert.Equal(t, "pashmina-shawl-pash-01", created["slug"])
	id := int64(created["id"].(float64))

	w = s.do(http.MethodPost, "/v1/admin/products", staffTok, gin.H{"sku": "PASH-01", "name": "Again", "price": "1"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_exists", decodeError(t, w).Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/v1/products/%d", id), "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var anonymous map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &anonymous))
	assert.NotContains(t, anonymous, "price")
	assert.Equal(t, true, anonymous["in_stock"])

	w = s.do(http.MethodGet, "/v1/products", s.token(t, customer.ID, false), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []map[string]any `json:"items"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.NotContains(t, page.Items[0], "wholesale_price")
}

func TestCreateProductRejectsBadPrice(t *testing.T) {
	s, db := newDBServer(t)
	staff := testutil.Staff(t, db)

	w := s.do(http.MethodPost, "/v1/admin/products", s.token(t, staff.ID, true), gin.H{
		"sku":   "ZERO-1",
		"name":  "Free Fabric",
		"price": "0",
	}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body fieldErrorsBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body.Errors, "price")
}

func TestRestockVersionConflict(t *testing.T) {
	s, db := newDBServer(t)
	staff := testutil.Staff(t, db)
	p := testutil.Product(t, db, "100", "90", 1)
	tok := s.token(t, staff.ID, true)
	path := fmt.Sprintf("/v1/admin/products/%d/stock", p.ID)

	w := s.do(http.MethodPut, path, tok, gin.H{"stock_quantity": 0, "version": p.Version}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPut, path, tok, gin.H{"stock_quantity": 50, "version": p.Version}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "version_conflict", decodeError(t, w).Code)

	w = s.do(http.MethodPut, "/v1/admin/products/999999/stock", tok, gin.H{"stock_quantity": 1, "version": 1}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnavailableProductHiddenFromCustomers(t *testing.T) {
	s, db := newDBServer(t)
	staff := testutil.Staff(t, db)

	w := s.do(http.MethodPost, "/v1/admin/products", s.token(t, staff.ID, true), gin.H{
		"sku":          "HIDDEN-1",
		"name":         "Draft Fabric",
		"price":        "10",
		"is_available": false,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	path := fmt.Sprintf("/v1/products/%v", created["id"])

	w = s.do(http.MethodGet, path, "", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, path, s.token(t, staff.ID, true), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProductAvailabilityAndDelete(t *testing.T) {
	s, db := newDBServer(t)
	staffTok := s.token(t, testutil.Staff(t, db).ID, true)
	customerTok := s.token(t, testutil.Retail(t, db).ID, false)
	p := testutil.Product(t, db, "500", "400", 4)
	path := fmt.Sprintf("/v1/products/%d", p.ID)
	admin := fmt.Sprintf("/v1/admin/products/%d", p.ID)

	w := s.do(http.MethodPut, admin+"/availability", customerTok, gin.H{"is_available": false}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, admin+"/availability", staffTok, gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, admin+"/availability", staffTok, gin.H{"is_available": false}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["is_available"])

	w = s.do(http.MethodGet, path, customerTok, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPut, admin+"/availability", staffTok, gin.H{"is_available": true}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, path, customerTok, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodDelete, admin, staffTok, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(http.MethodGet, path, staffTok, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, admin, staffTok, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "product_not_found", decodeError(t, w).Code)

	w = s.do(http.MethodPut, "/v1/admin/products/999999/availability", staffTok, gin.H{"is_available": true}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCartAndAddresses(t *testing.T) {
	s, db := newDBServer(t)
	user := testutil.Retail(t, db)
	other := testutil.Retail(t, db)
	p := testutil.Product(t, db, "1000", "800", 3)
	tok := s.token(t, user.ID, false)

	w := s.do(http.MethodPost, "/v1/cart/items", tok, gin.H{"product_id": p.ID, "quantity": 2}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/cart/items", tok, gin.H{"product_id": p.ID, "quantity": 5}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "stock_exceeded", decodeError(t, w).Code)

	w = s.do(http.MethodGet, "/v1/cart", tok, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cart map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cart))
	assert.EqualValues(t, 2, cart["total_items"])
	assert.Equal(t, "2000", cart["total_amount"])

	w = s.do(http.MethodPost, "/v1/cart/clear", tok, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodPost, "/v1/addresses", tok, gin.H{
		"full_name":    "Sita Sharma",
		"address_line": "Lakeside",
		"city":         "Pokhara",
		"is_default":   true,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var addr map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &addr))
	path := fmt.Sprintf("/v1/addresses/%v", addr["id"])

	w = s.do(http.MethodDelete, path, s.token(t, other.ID, false), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, path, tok, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/v1/addresses", tok, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

func TestSavedItems(t *testing.T) {
	s, db := newDBServer(t)
	user := testutil.Retail(t, db)
	p := testutil.Product(t, db, "450", "400", 10)
	tok := s.token(t, user.ID, false)

	w := s.do(http.MethodPost, "/v1/saved-items", tok, gin.H{"product_id": p.ID, "notes": "for Dashain"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var saved map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.EqualValues(t, 1, saved["quantity"])

	w = s.do(http.MethodPost, fmt.Sprintf("/v1/saved-items/%v/move-to-cart", saved["id"]), tok, nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/v1/saved-items", tok, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[]}`, w.Body.String())
}

func TestAdminUsers(t *testing.T) {
	s, db := newDBServer(t)
	staff := testutil.Staff(t, db)
	tok := s.token(t, staff.ID, true)

	w := s.do(http.MethodPost, "/v1/admin/users", tok, gin.H{
		"email":              "trader@example.com",
		"name":               "Hari Traders",
		"is_wholesale":       true,
		"wholesale_discount": "12.5",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/admin/users", tok, gin.H{"email": "trader@example.com", "name": "Dup"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/v1/admin/users", tok, gin.H{"email": "not-an-email", "name": "X"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body fieldErrorsBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Value is invalid.", body.Errors["email"])

	w = s.do(http.MethodGet, fmt.Sprintf("/v1/admin/users/%d", staff.ID), tok, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/v1/admin/users/999999", tok, nil, nil)
	assert.Equal(t, "user_not_found", decodeError(t, w).Code)

	w = s.do(http.MethodGet, "/v1/admin/users", tok, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 2, page.Total)
}
