package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"catalog-service/internal/asset"
	mid "catalog-service/internal/middleware"
	"catalog-service/internal/model"
	"catalog-service/internal/service"
	"catalog-service/internal/store"
	"catalog-service/pkg/config"
	"catalog-service/pkg/jwtutil"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	e       *echo.Echo
	tokens  map[string]string
	uploads string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "handler-test", ExpirationHours: 1})

	st := store.NewMemoryStore(time.Second)
	st.PutCategory(model.Category{ID: 1, Name: "Kitchen"})
	uploads := t.TempDir()
	resolver, err := asset.NewResolver(uploads)
	require.NoError(t, err)

	h := NewItemHandler(service.NewCatalogService(st), resolver, 2)
	e := echo.New()
	e.Use(mid.RequestIDMiddleware)
	h.Register(e.Group("/api/items", mid.AuthMiddleware))
	e.GET("/health", Health(nil))

	srv := &testServer{e: e, tokens: map[string]string{}, uploads: uploads}
	for name, claims := range map[string]jwtutil.ActorClaims{
		"alice": {UserID: 1, Name: "Alice", Address: "1 Main St", Role: "Retailer"},
		"bob":   {UserID: 2, Name: "Bob", Address: "2 High St", Role: "Retailer"},
		"carol": {UserID: 3, Name: "Carol", Address: "3 Low St", Role: "Customer"},
	} {
		tok, err := jwtutil.GenerateToken(claims)
		require.NoError(t, err)
		srv.tokens[name] = tok
	}
	return srv
}

func (s *testServer) do(who, method, path, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if who != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[who])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) doJSON(who, method, path string, payload any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(payload)
	return s.do(who, method, path, echo.MIMEApplicationJSON, bytes.NewBuffer(raw))
}

func decodeItem(t *testing.T, rec *httptest.ResponseRecorder) model.CatalogItem {
	t.Helper()
	var item model.CatalogItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item), rec.Body.String())
	return item
}

func decodeItems(t *testing.T, rec *httptest.ResponseRecorder) []model.CatalogItem {
	t.Helper()
	var items []model.CatalogItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items), rec.Body.String())
	return items
}

func (s *testServer) createKettle(t *testing.T) model.CatalogItem {
	t.Helper()
	rec := s.doJSON("alice", http.MethodPost, "/api/items", map[string]any{
		"name": "Kettle", "brand": "Acme", "category": 1, "isFeatured": true,
		"price": 25, "countInStock": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeItem(t, rec)
}

type filePart struct {
	field, name, contentType, body string
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestCreateAndReadItem(t *testing.T) {
	s := newTestServer(t)
	created := s.createKettle(t)

	assert.Equal(t, "Kettle", created.Name)
	assert.Equal(t, int64(10), created.TotalQuantity)
	assert.Equal(t, model.SegmentRetail, created.SellerSegment)
	require.Len(t, created.Listings, 1)
	assert.Equal(t, uint(1), created.Listings[0].SellerID)
	require.NotNil(t, created.Category)
	assert.Equal(t, "Kitchen", created.Category.Name)

	rec := s.do("carol", http.MethodGet, "/api/items/"+created.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeItem(t, rec).ID)
}

func TestMarketAndOwnSegmentViews(t *testing.T) {
	s := newTestServer(t)
	created := s.createKettle(t)

	// Customers browse retail goods
	market := decodeItems(t, s.do("carol", http.MethodGet, "/api/items", "", nil))
	require.Len(t, market, 1)
	assert.Equal(t, created.ID, market[0].ID)

	// Retailers list their own segment under /role
	own := decodeItems(t, s.do("bob", http.MethodGet, "/api/items/role", "", nil))
	require.Len(t, own, 1)

	assert.Empty(t, decodeItems(t, s.do("bob", http.MethodGet, "/api/items", "", nil)))
	assert.Empty(t, decodeItems(t, s.do("carol", http.MethodGet, "/api/items?categories=2", "", nil)))
	assert.Len(t, decodeItems(t, s.do("carol", http.MethodGet, "/api/items?categories=1,2", "", nil)), 1)

	rec := s.do("carol", http.MethodGet, "/api/items?categories=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFeaturedItems(t *testing.T) {
	s := newTestServer(t)
	s.createKettle(t)
	s.createKettle(t)

	assert.Len(t, decodeItems(t, s.do("alice", http.MethodGet, "/api/items/featured/1", "", nil)), 1)
	assert.Len(t, decodeItems(t, s.do("alice", http.MethodGet, "/api/items/featured/0", "", nil)), 2)
	assert.Empty(t, decodeItems(t, s.do("carol", http.MethodGet, "/api/items/featured/5", "", nil)))

	rec := s.do("alice", http.MethodGet, "/api/items/featured/-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcileThroughAPI(t *testing.T) {
	s := newTestServer(t)
	created := s.createKettle(t)
	path := "/api/items/" + created.ID.String()

	rec := s.doJSON("bob", http.MethodPut, path, map[string]any{"price": 20, "countInStock": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item := decodeItem(t, rec)
	assert.Equal(t, int64(14), item.TotalQuantity)
	assert.Len(t, item.Listings, 2)
	assert.Equal(t, "Kettle", item.Name)

	// Existing seller shrinks and renames through a form post
	body, ctype := multipartBody(t, map[string]string{"name": "Tea Kettle", "price": "18", "countInStock": "1"})
	rec = s.do("alice", http.MethodPut, path, ctype, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item = decodeItem(t, rec)
	assert.Equal(t, int64(5), item.TotalQuantity)
	assert.Equal(t, "Tea Kettle", item.Name)
	assert.Equal(t, "18", item.Price.String())
}

func TestReconcileErrors(t *testing.T) {
	s := newTestServer(t)
	created := s.createKettle(t)
	path := "/api/items/" + created.ID.String()

	cases := map[string]struct {
		who     string
		path    string
		payload map[string]any
		status  int
	}{
		"segment mismatch":  {"carol", path, map[string]any{"price": 1, "countInStock": 1}, http.StatusForbidden},
		"missing item":      {"bob", "/api/items/" + uuid.NewString(), map[string]any{"price": 1, "countInStock": 1}, http.StatusNotFound},
		"bad id":            {"bob", "/api/items/abc", map[string]any{"price": 1, "countInStock": 1}, http.StatusBadRequest},
		"missing quantity":  {"bob", path, map[string]any{"price": 1}, http.StatusBadRequest},
		"negative quantity": {"bob", path, map[string]any{"price": 1, "countInStock": -3}, http.StatusBadRequest},
		"negative price":    {"bob", path, map[string]any{"price": -1, "countInStock": 3}, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.doJSON(tc.who, http.MethodPut, tc.path, tc.payload)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	rec := s.do("carol", http.MethodGet, path, "", nil)
	assert.Equal(t, int64(10), decodeItem(t, rec).TotalQuantity)
}

func TestCreateWithUploadedImage(t *testing.T) {
	s := newTestServer(t)

	body, ctype := multipartBody(t,
		map[string]string{"name": "Mug", "price": "4.5", "countInStock": "3"},
		filePart{"image", "blue mug.png", "image/png", "png-bytes"})
	rec := s.do("alice", http.MethodPost, "/api/items", ctype, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	item := decodeItem(t, rec)
	assert.True(t, strings.HasPrefix(item.Image, "http://example.com/uploads/blue-mug-"), item.Image)
	assert.True(t, strings.HasSuffix(item.Image, ".png"))
	assert.Equal(t, "4.5", item.Price.String())

	body, ctype = multipartBody(t,
		map[string]string{"name": "Mug", "price": "4.5", "countInStock": "3"},
		filePart{"image", "notes.txt", "text/plain", "hello"})
	rec = s.do("alice", http.MethodPost, "/api/items", ctype, body)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestCreateRequiresName(t *testing.T) {
	s := newTestServer(t)
	rec := s.doJSON("alice", http.MethodPost, "/api/items", map[string]any{"price": 1, "countInStock": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReplaceImages(t *testing.T) {
	s := newTestServer(t)
	created := s.createKettle(t)
	path := "/api/items/" + created.ID.String() + "/images"

	body, ctype := multipartBody(t, nil,
		filePart{"images", "a.png", "image/png", "a"},
		filePart{"images", "b.jpg", "image/jpeg", "b"})
	rec := s.do("alice", http.MethodPut, path, ctype, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	item := decodeItem(t, rec)
	require.Len(t, item.Images, 2)
	assert.Equal(t, int64(10), item.TotalQuantity)

	body, ctype = multipartBody(t, nil,
		filePart{"images", "a.png", "image/png", "a"},
		filePart{"images", "b.png", "image/png", "b"},
		filePart{"images", "c.png", "image/png", "c"})
	rec = s.do("alice", http.MethodPut, path, ctype, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ctype = multipartBody(t, nil, filePart{"images", "a.gif", "image/gif", "a"})
	rec = s.do("alice", http.MethodPut, path, ctype, body)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	body, ctype = multipartBody(t, nil, filePart{"images", "a.png", "image/png", "a"})
	rec = s.do("carol", http.MethodPut, path, ctype, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	rec := s.do("", http.MethodGet, "/api/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do("", http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func (s *testServer) storedUploads(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(s.uploads)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRejectedWritesLeaveNoUploads(t *testing.T) {
	s := newTestServer(t)
	created := s.createKettle(t)
	path := "/api/items/" + created.ID.String()

	// Wrong segment is refused before the file is written
	body, ctype := multipartBody(t,
		map[string]string{"price": "1", "countInStock": "1"},
		filePart{"image", "kettle.png", "image/png", "png"})
	rec := s.do("carol", http.MethodPut, path, ctype, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, s.storedUploads(t))

	body, ctype = multipartBody(t,
		map[string]string{"price": "1", "countInStock": "1"},
		filePart{"image", "kettle.png", "image/png", "png"})
	rec = s.do("bob", http.MethodPut, "/api/items/"+uuid.NewString(), ctype, body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, s.storedUploads(t))

	// Rejected by the reconciliation itself after the file was stored
	body, ctype = multipartBody(t,
		map[string]string{"price": "-1", "countInStock": "1"},
		filePart{"image", "kettle.png", "image/png", "png"})
	rec = s.do("bob", http.MethodPut, path, ctype, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.storedUploads(t))

	body, ctype = multipartBody(t,
		map[string]string{"name": "Mug", "price": "1", "countInStock": "-1"},
		filePart{"image", "mug.png", "image/png", "png"})
	rec = s.do("alice", http.MethodPost, "/api/items", ctype, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.storedUploads(t))

	// A successful update keeps its file
	body, ctype = multipartBody(t,
		map[string]string{"price": "20", "countInStock": "2"},
		filePart{"image", "kettle.png", "image/png", "png"})
	rec = s.do("bob", http.MethodPut, path, ctype, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, s.storedUploads(t), 1)
}
