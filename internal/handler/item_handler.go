package handler

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"catalog-service/internal/asset"
	mid "catalog-service/internal/middleware"
	"catalog-service/internal/model"
	"catalog-service/internal/service"
	"catalog-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ItemRequest defines the structure for item creation requests
type ItemRequest struct {
	Name         string  `json:"name" form:"name"`
	Brand        string  `json:"brand" form:"brand"`
	Description  string  `json:"description" form:"description"`
	Category     uint    `json:"category" form:"category"`
	IsFeatured   bool    `json:"isFeatured" form:"isFeatured"`
	Price        float64 `json:"price" form:"price"`
	CountInStock int64   `json:"countInStock" form:"countInStock"`
	Rating       float64 `json:"rating" form:"rating"`
	NumReviews   int     `json:"numReviews" form:"numReviews"`
	Image        string  `json:"image" form:"image"`
}

// UpdateItemRequest carries a seller's desired offer plus optional metadata.
// Absent metadata fields leave the item unchanged.
type UpdateItemRequest struct {
	Name         *string  `json:"name"`
	Brand        *string  `json:"brand"`
	Description  *string  `json:"description"`
	Category     *uint    `json:"category"`
	IsFeatured   *bool    `json:"isFeatured"`
	Image        *string  `json:"image"`
	Price        *float64 `json:"price"`
	CountInStock *int64   `json:"countInStock"`
}

// ItemHandler serves the catalog item API
type ItemHandler struct {
	catalog         *service.CatalogService
	assets          *asset.Resolver
	maxGalleryFiles int
}

func NewItemHandler(catalog *service.CatalogService, assets *asset.Resolver, maxGalleryFiles int) *ItemHandler {
	return &ItemHandler{catalog: catalog, assets: assets, maxGalleryFiles: maxGalleryFiles}
}

// Register mounts the item routes on an authenticated group
func (h *ItemHandler) Register(g *echo.Group) {
	g.GET("", h.ListItems)
	g.GET("/role", h.ListOwnSegment)
	g.GET("/featured/:count", h.Featured)
	g.GET("/:id", h.GetItem)
	g.POST("", h.CreateItem)
	g.PUT("/:id", h.UpdateItem)
	g.PUT("/:id/images", h.ReplaceImages)
}

// ListItems returns the items offered by the opposite side of the market
func (h *ItemHandler) ListItems(c echo.Context) error {
	return h.list(c, service.ViewMarket)
}

// ListOwnSegment returns the items the caller may list stock against
func (h *ItemHandler) ListOwnSegment(c echo.Context) error {
	return h.list(c, service.ViewOwnSegment)
}

func (h *ItemHandler) list(c echo.Context, view service.View) error {
	log := logger.FromContext(c)
	actor, ok := mid.ActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	categories, err := parseCategories(c.QueryParam("categories"))
	if err != nil {
		log.Warn("Invalid categories parameter", zap.String("value", c.QueryParam("categories")))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	items, err := h.catalog.ListItems(c.Request().Context(), actor, service.ListQuery{View: view, CategoryIDs: categories})
	if err != nil {
		return respondError(c, err)
	}

	log.Info("Items retrieved successfully", zap.Int("count", len(items)))
	return c.JSON(http.StatusOK, items)
}

// Featured returns up to :count featured items of the caller's segment
func (h *ItemHandler) Featured(c echo.Context) error {
	actor, ok := mid.ActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	count, err := strconv.Atoi(c.Param("count"))
	if err != nil || count < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "count must be a non-negative integer"})
	}

	items, err := h.catalog.FeaturedItems(c.Request().Context(), actor, count)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// GetItem returns a single item by ID
func (h *ItemHandler) GetItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	item, err := h.catalog.GetItem(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// CreateItem creates a new item owned by the caller's segment
func (h *ItemHandler) CreateItem(c echo.Context) error {
	log := logger.FromContext(c)
	actor, ok := mid.ActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req ItemRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Invalid request data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	stored, err := h.storeImage(c, "image")
	if err != nil {
		return respondError(c, err)
	}
	imageURL := stored
	if imageURL == "" {
		imageURL = req.Image
	}

	var categoryID *uint
	if req.Category != 0 {
		categoryID = &req.Category
	}

	log.Info("Item creation request",
		zap.String("name", req.Name),
		zap.Float64("price", req.Price),
		zap.Int64("count_in_stock", req.CountInStock))

	item, err := h.catalog.CreateItem(c.Request().Context(), actor, service.CreateItemRequest{
		Name:        req.Name,
		Brand:       req.Brand,
		Description: req.Description,
		CategoryID:  categoryID,
		IsFeatured:  req.IsFeatured,
		Rating:      req.Rating,
		NumReviews:  req.NumReviews,
		ImageURL:    imageURL,
		Price:       decimal.NewFromFloat(req.Price),
		Quantity:    req.CountInStock,
	})
	if err != nil {
		h.discard(c, stored)
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

// UpdateItem reconciles the caller's listing against the item
func (h *ItemHandler) UpdateItem(c echo.Context) error {
	log := logger.FromContext(c)
	actor, ok := mid.ActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	req, err := bindUpdate(c)
	if err != nil {
		log.Error("Invalid request data", zap.String("item_id", id.String()), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if req.Price == nil || req.CountInStock == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "price and countInStock are required"})
	}

	// Reject callers that cannot write this item before storing any upload
	current, err := h.catalog.GetItem(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	if current.SellerSegment != actor.Segment() {
		return respondError(c, model.ErrSegmentMismatch)
	}

	imageURL, err := h.storeImage(c, "image")
	if err != nil {
		return respondError(c, err)
	}
	if imageURL != "" {
		req.Image = &imageURL
	}

	item, err := h.catalog.Reconcile(c.Request().Context(), actor, service.ReconcileRequest{
		ItemID:      id,
		Name:        req.Name,
		Brand:       req.Brand,
		Description: req.Description,
		CategoryID:  req.Category,
		IsFeatured:  req.IsFeatured,
		ImageURL:    req.Image,
		Price:       decimal.NewFromFloat(*req.Price),
		Quantity:    *req.CountInStock,
	})
	if err != nil {
		h.discard(c, imageURL)
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// ReplaceImages uploads a new gallery for the item
func (h *ItemHandler) ReplaceImages(c echo.Context) error {
	log := logger.FromContext(c)
	actor, ok := mid.ActorFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "multipart form with images is required"})
	}
	files := form.File["images"]
	if len(files) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no images uploaded"})
	}
	if len(files) > h.maxGalleryFiles {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": fmt.Sprintf("at most %d images may be uploaded", h.maxGalleryFiles),
		})
	}

	// Check the item before writing any file
	current, err := h.catalog.GetItem(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	if current.SellerSegment != actor.Segment() {
		return respondError(c, model.ErrSegmentMismatch)
	}

	uploads := make([]asset.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable upload"})
		}
		defer f.Close()
		uploads = append(uploads, toUpload(fh, f))
	}

	urls, err := h.assets.ResolveAll(c.Request().Context(), baseURL(c), uploads)
	if err != nil {
		return respondError(c, err)
	}

	item, err := h.catalog.ReplaceImages(c.Request().Context(), actor, id, urls)
	if err != nil {
		h.discard(c, urls...)
		return respondError(c, err)
	}
	log.Info("Item gallery replaced", zap.String("item_id", id.String()), zap.Int("count", len(urls)))
	return c.JSON(http.StatusOK, item)
}

// storeImage saves the optional single file under field and returns its URL,
// or "" when the request carries no such file.
func (h *ItemHandler) storeImage(c echo.Context, field string) (string, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return "", nil
	}
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.assets.Resolve(c.Request().Context(), baseURL(c), toUpload(fh, f))
}

// discard removes uploads stored for a request whose write was rejected
func (h *ItemHandler) discard(c echo.Context, urls ...string) {
	for _, url := range urls {
		if url == "" {
			continue
		}
		if err := h.assets.Discard(url); err != nil {
			logger.FromContext(c).Warn("Failed to remove rejected upload", zap.String("url", url), zap.Error(err))
		}
	}
}

func toUpload(fh *multipart.FileHeader, f multipart.File) asset.Upload {
	return asset.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Body:        f,
	}
}

func baseURL(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host
}

// bindUpdate reads the update body. JSON decodes straight into the pointer
// fields; form posts are parsed by hand so absent fields stay nil.
func bindUpdate(c echo.Context) (*UpdateItemRequest, error) {
	req := &UpdateItemRequest{}
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ctype, echo.MIMEMultipartForm) && !strings.HasPrefix(ctype, echo.MIMEApplicationForm) {
		if err := (&echo.DefaultBinder{}).BindBody(c, req); err != nil {
			return nil, errors.New("invalid request data")
		}
		return req, nil
	}

	params, err := c.FormParams()
	if err != nil {
		return nil, errors.New("invalid request data")
	}
	value := func(key string) (string, bool) {
		if vs, ok := params[key]; ok && len(vs) > 0 {
			return vs[0], true
		}
		return "", false
	}

	if v, ok := value("name"); ok {
		req.Name = &v
	}
	if v, ok := value("brand"); ok {
		req.Brand = &v
	}
	if v, ok := value("description"); ok {
		req.Description = &v
	}
	if v, ok := value("image"); ok {
		req.Image = &v
	}
	if v, ok := value("category"); ok {
		n, err := strconv.ParseUint(v, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid category %q", v)
		}
		id := uint(n)
		req.Category = &id
	}
	if v, ok := value("isFeatured"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid isFeatured %q", v)
		}
		req.IsFeatured = &b
	}
	if v, ok := value("price"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q", v)
		}
		req.Price = &f
	}
	if v, ok := value("countInStock"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid countInStock %q", v)
		}
		req.CountInStock = &n
	}
	return req, nil
}

// parseCategories splits "1,2" into category ids
func parseCategories(raw string) ([]uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("invalid category id %q", part)
		}
		ids = append(ids, uint(n))
	}
	return ids, nil
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing actor"})
}

// respondError maps catalog errors onto HTTP statuses
func respondError(c echo.Context, err error) error {
	log := logger.FromContext(c)
	switch {
	case errors.Is(err, model.ErrItemNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Item not found"})
	case errors.Is(err, model.ErrSegmentMismatch):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "item belongs to another market segment"})
	case errors.Is(err, asset.ErrInvalidMediaType):
		return c.JSON(http.StatusUnsupportedMediaType, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidQuantity), errors.Is(err, model.ErrInvalidPrice):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrConflict), errors.Is(err, context.DeadlineExceeded):
		log.Warn("Catalog write conflict", zap.Error(err))
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusConflict, echo.Map{"error": "item is busy, retry the request"})
	default:
		log.Error("Unexpected catalog error", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
