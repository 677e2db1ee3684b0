package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"fruittrace/internal/middleware"
	"fruittrace/internal/model"
	"fruittrace/internal/service"
	"fruittrace/pkg/pagination"
	"fruittrace/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const mediaField = "media"

type ProductHandler struct {
	intake         service.IntakeService
	catalog        service.CatalogService
	public         service.PublicService
	auth           *middleware.Auth
	maxUploadBytes int64
}

func NewProductHandler(intake service.IntakeService, catalog service.CatalogService, public service.PublicService, auth *middleware.Auth, maxUploadBytes int64) *ProductHandler {
	return &ProductHandler{intake: intake, catalog: catalog, public: public, auth: auth, maxUploadBytes: maxUploadBytes}
}

func (h *ProductHandler) RegisterRoutes(router *gin.RouterGroup) {
	products := router.Group("/products")
	{
		products.GET("/public/:id", h.Resolve)

		members := h.auth.RequireRole(model.RoleAdmin, model.RoleStaff)
		products.GET("", members, h.ListProducts)
		products.GET("/:id", members, h.GetProduct)
		products.POST("", members, h.CreateProduct)
		products.PUT("/:id", members, h.UpdateProduct)
		products.DELETE("/:id", members, h.DeleteProduct)
	}
}

// CreateProduct submits a new product
// @Summary      Submit a product
// @Description  Admins create the product immediately; staff file a pending approval request. Accepts JSON or multipart with "media" files.
// @Tags         products
// @Accept       json,mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        name     formData  string  true   "Product name"
// @Param        price    formData  string  true   "Price, positive"
// @Param        farmId   formData  string  true   "Farm ID"
// @Param        media    formData  file    false  "Media files"
// @Success      201      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/products [post]
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	h.submit(c, model.RequestCreate, nil)
}

// UpdateProduct submits a partial product update
// @Summary      Submit a product update
// @Description  Only supplied, non-empty fields change. Up to 5 "media" files are attached as extra images.
// @Tags         products
// @Accept       json,mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true   "Product ID"
// @Param        media    formData  file    false  "Media files"
// @Success      200      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Failure      400      {object}  response.Response
// @Router       /api/products/{id} [put]
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	h.submit(c, model.RequestUpdate, &id)
}

// DeleteProduct submits a product deletion
// @Summary      Submit a product deletion
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true   "Product ID"
// @Success      200      {object}  response.Response{data=service.SubmitResult}
// @Success      202      {object}  response.Response{data=service.SubmitResult}
// @Failure      400      {object}  response.Response
// @Router       /api/products/{id} [delete]
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	actor, _ := middleware.ActorFrom(c)
	res, err := h.intake.Submit(c.Request.Context(), actor, service.Submission{Kind: model.RequestDelete, ProductID: &id})
	if err != nil {
		respondError(c, err)
		return
	}
	status := submitStatus(res, http.StatusOK)
	c.JSON(status, response.Success(status, res))
}

func (h *ProductHandler) submit(c *gin.Context, kind model.RequestKind, productID *uuid.UUID) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fields, media, err := h.readSubmission(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	actor, _ := middleware.ActorFrom(c)
	res, err := h.intake.Submit(c.Request.Context(), actor, service.Submission{
		Kind:      kind,
		ProductID: productID,
		Fields:    fields,
		Media:     media,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	ok := http.StatusOK
	if kind == model.RequestCreate {
		ok = http.StatusCreated
	}
	status := submitStatus(res, ok)
	c.JSON(status, response.Success(status, res))
}

// readSubmission accepts either a multipart form or a flat JSON object.
func (h *ProductHandler) readSubmission(c *gin.Context) (map[string]string, []service.Upload, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, nil, fmt.Errorf("invalid multipart form: %v", err)
		}
		fields := make(map[string]string, len(form.Value))
		for k, v := range form.Value {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		uploads, err := openUploads(form.File[mediaField])
		return fields, uploads, err
	}

	if c.Request.ContentLength == 0 {
		return map[string]string{}, nil, nil
	}
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		return nil, nil, fmt.Errorf("Invalid request payload: %v", err)
	}
	fields, err := flattenJSON(raw)
	return fields, nil, err
}

func openUploads(files []*multipart.FileHeader) ([]service.Upload, error) {
	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("read %s: %v", fh.Filename, err)
		}
		body, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %v", fh.Filename, err)
		}
		uploads = append(uploads, service.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        bytes.NewReader(body),
		})
	}
	return uploads, nil
}

// flattenJSON turns a JSON body into form values: strings as-is, numbers
// verbatim, string arrays comma joined, nulls dropped.
func flattenJSON(raw map[string]json.RawMessage) (map[string]string, error) {
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		trimmed := bytes.TrimSpace(v)
		switch {
		case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
			continue
		case trimmed[0] == '"':
			var s string
			if err := json.Unmarshal(trimmed, &s); err != nil {
				return nil, fmt.Errorf("%s: %v", k, err)
			}
			fields[k] = s
		case trimmed[0] == '[':
			var list []string
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("%s: expected a list of strings", k)
			}
			fields[k] = strings.Join(list, ",")
		case trimmed[0] == '{':
			return nil, fmt.Errorf("%s: objects are not accepted", k)
		default:
			fields[k] = string(trimmed)
		}
	}
	return fields, nil
}

func submitStatus(res service.SubmitResult, applied int) int {
	if res.Status == service.SubmitPending {
		return http.StatusAccepted
	}
	return applied
}

// ListProducts returns the inventory
// @Summary      List products
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        page    query     int     false  "Page"
// @Param        limit   query     int     false  "Page size"
// @Param        search  query     string  false  "Name contains"
// @Param        status  query     string  false  "instock or outstock"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/products [get]
func (h *ProductHandler) ListProducts(c *gin.Context) {
	p := pagination.Parse(c)
	products, total, err := h.catalog.ListProducts(c.Request.Context(), p.Page, p.Limit, c.Query("search"), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, products, total, p.Page, p.Limit))
}

// GetProduct returns one product with farm, images and certifications
// @Summary      Get product
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  response.Response{data=model.Product}
// @Failure      404  {object}  response.Response
// @Router       /api/products/{id} [get]
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, product))
}

// Resolve is the public lookup behind a product's QR code
// @Summary      Public product lookup
// @Description  Returns traceability details for an in-stock product. No authentication.
// @Tags         public
// @Produce      json
// @Param        id   path      string  true  "Product ID"
// @Success      200  {object}  response.Response{data=service.PublicProductView}
// @Failure      404  {object}  response.Response
// @Router       /api/products/public/{id} [get]
func (h *ProductHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		// same answer as an unknown product
		respondError(c, fmt.Errorf("resolve product: %w", service.ErrNotFound))
		return
	}
	view, err := h.public.Resolve(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}
