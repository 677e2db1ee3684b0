package handler

import (
	"net/http"

	"fruittrace/internal/middleware"
	"fruittrace/internal/model"
	"fruittrace/internal/service"
	"fruittrace/pkg/response"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalogService service.CatalogService
	auth           *middleware.Auth
}

func NewCatalogHandler(catalogService service.CatalogService, auth *middleware.Auth) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService, auth: auth}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := h.auth.RequireRole(model.RoleAdmin)
	members := h.auth.RequireRole(model.RoleAdmin, model.RoleStaff)

	router.GET("/farms", members, h.ListFarms)
	router.POST("/farms", admin, h.CreateFarm)
	router.GET("/certifications", members, h.ListCertifications)
	router.POST("/certifications", admin, h.CreateCertification)
}

// ListFarms
// @Summary      List farms
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]model.Farm}
// @Router       /api/farms [get]
func (h *CatalogHandler) ListFarms(c *gin.Context) {
	farms, err := h.catalogService.ListFarms(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, farms))
}

// CreateFarm
// @Summary      Create farm
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateFarmRequest  true  "Farm"
// @Success      201      {object}  response.Response{data=model.Farm}
// @Failure      400      {object}  response.Response
// @Router       /api/farms [post]
func (h *CatalogHandler) CreateFarm(c *gin.Context) {
	var req service.CreateFarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	actor, _ := middleware.ActorFrom(c)
	farm, err := h.catalogService.CreateFarm(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, farm))
}

// ListCertifications
// @Summary      List certifications
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]model.Certification}
// @Router       /api/certifications [get]
func (h *CatalogHandler) ListCertifications(c *gin.Context) {
	certs, err := h.catalogService.ListCertifications(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, certs))
}

// CreateCertification
// @Summary      Create certification
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateCertificationRequest  true  "Certification"
// @Success      201      {object}  response.Response{data=model.Certification}
// @Failure      400      {object}  response.Response
// @Router       /api/certifications [post]
func (h *CatalogHandler) CreateCertification(c *gin.Context) {
	var req service.CreateCertificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}
	actor, _ := middleware.ActorFrom(c)
	cert, err := h.catalogService.CreateCertification(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, cert))
}
