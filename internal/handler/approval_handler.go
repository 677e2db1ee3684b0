package handler

import (
	"net/http"
	"strconv"

	"fruittrace/internal/middleware"
	"fruittrace/internal/model"
	"fruittrace/internal/service"
	"fruittrace/pkg/pagination"
	"fruittrace/pkg/response"

	"github.com/gin-gonic/gin"
)

type ReviewRequest struct {
	Status string  `json:"status" binding:"required"`
	Notes  *string `json:"notes"`
}

type ApprovalHandler struct {
	approvalService service.ApprovalService
	reviewService   service.ReviewService
	auth            *middleware.Auth
}

func NewApprovalHandler(approvalService service.ApprovalService, reviewService service.ReviewService, auth *middleware.Auth) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, reviewService: reviewService, auth: auth}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup) {
	admin := h.auth.RequireRole(model.RoleAdmin)
	members := h.auth.RequireRole(model.RoleAdmin, model.RoleStaff)

	approvals := router.Group("/approvals")
	{
		approvals.GET("", members, h.ListRequests)
		approvals.GET("/pending", admin, h.ListPending)
		approvals.GET("/stats", members, h.Stats)
		approvals.GET("/:id", members, h.GetRequest)
		approvals.POST("/:id", admin, h.Review)
	}
}

// ListRequests returns the caller's requests, or every request for an admin
// @Summary      List approval requests
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "pending, approved or rejected"
// @Param        page    query     int     false  "Page"
// @Param        limit   query     int     false  "Page size"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/approvals [get]
func (h *ApprovalHandler) ListRequests(c *gin.Context) {
	p := pagination.Parse(c)
	actor, _ := middleware.ActorFrom(c)

	requests, total, err := h.approvalService.ListRequests(c.Request.Context(), actor, c.Query("status"), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, requests, total, p.Page, p.Limit))
}

// ListPending returns requests waiting for a decision
// @Summary      List pending approval requests
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        page    query     int     false  "Page"
// @Param        limit   query     int     false  "Page size"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	p := pagination.Parse(c)
	requests, total, err := h.approvalService.ListPending(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, requests, total, p.Page, p.Limit))
}

// Stats returns request totals per status
// @Summary      Approval request counts
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        mine  query     bool  false  "Only the caller's requests"
// @Success      200   {object}  response.Response{data=service.StatusCounts}
// @Router       /api/approvals/stats [get]
func (h *ApprovalHandler) Stats(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	mine, _ := strconv.ParseBool(c.Query("mine"))

	counts, err := h.approvalService.CountByStatus(c.Request.Context(), actor, mine)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, counts))
}

// GetRequest returns one request with its payload
// @Summary      Get approval request
// @Tags         approvals
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.ApprovalRequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/approvals/{id} [get]
func (h *ApprovalHandler) GetRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	req, err := h.approvalService.GetRequest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// Review approves or rejects a pending request
// @Summary      Review approval request
// @Description  Approving applies the proposed change to the catalog. A request can be decided once.
// @Tags         approvals
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string         true  "Request ID"
// @Param        payload  body      ReviewRequest  true  "Decision"
// @Success      200      {object}  response.Response{data=service.ReviewResult}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/approvals/{id} [post]
func (h *ApprovalHandler) Review(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	actor, _ := middleware.ActorFrom(c)
	result, err := h.reviewService.Review(c.Request.Context(), id, req.Status, actor.ID, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
