package handler

import (
	"net/http"

	"fruittrace/internal/middleware"
	"fruittrace/internal/model"
	"fruittrace/internal/repository"
	"fruittrace/internal/service"
	"fruittrace/pkg/pagination"
	"fruittrace/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	auth         *middleware.Auth
}

func NewAuditHandler(auditService service.AuditService, auth *middleware.Auth) *AuditHandler {
	return &AuditHandler{auditService: auditService, auth: auth}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/audit-logs")
	group.Use(h.auth.RequireRole(model.RoleAdmin)) // Protect history logs
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated records with the acting user attached
// @Summary      Get audit logs
// @Description  Retrieves audit history, newest first
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Param        action     query     string  false  "Action, e.g. APPROVE_REQUEST"
// @Param        entity_id  query     string  false  "Entity ID"
// @Success      200        {object}  response.Response{data=response.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	p := pagination.Parse(c)
	filter := repository.AuditFilter{Action: c.Query("action"), EntityID: c.Query("entity_id")}

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), filter, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, logs, total, p.Page, p.Limit))
}
