package handler

import (
	"net/http"
	"time"

	"fruittrace/internal/middleware"
	"fruittrace/internal/model"
	"fruittrace/internal/service"
	"fruittrace/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService  service.UserService
	auth         *middleware.Auth
	tokenTTL     time.Duration
	refreshTTL   time.Duration
	secureCookie bool
}

// NewUserHandler sets up the routing dependencies for User endpoints
func NewUserHandler(userService service.UserService, auth *middleware.Auth, tokenTTL, refreshTTL time.Duration, secureCookie bool) *UserHandler {
	return &UserHandler{userService: userService, auth: auth, tokenTTL: tokenTTL, refreshTTL: refreshTTL, secureCookie: secureCookie}
}

// RegisterRoutes binds the endpoints to the gin Engine or RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/login", h.Login)
	router.POST("/refresh-token", h.RefreshToken)
	router.POST("/logout", h.Logout)
	router.POST("/users", h.auth.RequireRole(model.RoleAdmin), h.CreateUser)
}

// CreateUser handles POST /users requests
// @Summary      Create a new user
// @Description  Creates an admin or staff account. Admin only.
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateUserRequest  true  "Create User Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	actor, _ := middleware.ActorFrom(c)
	user, err := h.userService.CreateUser(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, user))
}

// Login handles POST /login to authenticate and return a token pair
// @Summary      Login user
// @Description  Authenticates a user by username and password, returning an access token and a refresh token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginUserRequest   true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /api/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	tokenRes, err := h.userService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	middleware.SetTokenCookies(c, tokenRes.Token, tokenRes.RefreshToken, h.tokenTTL, h.refreshTTL, h.secureCookie)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokenRes))
}

// RefreshToken handles POST /refresh-token to issue new access and refresh tokens
// @Summary      Refresh token
// @Description  Exchanges a refresh token (cookie or body) for a new token pair. The old refresh token stops working.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshTokenRequest  false  "Refresh Token"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /api/refresh-token [post]
func (h *UserHandler) RefreshToken(c *gin.Context) {
	// Try reading refresh_token from cookie first, fallback to body
	refreshToken, cookieErr := c.Cookie(middleware.RefreshTokenCookie)
	if cookieErr != nil || refreshToken == "" {
		var req service.RefreshTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request payload: "+err.Error())
			return
		}
		refreshToken = req.RefreshToken
	}

	tokenRes, err := h.userService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	middleware.SetTokenCookies(c, tokenRes.Token, tokenRes.RefreshToken, h.tokenTTL, h.refreshTTL, h.secureCookie)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokenRes))
}

// Logout revokes the refresh token cookie and clears both auth cookies
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200      {object}  response.Response
// @Failure      500      {object}  response.Response
// @Router       /api/logout [post]
func (h *UserHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(middleware.RefreshTokenCookie)
	if err := h.userService.Logout(c.Request.Context(), refreshToken); err != nil {
		respondError(c, err)
		return
	}
	middleware.ClearTokenCookies(c, h.secureCookie)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Logged out"}))
}
