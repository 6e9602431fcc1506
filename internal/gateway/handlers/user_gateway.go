package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roofpro-hub/internal/api/usersapi"
)

type UserHTTPHandler struct {
	userClient *usersapi.Client
}

func NewUserHTTPHandler(userClient *usersapi.Client) *UserHTTPHandler {
	return &UserHTTPHandler{
		userClient: userClient,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

type ListUsersQuery struct {
	PageQuery
	Role             string `form:"role"`
	Department       string `form:"department"`
	EmploymentStatus string `form:"employment_status"`
	Search           string `form:"search"`
}

func (h *UserHTTPHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.Login(ctx, &usersapi.LoginRequest{Email: req.Email, Password: req.Password})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Login successful", resp))
}

func (h *UserHTTPHandler) Me(c *gin.Context) {
	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	me := actor(c)
	resp, err := h.userClient.GetUser(ctx, &usersapi.UserIDRequest{Actor: me, ID: me.UserID})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Profile retrieved successfully", resp))
}

func (h *UserHTTPHandler) UpdateMe(c *gin.Context) {
	var req usersapi.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	me := actor(c)
	req.Actor = me
	req.ID = me.UserID

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.UpdateUser(ctx, &req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Profile updated successfully", resp))
}

func (h *UserHTTPHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.ChangePassword(ctx, &usersapi.ChangePasswordRequest{
		Actor:           actor(c),
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Password changed successfully", resp))
}

func (h *UserHTTPHandler) MyPermissions(c *gin.Context) {
	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.GetPermissions(ctx, &usersapi.GetPermissionsRequest{Actor: actor(c)})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Permissions retrieved successfully", resp))
}

func (h *UserHTTPHandler) CreateUser(c *gin.Context) {
	var req usersapi.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Actor = actor(c)

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.CreateUser(ctx, &req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("User created successfully", resp))
}

func (h *UserHTTPHandler) ListUsers(c *gin.Context) {
	var query ListUsersQuery
	if !bindQuery(c, &query) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.ListUsers(ctx, &usersapi.ListUsersRequest{
		Actor:            actor(c),
		Role:             query.Role,
		Department:       query.Department,
		EmploymentStatus: query.EmploymentStatus,
		Search:           query.Search,
		Page:             query.request(),
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Users retrieved successfully", resp.Users, resp.Page))
}

func (h *UserHTTPHandler) GetUser(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.GetUser(ctx, &usersapi.UserIDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("User retrieved successfully", resp))
}

func (h *UserHTTPHandler) UpdateUser(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var req usersapi.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Actor = actor(c)
	req.ID = id

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.UpdateUser(ctx, &req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("User updated successfully", resp))
}

func (h *UserHTTPHandler) DeactivateUser(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.DeactivateUser(ctx, &usersapi.UserIDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("User deactivated successfully", resp))
}

func (h *UserHTTPHandler) GetUserPermissions(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.userClient.GetPermissions(ctx, &usersapi.GetPermissionsRequest{Actor: actor(c), UserID: &id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Permissions retrieved successfully", resp))
}
