// Package usersapi is the contract of the user service.
package usersapi

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/rpc"
)

const ServiceName = "roofpro.user.v1.UserService"

const (
	MethodLogin          = "Login"
	MethodCreateUser     = "CreateUser"
	MethodGetUser        = "GetUser"
	MethodListUsers      = "ListUsers"
	MethodUpdateUser     = "UpdateUser"
	MethodDeactivateUser = "DeactivateUser"
	MethodGetPermissions = "GetPermissions"
	MethodChangePassword = "ChangePassword"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token       string         `json:"token"`
	ExpiresAt   time.Time      `json:"expires_at"`
	User        models.Profile `json:"user"`
	Permissions []string       `json:"permissions"`
}

type CreateUserRequest struct {
	Actor            api.Actor  `json:"actor"`
	Email            string     `json:"email"`
	Password         string     `json:"password"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Phone            *string    `json:"phone,omitempty"`
	Role             string     `json:"role"`
	Department       string     `json:"department"`
	CommissionTierID *uuid.UUID `json:"commission_tier_id,omitempty"`
}

type UserIDRequest struct {
	Actor api.Actor `json:"actor"`
	ID    uuid.UUID `json:"id"`
}

type UserResponse struct {
	User        models.Profile `json:"user"`
	Permissions []string       `json:"permissions"`
}

type ListUsersRequest struct {
	Actor            api.Actor       `json:"actor"`
	Role             string          `json:"role,omitempty"`
	Department       string          `json:"department,omitempty"`
	EmploymentStatus string          `json:"employment_status,omitempty"`
	Search           string          `json:"search,omitempty"`
	Page             api.PageRequest `json:"page"`
}

type ListUsersResponse struct {
	Users []models.Profile `json:"users"`
	Page  api.PageResponse `json:"page"`
}

// UpdateUserRequest changes only the fields that are set.
type UpdateUserRequest struct {
	Actor            api.Actor  `json:"actor"`
	ID               uuid.UUID  `json:"id"`
	FirstName        *string    `json:"first_name,omitempty"`
	LastName         *string    `json:"last_name,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	Role             *string    `json:"role,omitempty"`
	Department       *string    `json:"department,omitempty"`
	EmploymentStatus *string    `json:"employment_status,omitempty"`
	CommissionTierID *uuid.UUID `json:"commission_tier_id,omitempty"`
}

type GetPermissionsRequest struct {
	Actor  api.Actor  `json:"actor"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
}

type PermissionsResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
}

type ChangePasswordRequest struct {
	Actor           api.Actor `json:"actor"`
	CurrentPassword string    `json:"current_password"`
	NewPassword     string    `json:"new_password"`
}

type ChangePasswordResponse struct {
	Changed bool `json:"changed"`
}

type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	return rpc.Call[LoginRequest, LoginResponse](ctx, c.conn, ServiceName, MethodLogin, req)
}

func (c *Client) CreateUser(ctx context.Context, req *CreateUserRequest) (*UserResponse, error) {
	return rpc.Call[CreateUserRequest, UserResponse](ctx, c.conn, ServiceName, MethodCreateUser, req)
}

func (c *Client) GetUser(ctx context.Context, req *UserIDRequest) (*UserResponse, error) {
	return rpc.Call[UserIDRequest, UserResponse](ctx, c.conn, ServiceName, MethodGetUser, req)
}

func (c *Client) ListUsers(ctx context.Context, req *ListUsersRequest) (*ListUsersResponse, error) {
	return rpc.Call[ListUsersRequest, ListUsersResponse](ctx, c.conn, ServiceName, MethodListUsers, req)
}

func (c *Client) UpdateUser(ctx context.Context, req *UpdateUserRequest) (*UserResponse, error) {
	return rpc.Call[UpdateUserRequest, UserResponse](ctx, c.conn, ServiceName, MethodUpdateUser, req)
}

func (c *Client) DeactivateUser(ctx context.Context, req *UserIDRequest) (*UserResponse, error) {
	return rpc.Call[UserIDRequest, UserResponse](ctx, c.conn, ServiceName, MethodDeactivateUser, req)
}

func (c *Client) GetPermissions(ctx context.Context, req *GetPermissionsRequest) (*PermissionsResponse, error) {
	return rpc.Call[GetPermissionsRequest, PermissionsResponse](ctx, c.conn, ServiceName, MethodGetPermissions, req)
}

func (c *Client) ChangePassword(ctx context.Context, req *ChangePasswordRequest) (*ChangePasswordResponse, error) {
	return rpc.Call[ChangePasswordRequest, ChangePasswordResponse](ctx, c.conn, ServiceName, MethodChangePassword, req)
}
