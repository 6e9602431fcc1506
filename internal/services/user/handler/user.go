package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/usersapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/permissions"
	"roofpro-hub/internal/rpc"
	"roofpro-hub/internal/utils"
)

const minPasswordLength = 8

// --- Handler ---
type UserHandler struct {
	db       *gorm.DB
	cache    *cache.Cache
	tokens   *utils.Tokens
	notifier notify.Publisher
	log      *logrus.Entry
}

func NewUserHandler(db *gorm.DB, c *cache.Cache, tokens *utils.Tokens, notifier notify.Publisher, log *logrus.Entry) *UserHandler {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if log == nil {
		log = logrus.WithField("service", "user")
	}
	return &UserHandler{
		db:       db,
		cache:    c,
		tokens:   tokens,
		notifier: notifier,
		log:      log,
	}
}

func (s *UserHandler) Service() *rpc.Service {
	return rpc.NewService(usersapi.ServiceName).
		Handle(usersapi.MethodLogin, rpc.Unary(s.Login)).
		Handle(usersapi.MethodCreateUser, rpc.Unary(s.CreateUser)).
		Handle(usersapi.MethodGetUser, rpc.Unary(s.GetUser)).
		Handle(usersapi.MethodListUsers, rpc.Unary(s.ListUsers)).
		Handle(usersapi.MethodUpdateUser, rpc.Unary(s.UpdateUser)).
		Handle(usersapi.MethodDeactivateUser, rpc.Unary(s.DeactivateUser)).
		Handle(usersapi.MethodGetPermissions, rpc.Unary(s.GetPermissions)).
		Handle(usersapi.MethodChangePassword, rpc.Unary(s.ChangePassword))
}

// InvalidateUserCaches drops the cached profile and, since the gate depends
// on role, the cached gate status.
func (s *UserHandler) InvalidateUserCaches(ctx context.Context, userIDs ...uuid.UUID) {
	keys := make([]string, 0, 2*len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, cache.ProfileKey(id), cache.GateKey(id))
	}
	s.cache.Del(ctx, keys...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userResponse(p models.Profile) *usersapi.UserResponse {
	return &usersapi.UserResponse{User: p, Permissions: permissions.For(p.Role)}
}

func (s *UserHandler) loadProfile(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, status.Errorf(codes.NotFound, "User with ID %s not found", id)
		}
		return p, status.Errorf(codes.Internal, "Failed to get user: %v", err)
	}
	return p, nil
}

// --- Auth ---

func (s *UserHandler) Login(ctx context.Context, req *usersapi.LoginRequest) (*usersapi.LoginResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, status.Errorf(codes.InvalidArgument, "Email and password are required")
	}

	var user models.Profile
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(codes.Unauthenticated, "Invalid email or password")
		}
		return nil, status.Errorf(codes.Internal, "Failed to look up user: %v", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "Invalid email or password")
	}
	if user.EmploymentStatus != models.EmploymentActive {
		return nil, status.Errorf(codes.PermissionDenied, "Account is %s", user.EmploymentStatus)
	}
	if _, ok := permissions.ParseRole(user.Role); !ok {
		return nil, status.Errorf(codes.PermissionDenied, "Account has no recognized role")
	}

	token, exp, err := s.tokens.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to generate token: %v", err)
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := s.db.WithContext(ctx).Model(&user).UpdateColumn("last_login", now).Error; err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("failed to record last login")
	}
	s.InvalidateUserCaches(ctx, user.ID)

	return &usersapi.LoginResponse{
		Token:       token,
		ExpiresAt:   exp,
		User:        user,
		Permissions: permissions.For(user.Role),
	}, nil
}

func (s *UserHandler) ChangePassword(ctx context.Context, req *usersapi.ChangePasswordRequest) (*usersapi.ChangePasswordResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	if len(req.NewPassword) < minPasswordLength {
		return nil, status.Errorf(codes.InvalidArgument, "New password must be at least %d characters", minPasswordLength)
	}

	user, err := s.loadProfile(ctx, req.Actor.UserID)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return nil, status.Errorf(codes.PermissionDenied, "Current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to hash password: %v", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("password_hash", string(hash)).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to update password: %v", err)
	}
	return &usersapi.ChangePasswordResponse{Changed: true}, nil
}

// --- User Management ---

func (s *UserHandler) CreateUser(ctx context.Context, req *usersapi.CreateUserRequest) (*usersapi.UserResponse, error) {
	if err := req.Actor.Authorize(permissions.UsersManage); err != nil {
		return nil, err
	}

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, status.Errorf(codes.InvalidArgument, "A valid email is required")
	}
	if strings.TrimSpace(req.FirstName) == "" {
		return nil, status.Errorf(codes.InvalidArgument, "First name is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, status.Errorf(codes.InvalidArgument, "Password must be at least %d characters", minPasswordLength)
	}
	role, ok := permissions.ParseRole(req.Role)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "Unknown role: %s", req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to hash password: %v", err)
	}

	user := models.Profile{
		Email:            email,
		PasswordHash:     string(hash),
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Phone:            req.Phone,
		Role:             string(role),
		Department:       strings.TrimSpace(req.Department),
		EmploymentStatus: models.EmploymentActive,
		CommissionTierID: req.CommissionTierID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Profile{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to check existing users: %v", err)
		}
		if count > 0 {
			return status.Errorf(codes.AlreadyExists, "A user with email %s already exists", email)
		}
		if user.CommissionTierID != nil {
			if err := ensureActiveTier(tx, *user.CommissionTierID); err != nil {
				return err
			}
		}
		if err := tx.Create(&user).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to create user: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	job := notify.Job{
		Template: notify.TemplateWelcome,
		To:       []string{user.Email},
		Data: map[string]string{
			"name": user.FullName(),
			"role": user.Role,
		},
	}
	if err := s.notifier.Enqueue(ctx, job); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("failed to enqueue welcome email")
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role, "by": req.Actor.UserID}).Info("user created")

	return userResponse(user), nil
}

func ensureActiveTier(tx *gorm.DB, tierID uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.CommissionTier{}).Where("id = ? AND is_active = ?", tierID, true).Count(&count).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to check commission tier: %v", err)
	}
	if count == 0 {
		return status.Errorf(codes.FailedPrecondition, "Commission tier %s does not exist or is inactive", tierID)
	}
	return nil
}

// GetUser returns a profile. Users may read their own; anyone else needs a
// permission that works with other people's records.
func (s *UserHandler) GetUser(ctx context.Context, req *usersapi.UserIDRequest) (*usersapi.UserResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "User ID is required")
	}
	if !req.Actor.Owns(req.ID) {
		if err := req.Actor.Authorize(permissions.UsersManage, permissions.CommissionsViewAll, permissions.DrawsManage); err != nil {
			return nil, err
		}
	}

	cacheKey := cache.ProfileKey(req.ID)
	var user models.Profile
	if s.cache.GetJSON(ctx, cacheKey, &user) {
		return userResponse(user), nil
	}

	user, err := s.loadProfile(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, cacheKey, user, cache.TTLMedium)
	return userResponse(user), nil
}

func (s *UserHandler) ListUsers(ctx context.Context, req *usersapi.ListUsersRequest) (*usersapi.ListUsersResponse, error) {
	if err := req.Actor.Authorize(permissions.UsersManage, permissions.CommissionsViewAll, permissions.DrawsManage); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Profile{})
	if req.Role != "" {
		if _, ok := permissions.ParseRole(req.Role); !ok {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown role: %s", req.Role)
		}
		query = query.Where("role = ?", req.Role)
	}
	if req.Department != "" {
		query = query.Where("department = ?", req.Department)
	}
	if req.EmploymentStatus != "" {
		if !models.ValidEmploymentStatus(req.EmploymentStatus) {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown employment status: %s", req.EmploymentStatus)
		}
		query = query.Where("employment_status = ?", req.EmploymentStatus)
	}
	if term := strings.TrimSpace(req.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to count users: %v", err)
	}

	_, limit, offset := req.Page.Bounds()
	var users []models.Profile
	if err := query.Order("last_name asc, first_name asc").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve users: %v", err)
	}

	return &usersapi.ListUsersResponse{
		Users: users,
		Page:  api.NewPageResponse(req.Page, totalCount),
	}, nil
}

// UpdateUser lets users edit their own name and phone. Role, department,
// employment status and tier need users.manage.
func (s *UserHandler) UpdateUser(ctx context.Context, req *usersapi.UpdateUserRequest) (*usersapi.UserResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "User ID is required")
	}
	adminFields := req.Role != nil || req.Department != nil || req.EmploymentStatus != nil || req.CommissionTierID != nil
	if adminFields || !req.Actor.Owns(req.ID) {
		if err := req.Actor.Authorize(permissions.UsersManage); err != nil {
			return nil, err
		}
	}

	var user models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, "id = ?", req.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return status.Errorf(codes.NotFound, "User with ID %s not found", req.ID)
			}
			return status.Errorf(codes.Internal, "Failed to get user: %v", err)
		}

		if req.FirstName != nil {
			name := strings.TrimSpace(*req.FirstName)
			if name == "" {
				return status.Errorf(codes.InvalidArgument, "First name cannot be empty")
			}
			user.FirstName = name
		}
		if req.LastName != nil {
			user.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.Phone != nil {
			user.Phone = req.Phone
		}
		if req.Role != nil {
			role, ok := permissions.ParseRole(*req.Role)
			if !ok {
				return status.Errorf(codes.InvalidArgument, "Unknown role: %s", *req.Role)
			}
			user.Role = string(role)
		}
		if req.Department != nil {
			user.Department = strings.TrimSpace(*req.Department)
		}
		if req.EmploymentStatus != nil {
			if !models.ValidEmploymentStatus(*req.EmploymentStatus) {
				return status.Errorf(codes.InvalidArgument, "Unknown employment status: %s", *req.EmploymentStatus)
			}
			user.EmploymentStatus = *req.EmploymentStatus
		}
		if req.CommissionTierID != nil {
			if err := ensureActiveTier(tx, *req.CommissionTierID); err != nil {
				return err
			}
			user.CommissionTierID = req.CommissionTierID
		}

		if err := tx.Save(&user).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update user: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.InvalidateUserCaches(ctx, user.ID)
	return userResponse(user), nil
}

// DeactivateUser marks the user terminated. The row stays for history.
func (s *UserHandler) DeactivateUser(ctx context.Context, req *usersapi.UserIDRequest) (*usersapi.UserResponse, error) {
	if err := req.Actor.Authorize(permissions.UsersManage); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "User ID is required")
	}
	if req.Actor.Owns(req.ID) {
		return nil, status.Errorf(codes.FailedPrecondition, "You cannot deactivate your own account")
	}

	user, err := s.loadProfile(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if user.EmploymentStatus != models.EmploymentTerminated {
		user.EmploymentStatus = models.EmploymentTerminated
		if err := s.db.WithContext(ctx).Model(&user).Update("employment_status", models.EmploymentTerminated).Error; err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to deactivate user: %v", err)
		}
	}

	s.InvalidateUserCaches(ctx, user.ID)
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "by": req.Actor.UserID}).Info("user deactivated")
	return userResponse(user), nil
}

func (s *UserHandler) GetPermissions(ctx context.Context, req *usersapi.GetPermissionsRequest) (*usersapi.PermissionsResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	if req.UserID == nil || req.Actor.Owns(*req.UserID) {
		return &usersapi.PermissionsResponse{
			UserID:      req.Actor.UserID,
			Role:        req.Actor.Role,
			Permissions: permissions.For(req.Actor.Role),
		}, nil
	}

	if err := req.Actor.Authorize(permissions.UsersManage); err != nil {
		return nil, err
	}
	user, err := s.loadProfile(ctx, *req.UserID)
	if err != nil {
		return nil, err
	}
	return &usersapi.PermissionsResponse{
		UserID:      user.ID,
		Role:        user.Role,
		Permissions: permissions.For(user.Role),
	}, nil
}
