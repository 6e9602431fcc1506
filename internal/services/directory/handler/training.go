package handler

import (
	"context"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/directoryapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
)

func applyTraining(m *models.TrainingMaterial, in directoryapi.TrainingInput) error {
	title, err := requireName("Title", in.Title)
	if err != nil {
		return err
	}
	link, err := url.Parse(strings.TrimSpace(in.ResourceURL))
	if err != nil || (link.Scheme != "http" && link.Scheme != "https") || link.Host == "" {
		return status.Errorf(codes.InvalidArgument, "Resource URL must be an http(s) link")
	}
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if !models.ValidTrainingKind(kind) {
		return status.Errorf(codes.InvalidArgument, "Kind must be document, video or link")
	}
	roles := make(models.StringArray, 0, len(in.RequiredRoles))
	for _, r := range in.RequiredRoles {
		role, ok := permissions.ParseRole(r)
		if !ok {
			return status.Errorf(codes.InvalidArgument, "Unknown role: %s", r)
		}
		if !roles.Contains(string(role)) {
			roles = append(roles, string(role))
		}
	}

	m.Title = title
	m.Category = strings.TrimSpace(in.Category)
	m.Description = in.Description
	m.ResourceURL = link.String()
	m.Kind = kind
	m.RequiredRoles = roles
	if in.IsPublished != nil {
		m.IsPublished = *in.IsPublished
	}
	return nil
}

func (h *DirectoryHandler) CreateTraining(ctx context.Context, req *directoryapi.CreateTrainingRequest) (*directoryapi.TrainingResponse, error) {
	if err := req.Actor.Authorize(permissions.TrainingManage); err != nil {
		return nil, err
	}
	material := models.TrainingMaterial{CreatedBy: req.Actor.UserID}
	if err := applyTraining(&material, req.Input); err != nil {
		return nil, err
	}
	if err := h.db.WithContext(ctx).Create(&material).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to create training material: %v", err)
	}
	h.cache.Del(ctx, TRAINING_CACHE_KEY)
	h.log.WithFields(logrus.Fields{"training_id": material.ID, "by": req.Actor.UserID}).Info("training material created")
	return &directoryapi.TrainingResponse{Material: material}, nil
}

func (h *DirectoryHandler) UpdateTraining(ctx context.Context, req *directoryapi.UpdateTrainingRequest) (*directoryapi.TrainingResponse, error) {
	if err := req.Actor.Authorize(permissions.TrainingManage); err != nil {
		return nil, err
	}
	var material models.TrainingMaterial
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&material, "id = ?", req.ID).Error; err != nil {
			return notFound("Training material", req.ID, err)
		}
		if err := applyTraining(&material, req.Input); err != nil {
			return err
		}
		if err := tx.Save(&material).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update training material: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.cache.Del(ctx, TRAINING_CACHE_KEY)
	return &directoryapi.TrainingResponse{Material: material}, nil
}

// GetTraining hides unpublished material and material for other roles from
// anyone without training.manage.
func (h *DirectoryHandler) GetTraining(ctx context.Context, req *directoryapi.IDRequest) (*directoryapi.TrainingResponse, error) {
	if err := req.Actor.Authorize(permissions.TrainingView, permissions.TrainingManage); err != nil {
		return nil, err
	}
	var material models.TrainingMaterial
	if err := h.db.WithContext(ctx).First(&material, "id = ?", req.ID).Error; err != nil {
		return nil, notFound("Training material", req.ID, err)
	}
	if !req.Actor.Can(permissions.TrainingManage) && (!material.IsPublished || !material.VisibleTo(req.Actor.Role)) {
		return nil, status.Errorf(codes.NotFound, "Training material with ID %s not found", req.ID)
	}
	return &directoryapi.TrainingResponse{Material: material}, nil
}

func (h *DirectoryHandler) publishedTraining(ctx context.Context) ([]models.TrainingMaterial, error) {
	var materials []models.TrainingMaterial
	if h.cache.GetJSON(ctx, TRAINING_CACHE_KEY, &materials) {
		return materials, nil
	}
	if err := h.db.WithContext(ctx).Where("is_published = ?", true).Order("category asc, title asc").Find(&materials).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve training materials: %v", err)
	}
	h.cache.SetJSON(ctx, TRAINING_CACHE_KEY, materials, cache.TTLMedium)
	return materials, nil
}

func (h *DirectoryHandler) ListTraining(ctx context.Context, req *directoryapi.ListTrainingRequest) (*directoryapi.ListTrainingResponse, error) {
	if err := req.Actor.Authorize(permissions.TrainingView, permissions.TrainingManage); err != nil {
		return nil, err
	}
	manager := req.Actor.Can(permissions.TrainingManage)

	var materials []models.TrainingMaterial
	if req.IncludeUnpublished {
		if !manager {
			return nil, status.Errorf(codes.PermissionDenied, "role %q lacks permission %s", req.Actor.Role, permissions.TrainingManage)
		}
		if err := h.db.WithContext(ctx).Order("category asc, title asc").Find(&materials).Error; err != nil {
			return nil, status.Errorf(codes.Internal, "Failed to retrieve training materials: %v", err)
		}
	} else {
		var err error
		if materials, err = h.publishedTraining(ctx); err != nil {
			return nil, err
		}
	}

	return &directoryapi.ListTrainingResponse{Materials: filterTraining(materials, req.Actor, manager, req.Category, req.Search)}, nil
}

func filterTraining(materials []models.TrainingMaterial, actor api.Actor, manager bool, category, search string) []models.TrainingMaterial {
	term := strings.ToLower(strings.TrimSpace(search))
	out := []models.TrainingMaterial{}
	for _, m := range materials {
		if !manager && !m.VisibleTo(actor.Role) {
			continue
		}
		if category != "" && !strings.EqualFold(m.Category, category) {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(m.Title), term) && !strings.Contains(strings.ToLower(m.Description), term) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (h *DirectoryHandler) DeleteTraining(ctx context.Context, req *directoryapi.IDRequest) (*directoryapi.DeleteResponse, error) {
	if err := req.Actor.Authorize(permissions.TrainingManage); err != nil {
		return nil, err
	}
	result := h.db.WithContext(ctx).Delete(&models.TrainingMaterial{}, "id = ?", req.ID)
	if result.Error != nil {
		return nil, status.Errorf(codes.Internal, "Failed to delete training material: %v", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, status.Errorf(codes.NotFound, "Training material with ID %s not found", req.ID)
	}
	h.cache.Del(ctx, TRAINING_CACHE_KEY)
	h.log.WithFields(logrus.Fields{"training_id": req.ID, "by": req.Actor.UserID}).Info("training material deleted")
	return &directoryapi.DeleteResponse{ID: req.ID, Deleted: true}, nil
}
