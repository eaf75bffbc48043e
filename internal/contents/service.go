package contents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/ids"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opServiceNew = "contents.service.new"
	opList       = "contents.list"
	opCreate     = "contents.create"
	opUpdate     = "contents.update"
	opDelete     = "contents.delete"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingOwner    = errors.New("owner id is required")
	errMissingID       = errors.New("content id is required")
	errContentNotFound = errors.New("content not found")
	errEmptyPatch      = errors.New("patch has no fields")
	errInvalidContent  = errors.New("title is required and status must be draft or published")
)

var inputValidator = validator.New(validator.WithRequiredStructEnabled())

// ServiceConfig describes the dependencies of the content service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service stores content entries. Every entry belongs to the administrator who created it
// and is only visible to and editable by that administrator.
type Service struct {
	db     *gorm.DB
	ids    ids.Provider
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the content service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.Upstream(opServiceNew, "missing_database", errMissingDatabase)
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, ids: idProvider, now: clock, logger: logger}, nil
}

// List returns the entries of ownerID newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]Content, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.InvalidRequest(opList, "missing_owner", errMissingOwner)
	}
	rows := []Content{}
	err := s.db.WithContext(ctx).
		Where("created_by = ?", ownerID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("owner_id", ownerID))
		return nil, apperrors.Upstream(opList, "query_failed", err)
	}
	return rows, nil
}

// Create stores a new entry owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, input Input) (Content, error) {
	if strings.TrimSpace(ownerID) == "" {
		return Content{}, apperrors.InvalidRequest(opCreate, "missing_owner", errMissingOwner)
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Status = strings.ToLower(strings.TrimSpace(input.Status))
	if err := inputValidator.Struct(input); err != nil {
		return Content{}, apperrors.InvalidRequest(opCreate, "invalid_content", errInvalidContent)
	}
	if input.Status == "" {
		input.Status = StatusDraft
	}
	id, err := s.ids.NewID()
	if err != nil {
		s.logError(opCreate, "id_failed", err)
		return Content{}, apperrors.Upstream(opCreate, "id_failed", err)
	}
	now := s.now().UTC()
	content := Content{
		ID:        id,
		Title:     input.Title,
		Body:      input.Body,
		Status:    input.Status,
		CreatedBy: ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&content).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("owner_id", ownerID))
		return Content{}, apperrors.Upstream(opCreate, "insert_failed", err)
	}
	return content, nil
}

// Update applies patch to an entry of ownerID.
func (s *Service) Update(ctx context.Context, ownerID, id string, patch Patch) (Content, error) {
	if strings.TrimSpace(id) == "" {
		return Content{}, apperrors.InvalidRequest(opUpdate, "missing_id", errMissingID)
	}
	if patch.empty() {
		return Content{}, apperrors.InvalidRequest(opUpdate, "empty_patch", errEmptyPatch)
	}
	updates := map[string]any{}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
		updates["title"] = title
	}
	if patch.Body != nil {
		updates["body"] = *patch.Body
	}
	if patch.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*patch.Status))
		patch.Status = &status
		updates["status"] = status
	}
	if err := inputValidator.Struct(patch); err != nil || (patch.Title != nil && *patch.Title == "") {
		return Content{}, apperrors.InvalidRequest(opUpdate, "invalid_content", errInvalidContent)
	}
	updates["updated_at"] = s.now().UTC()

	result := s.db.WithContext(ctx).
		Model(&Content{}).
		Where("id = ? AND created_by = ?", id, ownerID).
		Updates(updates)
	if result.Error != nil {
		s.logError(opUpdate, "update_failed", result.Error, zap.String("content_id", id))
		return Content{}, apperrors.Upstream(opUpdate, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Content{}, apperrors.NotFound(opUpdate, "content_not_found", errContentNotFound)
	}

	var content Content
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&content).Error; err != nil {
		s.logError(opUpdate, "reload_failed", err, zap.String("content_id", id))
		return Content{}, apperrors.Upstream(opUpdate, "reload_failed", err)
	}
	return content, nil
}

// Delete removes an entry of ownerID.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.InvalidRequest(opDelete, "missing_id", errMissingID)
	}
	result := s.db.WithContext(ctx).Where("id = ? AND created_by = ?", id, ownerID).Delete(&Content{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("content_id", id))
		return apperrors.Upstream(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound(opDelete, "content_not_found", errContentNotFound)
	}
	return nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("contents service error", attrs...)
}
