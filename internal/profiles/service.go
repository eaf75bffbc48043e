package profiles

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Photo slots accepted by AttachPhoto.
const (
	SlotMain     = "main"
	SlotGalleryA = "gallery_a"
	SlotGalleryB = "gallery_b"
)

const (
	opServiceNew     = "profiles.service.new"
	opGet            = "profiles.get"
	opCreate         = "profiles.create"
	opUpdate         = "profiles.update"
	opAttachPhoto    = "profiles.attach_photo"
	opListCandidates = "profiles.list_candidates"
	opAdminList      = "profiles.admin_list"

	// AdminListLimit caps the admin directory listing.
	AdminListLimit = 500
)

var (
	errMissingDatabase = errors.New("database handle is required")
	errMissingID       = errors.New("profile id is required")
	errProfileNotFound = errors.New("profile not found")
	errUnknownSlot     = errors.New("photo slot must be main, gallery_a or gallery_b")
	errMissingURL      = errors.New("photo url is required")
)

// ServiceConfig describes the dependencies of the profile service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service reads and writes member profiles.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.Upstream(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Get loads one profile.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, apperrors.InvalidRequest(opGet, "missing_id", errMissingID)
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, apperrors.NotFound(opGet, "profile_not_found", errProfileNotFound)
	}
	if err != nil {
		s.logError(opGet, "query_failed", err, zap.String("profile_id", id))
		return Profile{}, apperrors.Upstream(opGet, "query_failed", err)
	}
	return profile.Normalize(), nil
}

// Create upserts a profile row keyed by the user id.
func (s *Service) Create(ctx context.Context, profile Profile) (Profile, error) {
	profile.ID = strings.TrimSpace(profile.ID)
	if profile.ID == "" {
		return Profile{}, apperrors.InvalidRequest(opCreate, "missing_id", errMissingID)
	}
	now := s.clock().UTC()
	profile.Interests = cleanList(profile.Interests, maxInterests)
	profile.GalleryA = cleanList(profile.GalleryA, 0)
	profile.GalleryB = cleanList(profile.GalleryB, 0)
	profile.CreatedAt = now
	profile.UpdatedAt = now
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&profile).Error
	if err != nil {
		s.logError(opCreate, "upsert_failed", err, zap.String("profile_id", profile.ID))
		return Profile{}, apperrors.Upstream(opCreate, "upsert_failed", err)
	}
	return profile.Normalize(), nil
}

// Update applies a partial update to an existing profile.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (Profile, error) {
	if patch.IsEmpty() {
		return Profile{}, apperrors.InvalidRequest(opUpdate, "empty_patch", errEmptyPatch)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	updated := patch.Apply(current)
	updated.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(&updated).Error; err != nil {
		s.logError(opUpdate, "save_failed", err, zap.String("profile_id", updated.ID))
		return Profile{}, apperrors.Upstream(opUpdate, "save_failed", err)
	}
	return updated, nil
}

// AttachPhoto stores url as the main photo or appends it to a gallery.
func (s *Service) AttachPhoto(ctx context.Context, id, slot, url string) (Profile, error) {
	if strings.TrimSpace(url) == "" {
		return Profile{}, apperrors.InvalidRequest(opAttachPhoto, "missing_url", errMissingURL)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	var patch Patch
	switch slot {
	case SlotMain:
		patch.MainPhoto = &url
	case SlotGalleryA:
		gallery := append(append([]string{}, current.GalleryA...), url)
		patch.GalleryA = &gallery
	case SlotGalleryB:
		gallery := append(append([]string{}, current.GalleryB...), url)
		patch.GalleryB = &gallery
	default:
		return Profile{}, apperrors.InvalidRequest(opAttachPhoto, "unknown_slot", errUnknownSlot)
	}
	return s.Update(ctx, id, patch)
}

// ListCandidates returns every profile except the viewer's, newest first.
func (s *Service) ListCandidates(ctx context.Context, viewerID string) ([]Candidate, error) {
	var rows []Profile
	err := s.db.WithContext(ctx).
		Where("id <> ?", viewerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		s.logError(opListCandidates, "query_failed", err, zap.String("viewer_id", viewerID))
		return nil, apperrors.Upstream(opListCandidates, "query_failed", err)
	}
	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, ToCandidate(row))
	}
	return candidates, nil
}

// AdminList returns up to AdminListLimit profiles, most recently updated first.
func (s *Service) AdminList(ctx context.Context) ([]Profile, error) {
	var rows []Profile
	err := s.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(AdminListLimit).
		Find(&rows).Error
	if err != nil {
		s.logError(opAdminList, "query_failed", err)
		return nil, apperrors.Upstream(opAdminList, "query_failed", err)
	}
	for index := range rows {
		rows[index] = rows[index].Normalize()
	}
	return rows, nil
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
	s.logger.Error("profiles service error", attrs...)
}
