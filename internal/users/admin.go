package users

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoleOf returns the administrative role of userID, or "" for members.
func (s *Service) RoleOf(ctx context.Context, userID string) (Role, error) {
	var row AdminUser
	err := s.db.WithContext(ctx).Select("role").Where("id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		s.logError(opRoleOf, "query_failed", err, zap.String("user_id", userID))
		return "", apperrors.Upstream(opRoleOf, "query_failed", err)
	}
	return row.Role, nil
}

// RequireAdmin fails with Forbidden unless userID holds an administrative role.
func (s *Service) RequireAdmin(ctx context.Context, userID string) (Role, error) {
	role, err := s.RoleOf(ctx, userID)
	if err != nil {
		return "", err
	}
	if !role.Valid() {
		return "", apperrors.Forbidden(opRoleOf, "not_admin", errNotAdministrator)
	}
	return role, nil
}

// RequireSuperadmin fails with Forbidden unless userID is a superadmin.
func (s *Service) RequireSuperadmin(ctx context.Context, userID string) error {
	role, err := s.RoleOf(ctx, userID)
	if err != nil {
		return err
	}
	if role != RoleSuperadmin {
		return apperrors.Forbidden(opRoleOf, "not_superadmin", errNotSuperadmin)
	}
	return nil
}

// CreateMember creates a member account with its profile. The account is removed again
// when the profile cannot be stored.
func (s *Service) CreateMember(ctx context.Context, input MemberInput) (User, profiles.Profile, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validateMember(opCreateMember, input); err != nil {
		return User{}, profiles.Profile{}, err
	}
	user, err := s.createAccount(ctx, opCreateMember, input.Email, input.Password)
	if err != nil {
		return User{}, profiles.Profile{}, err
	}
	profile, err := s.profiles.Create(ctx, profiles.Profile{
		ID:         user.ID,
		Name:       normalize(input.Name),
		City:       normalize(input.City),
		Status:     normalize(input.Status),
		Occupation: normalize(input.Occupation),
		About:      input.About,
		Interests:  input.Interests,
	})
	if err != nil {
		s.rollbackAccount(ctx, opCreateMember, user.ID)
		s.logError(opCreateMember, "profile_upsert_failed", err, zap.String("user_id", user.ID))
		return User{}, profiles.Profile{}, apperrors.Upstream(opCreateMember, "profile_upsert_failed", err)
	}
	return user, profile, nil
}

// ListAdmins returns administrators in creation order.
func (s *Service) ListAdmins(ctx context.Context) ([]AdminUser, error) {
	var admins []AdminUser
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&admins).Error; err != nil {
		s.logError(opListAdmins, "query_failed", err)
		return nil, apperrors.Upstream(opListAdmins, "query_failed", err)
	}
	return admins, nil
}

// CreateAdmin creates an account holding an administrative role. The account is
// removed again when the grant cannot be stored.
func (s *Service) CreateAdmin(ctx context.Context, input AdminInput) (AdminUser, error) {
	input.Email = normalizeEmail(input.Email)
	if err := validateAdmin(opCreateAdmin, input); err != nil {
		return AdminUser{}, err
	}
	user, err := s.createAccount(ctx, opCreateAdmin, input.Email, input.Password)
	if err != nil {
		return AdminUser{}, err
	}
	admin, err := s.grantRole(ctx, user, input.Role)
	if err != nil {
		s.rollbackAccount(ctx, opCreateAdmin, user.ID)
		s.logError(opCreateAdmin, "grant_failed", err, zap.String("user_id", user.ID))
		return AdminUser{}, apperrors.Upstream(opCreateAdmin, "grant_failed", err)
	}
	s.logger.Info("admin created", zap.String("user_id", user.ID), zap.String("role", string(input.Role)))
	return admin, nil
}

// UpdateAdminRole changes the role of an existing administrator.
func (s *Service) UpdateAdminRole(ctx context.Context, adminID string, role Role) error {
	if normalize(adminID) == "" {
		return apperrors.InvalidRequest(opUpdateAdmin, "missing_id", errMissingIdentifier)
	}
	if !role.Valid() {
		return apperrors.InvalidRequest(opUpdateAdmin, "invalid_role", errInvalidRole)
	}
	result := s.db.WithContext(ctx).
		Model(&AdminUser{}).
		Where("id = ?", adminID).
		Update("role", role)
	if result.Error != nil {
		s.logError(opUpdateAdmin, "update_failed", result.Error, zap.String("admin_id", adminID))
		return apperrors.Upstream(opUpdateAdmin, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound(opUpdateAdmin, "admin_not_found", errAdminNotFound)
	}
	return nil
}

// DeleteAdmin removes the administrator grant and the account behind it.
func (s *Service) DeleteAdmin(ctx context.Context, adminID string) error {
	if normalize(adminID) == "" {
		return apperrors.InvalidRequest(opDeleteAdmin, "missing_id", errMissingIdentifier)
	}
	result := s.db.WithContext(ctx).Where("id = ?", adminID).Delete(&AdminUser{})
	if result.Error != nil {
		s.logError(opDeleteAdmin, "delete_failed", result.Error, zap.String("admin_id", adminID))
		return apperrors.Upstream(opDeleteAdmin, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound(opDeleteAdmin, "admin_not_found", errAdminNotFound)
	}
	s.rollbackAccount(ctx, opDeleteAdmin, adminID)
	return nil
}

// EnsureBootstrapAdmin makes sure email belongs to a superadmin, creating the account when needed.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if _, err := s.CreateAdmin(ctx, AdminInput{Email: email, Password: password, Role: RoleSuperadmin}); err != nil {
			return err
		}
		return nil
	case err != nil:
		s.logError(opBootstrapAdmin, "query_failed", err)
		return apperrors.Upstream(opBootstrapAdmin, "query_failed", err)
	}
	if _, err := s.grantRole(ctx, user, RoleSuperadmin); err != nil {
		s.logError(opBootstrapAdmin, "grant_failed", err, zap.String("user_id", user.ID))
		return apperrors.Upstream(opBootstrapAdmin, "grant_failed", err)
	}
	return nil
}

func (s *Service) grantRole(ctx context.Context, user User, role Role) (AdminUser, error) {
	admin := AdminUser{ID: user.ID, Email: user.Email, Role: role, CreatedAt: s.now().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "role"}),
		}).
		Create(&admin).Error
	return admin, err
}
