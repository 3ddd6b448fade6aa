package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/quocanhngo/talkcore/internal/apperr"
	"github.com/quocanhngo/talkcore/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository reads the identity system's users and devices
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByIDs finds users by UUID; unknown ids are skipped
func (r *UserRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.User, error) {
	users := []model.User{}
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, apperr.Internal(err, "load users")
	}
	return users, nil
}

// GetUserDevices gets all push devices for a user
func (r *UserRepository) GetUserDevices(ctx context.Context, userID uuid.UUID) ([]model.UserDevice, error) {
	var devices []model.UserDevice
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		return nil, apperr.Internal(err, "load devices")
	}
	return devices, nil
}

// Upsert inserts or refreshes a user by email. Used by the seeder only;
// the identity system owns this table in production.
func (r *UserRepository) Upsert(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "avatar", "updated_at"}),
	}).Create(user).Error
}

// FindByEmail finds a user by email
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &user, nil
}

// DeleteDevicesByToken removes push registrations the push provider reported as dead
func (r *UserRepository) DeleteDevicesByToken(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Where("fcm_token IN ?", tokens).Delete(&model.UserDevice{}).Error
	return wrap(err, "delete devices")
}
