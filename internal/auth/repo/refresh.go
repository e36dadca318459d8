package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/bookstore/internal/models"
	"github.com/Skotchmaster/bookstore/internal/tokens"
)

var ErrRefreshExpiredOrRevoked = errors.New("refresh token expired or revoked")

func (r *GormRepo) AddRefreshToken(ctx context.Context, t *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func refreshUsable(db *gorm.DB, jti, raw string) error {
	var stored models.RefreshToken
	if err := db.Where("jti = ? AND token = ?", jti, tokens.Sha256Hex(raw)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRefreshExpiredOrRevoked
		}
		return err
	}
	if stored.Revoked || stored.ExpiresAt < time.Now().Unix() {
		return ErrRefreshExpiredOrRevoked
	}
	return nil
}

// RotateRefreshToken revokes the presented token and stores its successor
// in one transaction. The revoke is conditional so that two concurrent
// rotations of the same token cannot both succeed.
func (r *GormRepo) RotateRefreshToken(ctx context.Context, oldJTI, oldRaw string, next *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := refreshUsable(tx, oldJTI, oldRaw); err != nil {
			return err
		}

		res := tx.Model(&models.RefreshToken{}).
			Where("jti = ? AND revoked = ?", oldJTI, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRefreshExpiredOrRevoked
		}

		return tx.Create(next).Error
	})
}

func (r *GormRepo) LogOut(ctx context.Context, raw string) error {
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token = ?", tokens.Sha256Hex(raw)).
		Update("revoked", true).Error
}
