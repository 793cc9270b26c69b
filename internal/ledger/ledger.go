package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/plotark/plotark/internal/models"
	"gorm.io/gorm"
)

// Ledger failures surfaced to callers.
var (
	// ErrInsufficientCredits indicates the balance was already zero.
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	// ErrUserNotFound indicates no user matches the given key.
	ErrUserNotFound = errors.New("ledger: user not found")
)

// Debit decrements the user's balance by exactly one credit and returns the
// remaining balance. The decrement is a conditional update guarded by the
// current balance, so two concurrent debits cannot both spend the last
// credit. Callers run it inside the transaction that records the spend.
func Debit(ctx context.Context, tx *gorm.DB, userID uint64) (int, error) {
	result := tx.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND credits > 0", userID).
		UpdateColumn("credits", gorm.Expr("credits - 1"))
	if result.Error != nil {
		return 0, fmt.Errorf("ledger: debit: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, ErrInsufficientCredits
	}

	var user models.User
	if errFind := tx.WithContext(ctx).Select("credits").First(&user, userID).Error; errFind != nil {
		return 0, fmt.Errorf("ledger: reload balance: %w", errFind)
	}
	return user.Credits, nil
}

// Balance returns the user's current credit balance.
func Balance(ctx context.Context, conn *gorm.DB, userID uint64) (int, error) {
	var user models.User
	errFind := conn.WithContext(ctx).Select("credits").First(&user, userID).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("ledger: load balance: %w", errFind)
	}
	return user.Credits, nil
}

// Grant mutates a user's balance by email: when set is true the balance is
// replaced with amount, otherwise amount is added. Negative results clamp
// to zero. Returns the updated user.
func Grant(ctx context.Context, conn *gorm.DB, email string, amount int, set bool) (models.User, error) {
	var user models.User
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := tx.Where("email = ?", email).First(&user).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("ledger: load user: %w", errFind)
		}

		next := user.Credits + amount
		if set {
			next = amount
		}
		if next < 0 {
			next = 0
		}

		if errUpdate := tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			UpdateColumn("credits", next).Error; errUpdate != nil {
			return fmt.Errorf("ledger: grant: %w", errUpdate)
		}
		user.Credits = next
		return nil
	})
	if errTx != nil {
		return models.User{}, errTx
	}
	return user, nil
}
