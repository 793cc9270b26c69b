package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plotark/plotark/internal/models"
	"gorm.io/gorm"
)

// Purpose tags verification tokens so session tokens cannot be replayed
// against the verify endpoint.
const Purpose = "email-confirm"

// TokenTTL is the maximum accepted token age, measured from issuance.
const TokenTTL = 3600 * time.Second

// Redeem failures surfaced to the verify endpoint.
var (
	// ErrTokenInvalid indicates a signature, format, or purpose mismatch.
	ErrTokenInvalid = errors.New("verification: token invalid")
	// ErrTokenExpired indicates the token is older than TokenTTL.
	ErrTokenExpired = errors.New("verification: token expired")
	// ErrUserNotFound indicates no user matches the token's email.
	ErrUserNotFound = errors.New("verification: user not found")
)

// claims binds an email and issuance time to the verification purpose.
type claims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Service issues and redeems email verification tokens. Tokens are
// self-contained: validity is purely computational and redeeming one is
// idempotent once the user is verified.
type Service struct {
	db     *gorm.DB
	secret string
	nowFn  func() time.Time
}

// NewService constructs a Service. A nil nowFn defaults to time.Now.
func NewService(db *gorm.DB, secret string, nowFn func() time.Time) *Service {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Service{db: db, secret: secret, nowFn: nowFn}
}

// Issue signs a verification token binding the email to the confirm purpose.
func (s *Service) Issue(email string) (string, error) {
	if s.secret == "" {
		return "", fmt.Errorf("verification: empty signing secret")
	}
	now := s.nowFn().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:   email,
		Purpose: Purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	})
	signed, errSign := token.SignedString([]byte(s.secret))
	if errSign != nil {
		return "", fmt.Errorf("verification: sign token: %w", errSign)
	}
	return signed, nil
}

// RedeemOutcome reports the result of a successful redemption.
type RedeemOutcome struct {
	Email           string
	AlreadyVerified bool
}

// Redeem verifies a token and flips the bound user's verified flag. The flip
// is monotonic: redeeming an already-verified user is a safe no-op.
func (s *Service) Redeem(ctx context.Context, raw string) (RedeemOutcome, error) {
	parsed := &claims{}
	token, errParse := jwt.ParseWithClaims(raw, parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if errParse != nil || !token.Valid {
		return RedeemOutcome{}, ErrTokenInvalid
	}
	if parsed.Purpose != Purpose || parsed.Email == "" || parsed.IssuedAt == nil {
		return RedeemOutcome{}, ErrTokenInvalid
	}
	if s.nowFn().UTC().Sub(parsed.IssuedAt.Time) > TokenTTL {
		return RedeemOutcome{}, ErrTokenExpired
	}

	var user models.User
	errFind := s.db.WithContext(ctx).Where("email = ?", parsed.Email).First(&user).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return RedeemOutcome{}, ErrUserNotFound
		}
		return RedeemOutcome{}, fmt.Errorf("verification: load user: %w", errFind)
	}

	if user.IsVerified {
		return RedeemOutcome{Email: user.Email, AlreadyVerified: true}, nil
	}

	errUpdate := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("is_verified", true).Error
	if errUpdate != nil {
		return RedeemOutcome{}, fmt.Errorf("verification: mark verified: %w", errUpdate)
	}
	return RedeemOutcome{Email: user.Email}, nil
}
