package outline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plotark/plotark/internal/auth"
	"github.com/plotark/plotark/internal/generator"
	"github.com/plotark/plotark/internal/ledger"
	"github.com/plotark/plotark/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service failures surfaced to the HTTP layer.
var (
	// ErrUnauthorized indicates a rejected or missing principal.
	ErrUnauthorized = errors.New("outline: unauthorized")
	// ErrNotVerified indicates the user has not confirmed their email.
	ErrNotVerified = errors.New("outline: email not verified")
	// ErrGuestForbidden indicates a guest attempted a persisted operation.
	ErrGuestForbidden = errors.New("outline: guests cannot save or delete history")
	// ErrNotFound indicates no outline matches the owner and ID.
	ErrNotFound = errors.New("outline: not found")
	// ErrMissingInput indicates required generation inputs are absent.
	ErrMissingInput = errors.New("outline: missing required input")
)

// BlockedError reports an upstream safety block with its categorical reason.
type BlockedError struct {
	Reason string
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("outline: content blocked: %s", e.Reason)
}

// Service sequences authorization, generation, and the durable debit+record
// commit. The upstream call never runs inside a database transaction.
type Service struct {
	db  *gorm.DB
	gen generator.Generator
}

// NewService constructs a Service.
func NewService(db *gorm.DB, gen generator.Generator) *Service {
	return &Service{db: db, gen: gen}
}

// GenerateInput carries one generation request's inputs.
type GenerateInput struct {
	Character1 string
	Character2 string
	PlotPrompt string
	Language   string
}

// GenerateResult carries the generated outline and, for authenticated
// users, the remaining ledger balance.
type GenerateResult struct {
	Outline          string
	Guest            bool
	RemainingCredits int
}

// Generate runs the authorization check, the upstream call, and the commit.
// Authenticated users are charged exactly one credit per successful
// generation; the debit and the record insert share one transaction, so a
// persistence failure rolls back the charge and withholds the text.
func (s *Service) Generate(ctx context.Context, principal auth.Principal, in GenerateInput) (GenerateResult, error) {
	in.Character1 = strings.TrimSpace(in.Character1)
	in.Character2 = strings.TrimSpace(in.Character2)
	in.PlotPrompt = strings.TrimSpace(in.PlotPrompt)
	in.Language = strings.TrimSpace(in.Language)
	if in.Language == "" {
		in.Language = "en"
	}
	if in.Character1 == "" || in.Character2 == "" || in.PlotPrompt == "" {
		return GenerateResult{}, ErrMissingInput
	}

	switch p := principal.(type) {
	case auth.Guest:
		outcome, errGenerate := s.callGenerator(ctx, in)
		if errGenerate != nil {
			return GenerateResult{}, errGenerate
		}
		return GenerateResult{Outline: outcome.Text, Guest: true, RemainingCredits: p.Allowance}, nil

	case auth.AuthenticatedUser:
		// Both gates run strictly before the upstream call so a user is
		// never charged for, or triggers, generation they cannot afford.
		if !p.User.IsVerified {
			return GenerateResult{}, ErrNotVerified
		}
		if p.User.Credits <= 0 {
			return GenerateResult{}, ledger.ErrInsufficientCredits
		}

		outcome, errGenerate := s.callGenerator(ctx, in)
		if errGenerate != nil {
			return GenerateResult{}, errGenerate
		}

		var remaining int
		errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			balance, errDebit := ledger.Debit(ctx, tx, p.User.ID)
			if errDebit != nil {
				return errDebit
			}
			remaining = balance

			record := models.Outline{
				UserID:     p.User.ID,
				Source:     models.OutlineSourceGenerated,
				Character1: in.Character1,
				Character2: in.Character2,
				PlotPrompt: in.PlotPrompt,
				Language:   in.Language,
				Content:    outcome.Text,
			}
			if errCreate := tx.Create(&record).Error; errCreate != nil {
				return fmt.Errorf("outline: persist record: %w", errCreate)
			}
			return nil
		})
		if errTx != nil {
			// Ledger consistency wins over returning unbilled output.
			if !errors.Is(errTx, ledger.ErrInsufficientCredits) {
				log.WithError(errTx).Error("generation commit failed, rolling back")
			}
			return GenerateResult{}, errTx
		}
		return GenerateResult{Outline: outcome.Text, RemainingCredits: remaining}, nil

	default:
		return GenerateResult{}, ErrUnauthorized
	}
}

func (s *Service) callGenerator(ctx context.Context, in GenerateInput) (generator.Outcome, error) {
	outcome, errGenerate := s.gen.GenerateOutline(ctx, generator.Request{
		Character1: in.Character1,
		Character2: in.Character2,
		PlotPrompt: in.PlotPrompt,
		Language:   in.Language,
	})
	if errGenerate != nil {
		log.WithError(errGenerate).Error("upstream generation failed")
		return generator.Outcome{}, fmt.Errorf("outline: generate: %w", errGenerate)
	}
	if outcome.Blocked {
		return generator.Outcome{}, &BlockedError{Reason: outcome.BlockReason}
	}
	return outcome, nil
}

// SaveInput carries a user-authored outline to persist.
type SaveInput struct {
	Characters string
	CoreScenes string
	Content    string
}

// Save persists a user-authored outline. Guests cannot save.
func (s *Service) Save(ctx context.Context, principal auth.Principal, in SaveInput) (models.Outline, error) {
	user, errUser := requireUser(principal)
	if errUser != nil {
		return models.Outline{}, errUser
	}
	if strings.TrimSpace(in.Content) == "" {
		return models.Outline{}, ErrMissingInput
	}

	record := models.Outline{
		UserID:     user.ID,
		Source:     models.OutlineSourceSaved,
		Characters: strings.TrimSpace(in.Characters),
		CoreScenes: strings.TrimSpace(in.CoreScenes),
		Content:    in.Content,
	}
	if errCreate := s.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		return models.Outline{}, fmt.Errorf("outline: save: %w", errCreate)
	}
	return record, nil
}

// List returns the principal's outline history, newest first. Both lineages
// are unified at read time. Guests always get an empty collection.
func (s *Service) List(ctx context.Context, principal auth.Principal) ([]models.Outline, error) {
	switch p := principal.(type) {
	case auth.Guest:
		return []models.Outline{}, nil
	case auth.AuthenticatedUser:
		var rows []models.Outline
		errFind := s.db.WithContext(ctx).
			Where("user_id = ?", p.User.ID).
			Order("created_at DESC").
			Find(&rows).Error
		if errFind != nil {
			return nil, fmt.Errorf("outline: list: %w", errFind)
		}
		return rows, nil
	default:
		return nil, ErrUnauthorized
	}
}

// Delete removes one of the principal's outlines. Ownership is enforced in
// the delete predicate, so users cannot remove others' entries.
func (s *Service) Delete(ctx context.Context, principal auth.Principal, id uint64) error {
	user, errUser := requireUser(principal)
	if errUser != nil {
		return errUser
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, user.ID).
		Delete(&models.Outline{})
	if result.Error != nil {
		return fmt.Errorf("outline: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func requireUser(principal auth.Principal) (*models.User, error) {
	switch p := principal.(type) {
	case auth.AuthenticatedUser:
		return p.User, nil
	case auth.Guest:
		return nil, ErrGuestForbidden
	default:
		return nil, ErrUnauthorized
	}
}
