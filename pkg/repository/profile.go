package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/types"
)

// ErrProfileNotFound is returned when no profile exists for a wallet
var ErrProfileNotFound = errors.New("emergency profile not found")

// ProfileRepositoryInterface defines the emergency profile store
type ProfileRepositoryInterface interface {
	GetByWallet(ctx context.Context, walletAddress string) (*types.PatientProfile, error)
	Upsert(ctx context.Context, profile *types.PatientProfile) error
}

// ProfileRepository stores emergency profiles in Postgres keyed by lowercase wallet
type ProfileRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sql.DB, log *logger.Logger) *ProfileRepository {
	return &ProfileRepository{db: db, logger: log}
}

// GetByWallet loads the profile for walletAddress
func (r *ProfileRepository) GetByWallet(ctx context.Context, walletAddress string) (*types.PatientProfile, error) {
	query := `
		SELECT wallet_address, full_name, blood_group, allergies,
			   chronic_conditions, current_medications, emergency_name, emergency_phone
		FROM emergency_profiles
		WHERE wallet_address = $1`

	var p types.PatientProfile
	err := r.db.QueryRowContext(ctx, query, normalizeWallet(walletAddress)).Scan(
		&p.WalletAddress,
		&p.FullName,
		&p.BloodGroup,
		&p.Allergies,
		&p.ChronicConditions,
		&p.CurrentMedications,
		&p.EmergencyName,
		&p.EmergencyPhone,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get emergency profile: %w", err)
	}

	return &p, nil
}

// Upsert inserts or replaces the profile for its wallet
func (r *ProfileRepository) Upsert(ctx context.Context, profile *types.PatientProfile) error {
	query := `
		INSERT INTO emergency_profiles (
			wallet_address, full_name, blood_group, allergies,
			chronic_conditions, current_medications, emergency_name, emergency_phone, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (wallet_address) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			blood_group = EXCLUDED.blood_group,
			allergies = EXCLUDED.allergies,
			chronic_conditions = EXCLUDED.chronic_conditions,
			current_medications = EXCLUDED.current_medications,
			emergency_name = EXCLUDED.emergency_name,
			emergency_phone = EXCLUDED.emergency_phone,
			updated_at = EXCLUDED.updated_at`

	wallet := normalizeWallet(profile.WalletAddress)
	_, err := r.db.ExecContext(ctx, query,
		wallet,
		profile.FullName,
		profile.BloodGroup,
		profile.Allergies,
		profile.ChronicConditions,
		profile.CurrentMedications,
		profile.EmergencyName,
		profile.EmergencyPhone,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert emergency profile: %w", err)
	}

	r.logger.WithComponent("profile_repository").WithField("wallet_address", wallet).Info("Stored emergency profile")
	return nil
}

func normalizeWallet(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
