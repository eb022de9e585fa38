package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/types"
)

const wallet = "0xabc0000000000000000000000000000000000123"

var profileColumns = []string{
	"wallet_address", "full_name", "blood_group", "allergies",
	"chronic_conditions", "current_medications", "emergency_name", "emergency_phone",
}

func setupRepository(t *testing.T) (*ProfileRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProfileRepository(db, logger.NewNop()), mock
}

func TestProfileRepository_GetByWallet(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery("SELECT wallet_address, full_name").
		WithArgs(wallet).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow(wallet, "Jane Doe", "O-", "Penicillin", "", "Metformin", "Rita Doe", "+911234567890"))

	// mixed case input is normalized to the stored key
	profile, err := repo.GetByWallet(context.Background(), "0xABC0000000000000000000000000000000000123")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.FullName)
	assert.Equal(t, "O-", profile.BloodGroup)
	assert.Equal(t, wallet, profile.WalletAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_GetByWallet_NotFound(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery("SELECT wallet_address").
		WithArgs(wallet).
		WillReturnRows(sqlmock.NewRows(profileColumns))

	_, err := repo.GetByWallet(context.Background(), wallet)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestProfileRepository_GetByWallet_DatabaseError(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery("SELECT wallet_address").
		WithArgs(wallet).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByWallet(context.Background(), wallet)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProfileNotFound)
}

func TestProfileRepository_Upsert(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectExec("INSERT INTO emergency_profiles").
		WithArgs(wallet, "Jane Doe", "O-", "Penicillin", "", "Metformin", "Rita Doe", "+911234567890", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &types.PatientProfile{
		FullName:           "Jane Doe",
		BloodGroup:         "O-",
		Allergies:          "Penicillin",
		CurrentMedications: "Metformin",
		EmergencyName:      "Rita Doe",
		EmergencyPhone:     "+911234567890",
		WalletAddress:      "0xABC0000000000000000000000000000000000123",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
