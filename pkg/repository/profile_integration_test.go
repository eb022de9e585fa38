//go:build integration

package repository

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/medrex/zeronet/pkg/config"
	"github.com/medrex/zeronet/pkg/database"
	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/types"
)

// startPostgres runs a throwaway Postgres and returns a connection with the
// schema applied
func startPostgres(t *testing.T) *database.DB {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "zeronet_test",
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "testpass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	db, err := database.NewConnection(&config.DatabaseConfig{
		Host:         host,
		Port:         portNum,
		Name:         "zeronet_test",
		User:         "test",
		Password:     "testpass",
		SSLMode:      "disable",
		MaxOpenConns: 4,
		MaxIdleConns: 1,
	}, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.CreateSchema(ctx))
	return db
}

func TestProfileRepository_Postgres(t *testing.T) {
	db := startPostgres(t)
	repo := NewProfileRepository(db.DB, logger.NewNop())
	ctx := context.Background()

	_, err := repo.GetByWallet(ctx, wallet)
	assert.ErrorIs(t, err, ErrProfileNotFound)

	profile := &types.PatientProfile{
		FullName:      "Jane Doe",
		BloodGroup:    "O-",
		Allergies:     "Penicillin",
		WalletAddress: "0xABC0000000000000000000000000000000000123",
	}
	require.NoError(t, repo.Upsert(ctx, profile))

	profile.Allergies = "Penicillin, Latex"
	require.NoError(t, repo.Upsert(ctx, profile))

	got, err := repo.GetByWallet(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, wallet, got.WalletAddress)
	assert.Equal(t, "Penicillin, Latex", got.Allergies)
	assert.Empty(t, got.ChronicConditions)
}
