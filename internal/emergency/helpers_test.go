package emergency

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"

	"github.com/medrex/zeronet/internal/zeronet"
	"github.com/medrex/zeronet/pkg/config"
	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/monitoring"
	"github.com/medrex/zeronet/pkg/types"
)

const (
	testWallet  = "0xabc0000000000000000000000000000000000123"
	otherWallet = "0x00000000000000000000000000000000000000ff"
	testSecret  = "test-secret"
)

var fixedNow = time.Unix(1700000000, 0)

// MockProfileSource mocks a profile source
type MockProfileSource struct {
	mock.Mock
	name string
}

func (m *MockProfileSource) Name() string { return m.name }

func (m *MockProfileSource) FetchProfile(ctx context.Context, wallet common.Address) (*types.PatientProfile, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PatientProfile), args.Error(1)
}

// MockResolver mocks a legacy resolver
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, wallet common.Address) (*types.EmergencySummary, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.EmergencySummary), args.Error(1)
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []*types.ScanEvent
}

func (r *memoryRecorder) Record(event *types.ScanEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memoryRecorder) Recent(limit int) ([]*types.ScanEvent, error) {
	return r.RecentForWallet("", limit)
}

// RecentForWallet filters while walking so limit counts matching events only.
// An empty wallet matches every event.
func (r *memoryRecorder) RecentForWallet(walletAddress string, limit int) ([]*types.ScanEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.ScanEvent, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if walletAddress == "" || strings.EqualFold(r.events[i].WalletAddress, walletAddress) {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.JWT.SecretKey = testSecret
	cfg.PublicOrigin = "https://care.example.org"
	return cfg
}

func testCodec(cfg *config.Config) *zeronet.Codec {
	codec := zeronet.NewCodec(zeronet.OptionsFromConfig(cfg.Codec))
	codec.Decoder.WithClock(func() time.Time { return fixedNow.Add(time.Minute) })
	return codec
}

func setupService(profiles ProfileSource) (*Service, *zeronet.Codec) {
	cfg := testConfig()
	codec := testCodec(cfg)
	svc := NewService(cfg, codec, profiles, monitoring.NewMetricsCollector("test"), nil, logger.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc, codec
}

func janeProfile() *types.PatientProfile {
	return &types.PatientProfile{
		FullName:           "Jane Doe",
		BloodGroup:         "O-",
		Allergies:          "Penicillin",
		CurrentMedications: "Metformin",
		EmergencyName:      "Rita Doe",
		EmergencyPhone:     "+911234567890",
		WalletAddress:      testWallet,
	}
}

// bulkyProfile only fits after free-text compaction
func bulkyProfile() *types.PatientProfile {
	p := janeProfile()
	p.FullName = "Jane Alexandra Catherine Doe-Montgomery Smith"
	p.Allergies = "Penicillin and other beta-lactam antibiotics, Sulfonamide antibacterial drugs, " +
		"Latex gloves and catheters, Shellfish and crustaceans, Tree nuts including almonds, " +
		"Egg white protein and ovalbumin"
	return p
}

// hugeProfile does not fit even after compaction
func hugeProfile() *types.PatientProfile {
	p := janeProfile()
	allergies := ""
	for i := 0; i < 40; i++ {
		allergies += "Allergen number " + string(rune('A'+i%26)) + string(rune('a'+i/26)) + ","
	}
	p.Allergies = allergies
	return p
}
