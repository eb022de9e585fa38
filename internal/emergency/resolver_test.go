package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/monitoring"
	"github.com/medrex/zeronet/pkg/repository"
	"github.com/medrex/zeronet/pkg/types"
)

var walletAddr = common.HexToAddress(testWallet)

func newResolver(timeout time.Duration, sources ...ProfileSource) *ChainedResolver {
	r := NewChainedResolver(sources, timeout, monitoring.NewMetricsCollector("test"), nil, logger.NewNop())
	r.now = func() time.Time { return fixedNow }
	return r
}

func notFound() error {
	return types.NewResolveError(types.ErrCodeNotFound, "missing", nil)
}

func offline() error {
	return types.NewResolveError(types.ErrCodeNetworkUnavailable, "offline", nil)
}

func TestChainedResolver_FirstHitWins(t *testing.T) {
	first := &MockProfileSource{name: "api"}
	first.On("FetchProfile", mock.Anything, walletAddr).Return(nil, offline())
	second := &MockProfileSource{name: "database"}
	second.On("FetchProfile", mock.Anything, walletAddr).Return(janeProfile(), nil)
	third := &MockProfileSource{name: "fabric"}

	summary, err := newResolver(time.Second, first, second, third).Resolve(context.Background(), walletAddr)
	require.NoError(t, err)

	assert.Equal(t, "Jane Doe", summary.Name)
	assert.Equal(t, types.BloodGroupONeg, summary.BloodGroup)
	assert.Equal(t, fixedNow.Unix(), summary.IssuedAt)
	third.AssertNotCalled(t, "FetchProfile", mock.Anything, mock.Anything)
}

func TestChainedResolver_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		errs []error
		code string
	}{
		{"all not found", []error{notFound(), notFound()}, types.ErrCodeNotFound},
		{"one offline", []error{notFound(), offline()}, types.ErrCodeNetworkUnavailable},
		{"all offline", []error{offline(), offline()}, types.ErrCodeNetworkUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sources []ProfileSource
			for _, e := range tt.errs {
				s := &MockProfileSource{name: "src"}
				s.On("FetchProfile", mock.Anything, walletAddr).Return(nil, e)
				sources = append(sources, s)
			}

			_, err := newResolver(time.Second, sources...).Resolve(context.Background(), walletAddr)
			assert.True(t, types.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestChainedResolver_NoSources(t *testing.T) {
	_, err := newResolver(time.Second).Resolve(context.Background(), walletAddr)
	assert.True(t, types.IsCode(err, types.ErrCodeNetworkUnavailable))
}

func TestChainedResolver_RejectsForeignProfile(t *testing.T) {
	p := janeProfile()
	p.WalletAddress = otherWallet
	s := &MockProfileSource{name: "api"}
	s.On("FetchProfile", mock.Anything, walletAddr).Return(p, nil)

	_, err := newResolver(time.Second, s).Resolve(context.Background(), walletAddr)
	assert.True(t, types.IsCode(err, types.ErrCodeNetworkUnavailable))
}

func TestChainedResolver_FillsMissingProfileWallet(t *testing.T) {
	p := janeProfile()
	p.WalletAddress = ""
	s := &MockProfileSource{name: "api"}
	s.On("FetchProfile", mock.Anything, walletAddr).Return(p, nil)

	summary, err := newResolver(time.Second, s).Resolve(context.Background(), walletAddr)
	require.NoError(t, err)
	assert.Equal(t, walletAddr, summary.WalletAddress)
}

func TestAPISource(t *testing.T) {
	var gotQuery string
	handler := http.NewServeMux()
	handler.HandleFunc("/api/patient/status", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("walletAddress")
		switch gotQuery {
		case walletAddr.Hex():
			json.NewEncoder(w).Encode(map[string]interface{}{"profile": janeProfile()})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	source := NewAPISource(server.URL+"/", time.Second)
	assert.Equal(t, "api", source.Name())

	profile, err := source.FetchProfile(context.Background(), walletAddr)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.FullName)
	assert.Equal(t, walletAddr.Hex(), gotQuery)

	_, err = source.FetchProfile(context.Background(), common.HexToAddress(otherWallet))
	assert.True(t, types.IsCode(err, types.ErrCodeNotFound))
}

func TestAPISource_ResponseShapes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"bare profile", http.StatusOK, `{"fullName":"Jane Doe","walletAddress":"` + testWallet + `"}`, ""},
		{"empty object", http.StatusOK, `{}`, types.ErrCodeNotFound},
		{"invalid json", http.StatusOK, `<html>`, types.ErrCodeNetworkUnavailable},
		{"server error", http.StatusInternalServerError, `{}`, types.ErrCodeNetworkUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			profile, err := NewAPISource(server.URL, time.Second).FetchProfile(context.Background(), walletAddr)
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, "Jane Doe", profile.FullName)
				return
			}
			assert.True(t, types.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestChainedResolver_TimeoutIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	start := time.Now()
	_, err := newResolver(50*time.Millisecond, NewAPISource(server.URL, 5*time.Second)).
		Resolve(context.Background(), walletAddr)

	assert.True(t, types.IsCode(err, types.ErrCodeNetworkUnavailable))
	assert.Less(t, time.Since(start), time.Second)
}

type mockProfileRepo struct {
	mock.Mock
}

func (m *mockProfileRepo) GetByWallet(ctx context.Context, wallet string) (*types.PatientProfile, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PatientProfile), args.Error(1)
}

func (m *mockProfileRepo) Upsert(ctx context.Context, profile *types.PatientProfile) error {
	return m.Called(ctx, profile).Error(0)
}

func TestRepositorySource(t *testing.T) {
	repo := &mockProfileRepo{}
	repo.On("GetByWallet", mock.Anything, walletAddr.Hex()).Return(janeProfile(), nil).Once()
	repo.On("GetByWallet", mock.Anything, walletAddr.Hex()).Return(nil, repository.ErrProfileNotFound).Once()
	repo.On("GetByWallet", mock.Anything, walletAddr.Hex()).Return(nil, errors.New("connection refused")).Once()

	source := NewRepositorySource(repo)
	assert.Equal(t, "database", source.Name())

	profile, err := source.FetchProfile(context.Background(), walletAddr)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.FullName)

	_, err = source.FetchProfile(context.Background(), walletAddr)
	assert.True(t, types.IsCode(err, types.ErrCodeNotFound))

	_, err = source.FetchProfile(context.Background(), walletAddr)
	assert.True(t, types.IsCode(err, types.ErrCodeNetworkUnavailable))
	repo.AssertExpectations(t)
}

type fakeContract struct {
	data  []byte
	err   error
	block chan struct{}
	args  []string
}

func (f *fakeContract) EvaluateTransaction(name string, args ...string) ([]byte, error) {
	if f.block != nil {
		<-f.block
	}
	f.args = append([]string{name}, args...)
	return f.data, f.err
}

func TestChainSource(t *testing.T) {
	raw, err := json.Marshal(janeProfile())
	require.NoError(t, err)

	contract := &fakeContract{data: raw}
	source := NewChainSource(contract)
	assert.Equal(t, "fabric", source.Name())

	profile, err := source.FetchProfile(context.Background(), walletAddr)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", profile.FullName)
	assert.Equal(t, []string{"ReadEmergencyProfile", testWallet}, contract.args)
}

func TestChainSource_Errors(t *testing.T) {
	tests := []struct {
		name     string
		contract *fakeContract
		code     string
	}{
		{"grpc not found", &fakeContract{err: status.Error(codes.NotFound, "missing")}, types.ErrCodeNotFound},
		{"chaincode does not exist", &fakeContract{err: errors.New("emergency profile 0xabc does not exist")}, types.ErrCodeNotFound},
		{"empty result", &fakeContract{}, types.ErrCodeNotFound},
		{"grpc unavailable", &fakeContract{err: status.Error(codes.Unavailable, "peer down")}, types.ErrCodeNetworkUnavailable},
		{"bad json", &fakeContract{data: []byte("{")}, types.ErrCodeNetworkUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChainSource(tt.contract).FetchProfile(context.Background(), walletAddr)
			assert.True(t, types.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestChainSource_ContextBoundsWait(t *testing.T) {
	contract := &fakeContract{block: make(chan struct{})}
	defer close(contract.block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewChainSource(contract).FetchProfile(ctx, walletAddr)
	assert.True(t, types.IsCode(err, types.ErrCodeNetworkUnavailable))
}
