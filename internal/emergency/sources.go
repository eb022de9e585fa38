package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/medrex/zeronet/pkg/repository"
	"github.com/medrex/zeronet/pkg/types"
)

// maxProfileResponseBytes caps how much of a profile API response is read
const maxProfileResponseBytes = 64 << 10

// APISource reads profiles from the patient profile API
type APISource struct {
	baseURL string
	client  *http.Client
}

// NewAPISource creates a source for GET {baseURL}/api/patient/status
func NewAPISource(baseURL string, timeout time.Duration) *APISource {
	return &APISource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name implements ProfileSource
func (s *APISource) Name() string { return "api" }

// FetchProfile implements ProfileSource
func (s *APISource) FetchProfile(ctx context.Context, wallet common.Address) (*types.PatientProfile, error) {
	endpoint := s.baseURL + "/api/patient/status?" + url.Values{"walletAddress": {wallet.Hex()}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewResolveError(types.ErrCodeNetworkUnavailable, "failed to build profile request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, unavailable("profile API unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewResolveError(types.ErrCodeNotFound, "profile API has no profile for this wallet", nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, types.NewResolveError(types.ErrCodeNetworkUnavailable,
			fmt.Sprintf("profile API returned %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileResponseBytes))
	if err != nil {
		return nil, unavailable("failed to read profile response", err)
	}
	return decodeProfileResponse(body)
}

// decodeProfileResponse accepts {"profile": {...}} or a bare profile object
func decodeProfileResponse(body []byte) (*types.PatientProfile, error) {
	var envelope struct {
		Profile *types.PatientProfile `json:"profile"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, types.NewResolveError(types.ErrCodeNetworkUnavailable, "profile API returned invalid JSON", err)
	}
	if envelope.Profile != nil {
		return envelope.Profile, nil
	}

	var bare types.PatientProfile
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, types.NewResolveError(types.ErrCodeNetworkUnavailable, "profile API returned invalid JSON", err)
	}
	if bare == (types.PatientProfile{}) {
		return nil, types.NewResolveError(types.ErrCodeNotFound, "profile API returned an empty profile", nil)
	}
	return &bare, nil
}

// RepositorySource reads profiles from the Postgres profile store
type RepositorySource struct {
	repo repository.ProfileRepositoryInterface
}

// NewRepositorySource creates a database-backed source
func NewRepositorySource(repo repository.ProfileRepositoryInterface) *RepositorySource {
	return &RepositorySource{repo: repo}
}

// Name implements ProfileSource
func (s *RepositorySource) Name() string { return "database" }

// FetchProfile implements ProfileSource
func (s *RepositorySource) FetchProfile(ctx context.Context, wallet common.Address) (*types.PatientProfile, error) {
	profile, err := s.repo.GetByWallet(ctx, wallet.Hex())
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, types.NewResolveError(types.ErrCodeNotFound, "no stored profile for this wallet", err)
		}
		return nil, unavailable("profile store unavailable", err)
	}
	return profile, nil
}

// contractEvaluator is the read side of a Fabric gateway contract
type contractEvaluator interface {
	EvaluateTransaction(name string, args ...string) ([]byte, error)
}

// ChainSource reads profiles from the emergency-profile chaincode
type ChainSource struct {
	contract contractEvaluator
}

// NewChainSource creates a chaincode-backed source
func NewChainSource(contract contractEvaluator) *ChainSource {
	return &ChainSource{contract: contract}
}

// Name implements ProfileSource
func (s *ChainSource) Name() string { return "fabric" }

// FetchProfile implements ProfileSource. The gateway call cannot be
// cancelled, so ctx only bounds how long the caller waits.
func (s *ChainSource) FetchProfile(ctx context.Context, wallet common.Address) (*types.PatientProfile, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)

	go func() {
		data, err := s.contract.EvaluateTransaction("ReadEmergencyProfile", strings.ToLower(wallet.Hex()))
		done <- result{data: data, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, unavailable("chaincode evaluation abandoned", ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		return nil, classifyChainError(res.err)
	}
	if len(res.data) == 0 {
		return nil, types.NewResolveError(types.ErrCodeNotFound, "no on-chain profile for this wallet", nil)
	}

	var profile types.PatientProfile
	if err := json.Unmarshal(res.data, &profile); err != nil {
		return nil, types.NewResolveError(types.ErrCodeNetworkUnavailable, "on-chain profile is not valid JSON", err)
	}
	return &profile, nil
}

func classifyChainError(err error) error {
	msg := err.Error()
	if st, ok := status.FromError(err); ok {
		msg = st.Message()
		if st.Code() == grpccodes.NotFound {
			return types.NewResolveError(types.ErrCodeNotFound, "no on-chain profile for this wallet", err)
		}
	}
	if strings.Contains(msg, "does not exist") {
		return types.NewResolveError(types.ErrCodeNotFound, "no on-chain profile for this wallet", err)
	}
	return unavailable("chaincode evaluation failed", err)
}
