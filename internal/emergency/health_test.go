package emergency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/medrex/zeronet/internal/zeronet"
	"github.com/medrex/zeronet/pkg/monitoring"
	"github.com/medrex/zeronet/pkg/types"
)

func TestCodecHealthChecker(t *testing.T) {
	checker := NewCodecHealthChecker(testCodec(testConfig()))
	checker.now = func() time.Time { return fixedNow }

	check := checker.Check(context.Background())
	assert.Equal(t, monitoring.HealthStatusHealthy, check.Status)
	assert.Equal(t, 535, check.Details["capacity_h"])
	assert.LessOrEqual(t, check.Details["packed_bytes"], 400)
}

func TestCodecHealthChecker_Failures(t *testing.T) {
	tight := zeronet.DefaultOptions()
	tight.MaxRawBytes = 16

	keyed := zeronet.DefaultOptions()
	keyed.IntegrityKey = []byte("encoder-key")
	otherKey := zeronet.DefaultOptions()
	otherKey.IntegrityKey = []byte("decoder-key")

	tests := map[string]struct {
		codec   *zeronet.Codec
		message string
	}{
		"budget too small": {zeronet.NewCodec(tight), "encode failed"},
		"keys disagree": {&zeronet.Codec{
			Encoder: zeronet.NewEncoder(keyed),
			Decoder: zeronet.NewDecoder(otherKey),
			Packer:  zeronet.NewPacker(keyed),
		}, "decode failed"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			check := NewCodecHealthChecker(tt.codec).Check(context.Background())
			assert.Equal(t, monitoring.HealthStatusUnhealthy, check.Status)
			assert.Contains(t, check.Message, tt.message)
		})
	}
}

func TestSourceHealthChecker(t *testing.T) {
	tests := map[string]struct {
		err    error
		status monitoring.HealthStatus
	}{
		"not found means reachable": {types.NewResolveError(types.ErrCodeNotFound, "no profile", nil), monitoring.HealthStatusHealthy},
		"unreachable":               {types.NewResolveError(types.ErrCodeNetworkUnavailable, "dial tcp: refused", nil), monitoring.HealthStatusUnhealthy},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			source := &MockProfileSource{name: "api"}
			source.On("FetchProfile", mock.Anything, healthCheckWallet).Return(nil, tt.err)

			check := NewSourceHealthChecker(source).Check(context.Background())
			assert.Equal(t, tt.status, check.Status)
			assert.Equal(t, "api", check.Details["source"])
			source.AssertExpectations(t)
		})
	}
}
