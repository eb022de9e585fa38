package emergency

import (
	"context"
	"reflect"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/medrex/zeronet/internal/zeronet"
	"github.com/medrex/zeronet/pkg/monitoring"
	"github.com/medrex/zeronet/pkg/types"
)

// healthCheckWallet is looked up by source checks. It is not expected to
// have a profile; NOT_FOUND proves the source answered.
var healthCheckWallet = common.HexToAddress("0x00000000000000000000000000000000000000e1")

// CodecHealthChecker round-trips a fixed summary through the codec
type CodecHealthChecker struct {
	codec *zeronet.Codec
	now   func() time.Time
}

// NewCodecHealthChecker creates a codec self-check
func NewCodecHealthChecker(codec *zeronet.Codec) *CodecHealthChecker {
	return &CodecHealthChecker{codec: codec, now: time.Now}
}

// Check encodes, packs, unpacks and decodes a sample summary. Any error or a
// decoded summary that differs from the input is unhealthy.
func (c *CodecHealthChecker) Check(ctx context.Context) monitoring.HealthCheck {
	sample := &types.EmergencySummary{
		Name:               "Health Check",
		BloodGroup:         types.BloodGroupONeg,
		Allergies:          []string{"Penicillin"},
		ChronicConditions:  []string{"Asthma"},
		CurrentMedications: []string{"Salbutamol"},
		EmergencyContact:   types.EmergencyContact{Name: "Duty Desk", Phone: "+10000000000"},
		WalletAddress:      healthCheckWallet,
		IssuedAt:           c.now().Unix(),
	}

	packed, rawSize, err := c.codec.EncodeToText(sample)
	if err != nil {
		return monitoring.HealthCheck{Status: monitoring.HealthStatusUnhealthy, Message: "encode failed: " + err.Error()}
	}
	result, err := c.codec.DecodeText(packed)
	if err != nil {
		return monitoring.HealthCheck{Status: monitoring.HealthStatusUnhealthy, Message: "decode failed: " + err.Error()}
	}
	if !reflect.DeepEqual(sample, result.Summary) {
		return monitoring.HealthCheck{Status: monitoring.HealthStatusUnhealthy, Message: "decoded summary differs from encoded one"}
	}

	return monitoring.HealthCheck{
		Status:  monitoring.HealthStatusHealthy,
		Message: "Codec round trip ok",
		Details: map[string]interface{}{
			"raw_bytes":    rawSize,
			"packed_bytes": len(packed),
			"capacity_h":   c.codec.Packer.EstimateQRCapacity(types.ECLevelH),
		},
	}
}

// SourceHealthChecker asks a legacy profile source for a wallet that has no
// profile. NOT_FOUND or a profile means the source is reachable.
type SourceHealthChecker struct {
	source ProfileSource
}

// NewSourceHealthChecker creates a reachability check for source
func NewSourceHealthChecker(source ProfileSource) *SourceHealthChecker {
	return &SourceHealthChecker{source: source}
}

// Check performs one lookup against the source
func (s *SourceHealthChecker) Check(ctx context.Context) monitoring.HealthCheck {
	check := monitoring.HealthCheck{
		Details: map[string]interface{}{"source": s.source.Name()},
	}

	_, err := s.source.FetchProfile(ctx, healthCheckWallet)
	switch {
	case err == nil, types.IsCode(err, types.ErrCodeNotFound):
		check.Status = monitoring.HealthStatusHealthy
		check.Message = "Profile source reachable"
	default:
		check.Status = monitoring.HealthStatusUnhealthy
		check.Message = err.Error()
		check.Details["code"] = types.CodeOf(err)
	}
	return check
}
