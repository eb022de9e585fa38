// Package emergency generates emergency QR codes and serves the responder
// access flow behind them.
package emergency

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medrex/zeronet/internal/zeronet"
	"github.com/medrex/zeronet/pkg/config"
	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/monitoring"
	"github.com/medrex/zeronet/pkg/types"
)

const (
	warnCompacted      = "free text was shortened to fit the QR code"
	warnLegacyFallback = "emergency data does not fit offline; the QR code needs network access to show it"
)

// GenerateRequest asks for an emergency QR code. When Profile is omitted the
// profile is loaded by WalletAddress.
type GenerateRequest struct {
	Profile             *types.PatientProfile      `json:"profile,omitempty"`
	WalletAddress       string                     `json:"walletAddress,omitempty"`
	Level               types.ErrorCorrectionLevel `json:"level,omitempty"`
	AllowLegacyFallback bool                       `json:"allowLegacyFallback"`
}

// Service generates Zero-Net QR codes
type Service struct {
	codec           *zeronet.Codec
	profiles        ProfileSource
	origin          string
	defaultLevel    types.ErrorCorrectionLevel
	embedWalletHint bool
	lookupTimeout   time.Duration
	compactLimits   zeronet.CompactLimits
	metrics         *monitoring.MetricsCollector
	tracing         *monitoring.TracingManager
	logger          *logger.Logger
	now             func() time.Time
}

// NewService creates the QR generation service. profiles may be nil, in
// which case requests must carry the profile.
func NewService(cfg *config.Config, codec *zeronet.Codec, profiles ProfileSource, metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager, log *logger.Logger) *Service {
	level, ok := types.ParseECLevel(cfg.Codec.ErrorCorrection)
	if !ok {
		level = types.ECLevelH
	}
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager()
	}
	return &Service{
		codec:           codec,
		profiles:        profiles,
		origin:          cfg.PublicOrigin,
		defaultLevel:    level,
		embedWalletHint: cfg.Codec.EmbedWalletHint,
		lookupTimeout:   cfg.Resolver.Timeout(),
		compactLimits:   zeronet.DefaultCompactLimits,
		metrics:         metrics,
		tracing:         tracing,
		logger:          log,
		now:             time.Now,
	}
}

// Generate builds, encodes and packs the profile into a QR URL. An
// oversized summary is retried once with compacted free text. If it still
// does not fit, a legacy link is returned when the request allows it and
// TOO_LARGE otherwise.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*types.QRCode, error) {
	ctx, span := s.tracing.StartCodecSpan(ctx, "generate")
	defer span.End()

	level := s.defaultLevel
	if req.Level != "" {
		parsed, ok := types.ParseECLevel(string(req.Level))
		if !ok {
			return nil, types.NewValidationError(types.ErrCodeInvalidInput, "unknown error correction level",
				map[string]interface{}{"level": req.Level})
		}
		level = parsed
	}

	profile, err := s.loadProfile(ctx, req)
	if err != nil {
		s.tracing.RecordError(span, err)
		return nil, err
	}

	summary, err := zeronet.Build(profile, s.now())
	if err != nil {
		return nil, err
	}

	qr := &types.QRCode{
		Level:    level,
		Capacity: s.codec.Packer.EstimateQRCapacity(level),
		IssuedAt: summary.IssuedAt,
	}

	err = s.fillZeroNet(qr, summary)
	if types.IsCode(err, types.ErrCodeTooLarge) {
		err = s.fillZeroNet(qr, zeronet.Compact(summary, s.compactLimits))
		if err == nil {
			qr.Compacted = true
			qr.Warnings = append(qr.Warnings, warnCompacted)
		}
	}

	if err != nil {
		if !types.IsCode(err, types.ErrCodeTooLarge) || !req.AllowLegacyFallback {
			s.tracing.RecordError(span, err)
			return nil, err
		}
		*qr = types.QRCode{
			Mode:     types.QRModeLegacy,
			URL:      zeronet.LegacyURL(s.origin, summary.WalletAddress.Hex()),
			Level:    level,
			Capacity: qr.Capacity,
			Warnings: []string{warnLegacyFallback},
			IssuedAt: summary.IssuedAt,
		}
	}

	span.SetAttributes(
		attribute.String("zeronet.mode", string(qr.Mode)),
		attribute.Int("zeronet.raw_bytes", qr.RawBytes),
		attribute.Int("zeronet.packed_bytes", qr.PackedBytes),
	)
	if s.metrics != nil {
		s.metrics.RecordQRGenerated(string(qr.Mode), qr.Compacted, qr.RawBytes, qr.PackedBytes)
	}
	s.logger.WithContext(ctx).WithFields(logrus.Fields{
		"wallet_address": summary.WalletAddress.Hex(),
		"mode":           qr.Mode,
		"raw_bytes":      qr.RawBytes,
		"packed_bytes":   qr.PackedBytes,
		"compacted":      qr.Compacted,
	}).Info("Emergency QR code generated")

	return qr, nil
}

// fillZeroNet encodes summary into qr, failing with TOO_LARGE when either
// byte budget or the QR capacity is exceeded
func (s *Service) fillZeroNet(qr *types.QRCode, summary *types.EmergencySummary) error {
	packed, rawSize, err := s.codec.EncodeToText(summary)
	if err != nil {
		return err
	}

	hint := ""
	if s.embedWalletHint {
		hint = summary.WalletAddress.Hex()
	}
	url := zeronet.BuildURL(s.origin, packed, hint)
	if len(url) > qr.Capacity {
		return types.NewEncodeError(types.ErrCodeTooLarge, "emergency data too large, simplify your medical info",
			map[string]interface{}{"url_size": len(url), "capacity": qr.Capacity})
	}

	qr.Mode = types.QRModeZeroNet
	qr.URL = url
	qr.Payload = packed
	qr.RawBytes = rawSize
	qr.PackedBytes = len(packed)
	return nil
}

func (s *Service) loadProfile(ctx context.Context, req GenerateRequest) (*types.PatientProfile, error) {
	if req.Profile != nil {
		return req.Profile, nil
	}

	wallet, err := zeronet.ParseWallet(req.WalletAddress)
	if err != nil {
		return nil, err
	}
	if s.profiles == nil {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "profile is required", nil)
	}

	if s.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lookupTimeout)
		defer cancel()
	}

	profile, err := s.profiles.FetchProfile(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if err := checkProfileWallet(profile, wallet); err != nil {
		return nil, err
	}
	return profile, nil
}

// Capacity describes the QR budget at level
func (s *Service) Capacity(level types.ErrorCorrectionLevel) map[string]interface{} {
	return map[string]interface{}{
		"level":          level,
		"capacity":       s.codec.Packer.EstimateQRCapacity(level),
		"maxVersion":     s.codec.Packer.MaxVersion(),
		"originBytes":    len(strings.TrimRight(s.origin, "/")),
		"maxPackedBytes": s.codec.Packer.MaxPacked(),
	}
}
