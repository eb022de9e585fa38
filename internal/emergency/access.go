package emergency

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/medrex/zeronet/internal/zeronet"
	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/monitoring"
	"github.com/medrex/zeronet/pkg/types"
)

// AccessRequest is one scan of an emergency link
type AccessRequest struct {
	// Segment is the path segment after /emergency/: a packed payload or,
	// for legacy links, a wallet address
	Segment    string
	WalletHint string
	RemoteAddr string
}

// ScanRecorder persists scan events
type ScanRecorder interface {
	Record(event *types.ScanEvent) error
}

// AccessFlow drives a responder from a scanned link to a summary or the
// unavailable screen
type AccessFlow struct {
	codec    *zeronet.Codec
	resolver Resolver
	recorder ScanRecorder
	metrics  *monitoring.MetricsCollector
	tracing  *monitoring.TracingManager
	logger   *logger.Logger
}

// NewAccessFlow creates the access flow. resolver and recorder may be nil.
func NewAccessFlow(codec *zeronet.Codec, resolver Resolver, recorder ScanRecorder, metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager, log *logger.Logger) *AccessFlow {
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager()
	}
	return &AccessFlow{
		codec:    codec,
		resolver: resolver,
		recorder: recorder,
		metrics:  metrics,
		tracing:  tracing,
		logger:   log,
	}
}

// Access walks Start -> TryEmbeddedDecode -> ShowSummary, falling back to
// TryLegacyResolve when the embedded payload cannot be used. It always ends
// in ShowSummary or ShowUnavailable.
func (f *AccessFlow) Access(ctx context.Context, req AccessRequest) *types.AccessOutcome {
	out := &types.AccessOutcome{State: types.AccessStart, Trace: []types.AccessState{types.AccessStart}}
	segment := strings.TrimSpace(req.Segment)

	var wallet common.Address
	if zeronet.IsWalletAddress(segment) {
		wallet, _ = zeronet.ParseWallet(segment)
	} else {
		f.transition(out, types.AccessTryEmbeddedDecode)
		result, err := f.decodeEmbedded(ctx, segment)
		if err == nil {
			out.Summary = result.Summary
			out.Stale = result.Stale
			out.Source = types.SourceEmbedded
			f.transition(out, types.AccessShowSummary)
			f.finish(ctx, req, out)
			return out
		}
		out.EmbeddedError = types.CodeOf(err)
		wallet, _ = zeronet.ParseWallet(req.WalletHint)
	}

	// no wallet to look up: nothing more can be shown
	if wallet == (common.Address{}) {
		f.transition(out, types.AccessShowUnavailable)
		f.finish(ctx, req, out)
		return out
	}

	f.transition(out, types.AccessTryLegacyResolve)
	summary, err := f.resolve(ctx, wallet)
	if err != nil {
		out.ResolveError = types.CodeOf(err)
		if out.ResolveError == "" {
			out.ResolveError = types.ErrCodeNetworkUnavailable
		}
		f.transition(out, types.AccessShowUnavailable)
	} else {
		out.Summary = summary
		out.Source = types.SourceLegacy
		f.transition(out, types.AccessShowSummary)
	}

	f.finish(ctx, req, out)
	return out
}

func (f *AccessFlow) resolve(ctx context.Context, wallet common.Address) (*types.EmergencySummary, error) {
	if f.resolver == nil {
		return nil, types.NewResolveError(types.ErrCodeNetworkUnavailable, "no legacy resolver configured", nil)
	}
	return f.resolver.Resolve(ctx, wallet)
}

func (f *AccessFlow) decodeEmbedded(ctx context.Context, segment string) (*zeronet.Result, error) {
	ctx, span := f.tracing.StartCodecSpan(ctx, "decode")
	defer span.End()

	result, err := f.codec.DecodeText(segment)
	if err != nil {
		f.tracing.RecordError(span, err)
		code := types.CodeOf(err)
		if f.metrics != nil {
			f.metrics.RecordDecodeFailure(code)
		}
		if code == types.ErrCodeTamperDetected {
			f.logger.Security(ctx, "emergency_payload_tampered", map[string]interface{}{
				"payload_length": len(segment),
			})
		} else {
			f.logger.WithContext(ctx).WithField("error_code", code).Warn("Embedded emergency payload rejected")
		}
		return nil, err
	}
	return result, nil
}

func (f *AccessFlow) transition(out *types.AccessOutcome, state types.AccessState) {
	out.State = state
	out.Trace = append(out.Trace, state)
}

func (f *AccessFlow) finish(ctx context.Context, req AccessRequest, out *types.AccessOutcome) {
	wallet := ""
	if out.Summary != nil {
		wallet = out.Summary.WalletAddress.Hex()
	} else if w, err := zeronet.ParseWallet(req.WalletHint); err == nil {
		wallet = w.Hex()
	} else if w, err := zeronet.ParseWallet(req.Segment); err == nil {
		wallet = w.Hex()
	}

	if f.metrics != nil {
		f.metrics.RecordScan(string(out.State), string(out.Source))
	}

	f.logger.EmergencyAccess(ctx, wallet, string(out.State), string(out.Source), map[string]interface{}{
		"embedded_error": out.EmbeddedError,
		"resolve_error":  out.ResolveError,
		"stale":          out.Stale,
	})

	if f.recorder == nil {
		return
	}

	errorCode := out.EmbeddedError
	if out.State == types.AccessShowUnavailable && out.ResolveError != "" {
		errorCode = out.ResolveError
	}
	event := &types.ScanEvent{
		State:         out.State,
		Source:        out.Source,
		ErrorCode:     errorCode,
		Tampered:      out.EmbeddedError == types.ErrCodeTamperDetected,
		WalletAddress: wallet,
		Stale:         out.Stale,
		RemoteAddr:    req.RemoteAddr,
	}
	if err := f.recorder.Record(event); err != nil {
		f.logger.WithContext(ctx).WithError(err).Error("Failed to record scan event")
	}
}
