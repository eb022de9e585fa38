package emergency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/medrex/zeronet/internal/zeronet"
	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/monitoring"
	"github.com/medrex/zeronet/pkg/types"
)

// Resolver looks up a live emergency summary by wallet for legacy links
type Resolver interface {
	Resolve(ctx context.Context, wallet common.Address) (*types.EmergencySummary, error)
}

// ProfileSource fetches a patient profile by wallet. Implementations report
// a missing profile as NOT_FOUND and any other failure as NETWORK_UNAVAILABLE.
type ProfileSource interface {
	Name() string
	FetchProfile(ctx context.Context, wallet common.Address) (*types.PatientProfile, error)
}

// ChainedResolver asks each source in order until one returns a profile
type ChainedResolver struct {
	sources []ProfileSource
	timeout time.Duration
	metrics *monitoring.MetricsCollector
	tracing *monitoring.TracingManager
	logger  *logger.Logger
	now     func() time.Time
}

// NewChainedResolver creates a resolver over sources. Every Resolve call is
// bounded by timeout.
func NewChainedResolver(sources []ProfileSource, timeout time.Duration, metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager, log *logger.Logger) *ChainedResolver {
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager()
	}
	return &ChainedResolver{
		sources: sources,
		timeout: timeout,
		metrics: metrics,
		tracing: tracing,
		logger:  log,
		now:     time.Now,
	}
}

// Resolve returns NOT_FOUND only if every source answered NOT_FOUND, and
// NETWORK_UNAVAILABLE otherwise.
func (r *ChainedResolver) Resolve(ctx context.Context, wallet common.Address) (*types.EmergencySummary, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	allNotFound := len(r.sources) > 0
	var lastErr error

	for _, source := range r.sources {
		summary, err := r.resolveFrom(ctx, source, wallet)
		if err == nil {
			return summary, nil
		}
		lastErr = err
		if !types.IsCode(err, types.ErrCodeNotFound) {
			allNotFound = false
		}
		if ctx.Err() != nil {
			break
		}
	}

	if allNotFound {
		return nil, types.NewResolveError(types.ErrCodeNotFound, "no emergency profile for this wallet", lastErr)
	}
	return nil, types.NewResolveError(types.ErrCodeNetworkUnavailable, "emergency profile is temporarily unavailable", lastErr)
}

func (r *ChainedResolver) resolveFrom(ctx context.Context, source ProfileSource, wallet common.Address) (*types.EmergencySummary, error) {
	ctx, span := r.tracing.StartResolverSpan(ctx, source.Name())
	defer span.End()

	start := time.Now()
	profile, err := source.FetchProfile(ctx, wallet)
	if err == nil {
		err = checkProfileWallet(profile, wallet)
	}

	var summary *types.EmergencySummary
	if err == nil {
		summary, err = zeronet.Build(profile, r.now())
		if err != nil {
			err = types.NewResolveError(types.ErrCodeNetworkUnavailable, "stored profile is invalid", err)
		}
	}

	status := "ok"
	if err != nil {
		status = strings.ToLower(types.CodeOf(err))
		r.tracing.RecordError(span, err)
		r.logger.WithContext(ctx).WithFields(logrus.Fields{
			"source":         source.Name(),
			"wallet_address": wallet.Hex(),
			"error_code":     types.CodeOf(err),
		}).Warn("Legacy profile lookup failed")
	}
	if r.metrics != nil {
		r.metrics.RecordResolve(source.Name(), status, time.Since(start))
	}

	return summary, err
}

// checkProfileWallet fills an empty profile wallet and rejects a mismatch
func checkProfileWallet(profile *types.PatientProfile, wallet common.Address) error {
	if profile == nil {
		return types.NewResolveError(types.ErrCodeNotFound, "empty profile", nil)
	}
	if strings.TrimSpace(profile.WalletAddress) == "" {
		profile.WalletAddress = wallet.Hex()
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(profile.WalletAddress), wallet.Hex()) {
		return types.NewResolveError(types.ErrCodeNetworkUnavailable, "profile belongs to a different wallet", nil)
	}
	return nil
}

// unavailable wraps a transport failure, keeping context errors visible
func unavailable(msg string, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		msg += ": timed out"
	}
	return types.NewResolveError(types.ErrCodeNetworkUnavailable, msg, cause)
}
