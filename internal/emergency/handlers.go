package emergency

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/xeipuuv/gojsonschema"

	"github.com/medrex/zeronet/pkg/logger"
	"github.com/medrex/zeronet/pkg/types"
)

const maxGenerateBodyBytes = 16 << 10

// generateRequestSchema bounds the generate body before it reaches the codec
const generateRequestSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"walletAddress": {"type": "string", "pattern": "^0[xX][0-9a-fA-F]{40}$"},
		"level": {"type": "string", "enum": ["L", "M", "Q", "H", "l", "m", "q", "h"]},
		"allowLegacyFallback": {"type": "boolean"},
		"profile": {
			"type": "object",
			"additionalProperties": false,
			"required": ["walletAddress"],
			"properties": {
				"fullName": {"type": "string", "maxLength": 200},
				"bloodGroup": {"type": "string", "maxLength": 16},
				"allergies": {"type": "string", "maxLength": 2000},
				"chronicConditions": {"type": "string", "maxLength": 2000},
				"currentMedications": {"type": "string", "maxLength": 2000},
				"emergencyName": {"type": "string", "maxLength": 200},
				"emergencyPhone": {"type": "string", "maxLength": 32},
				"walletAddress": {"type": "string"}
			}
		}
	},
	"anyOf": [
		{"required": ["profile"]},
		{"required": ["walletAddress"]}
	]
}`

// ScanLister reads recent scan events
type ScanLister interface {
	Recent(limit int) ([]*types.ScanEvent, error)
	RecentForWallet(walletAddress string, limit int) ([]*types.ScanEvent, error)
}

// Handlers provides HTTP handlers for QR generation and emergency access
type Handlers struct {
	service *Service
	access  *AccessFlow
	scans   ScanLister
	auth    *TokenValidator
	limiter *RateLimiter
	schema  *gojsonschema.Schema
	logger  *logger.Logger
}

// NewHandlers creates new emergency handlers. scans may be nil.
func NewHandlers(service *Service, access *AccessFlow, scans ScanLister, auth *TokenValidator, log *logger.Logger) (*Handlers, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(generateRequestSchema))
	if err != nil {
		return nil, err
	}
	return &Handlers{
		service: service,
		access:  access,
		scans:   scans,
		auth:    auth,
		schema:  schema,
		logger:  log,
	}, nil
}

// WithRateLimiter throttles the unauthenticated routes per client
func (h *Handlers) WithRateLimiter(limiter *RateLimiter) *Handlers {
	h.limiter = limiter
	return h
}

// RegisterRoutes registers all emergency routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	public := router.NewRoute().Subrouter()
	if h.limiter != nil {
		public.Use(h.limiter.Middleware)
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	protected := api.NewRoute().Subrouter()
	protected.Use(h.auth.AuthMiddleware)
	protected.HandleFunc("/qr/generate", h.GenerateQR).Methods(http.MethodPost)
	if h.scans != nil {
		protected.HandleFunc("/audit/scans", h.RecentScans).Methods(http.MethodGet)
	}

	api.HandleFunc("/qr/capacity", h.Capacity).Methods(http.MethodGet)

	public.HandleFunc("/api/v1/qr/render", h.RenderQR).Methods(http.MethodGet)
	public.HandleFunc("/emergency/{segment}", h.EmergencyAccess).Methods(http.MethodGet)
}

// GenerateQR handles POST /api/v1/qr/generate
func (h *Handlers) GenerateQR(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, types.NewAuthenticationError(types.ErrCodeUnauthorized, "bearer token required"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxGenerateBodyBytes+1))
	if err != nil || len(body) > maxGenerateBodyBytes {
		writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "request body too large or unreadable", nil))
		return
	}

	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "request body is not valid JSON", nil))
		return
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "request body failed validation",
			map[string]interface{}{"errors": problems}))
		return
	}

	var req GenerateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}

	wallet := req.WalletAddress
	if req.Profile != nil {
		wallet = req.Profile.WalletAddress
	}
	if !canActFor(claims, wallet) {
		h.logger.Security(r.Context(), "qr_generate_wallet_mismatch", map[string]interface{}{
			"token_wallet":   claims.WalletAddress,
			"request_wallet": wallet,
		})
		writeErrorStatus(w, http.StatusForbidden,
			types.NewAuthenticationError(types.ErrCodeUnauthorized, "token does not cover this wallet"))
		return
	}

	qr, err := h.service.Generate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Audit(r.Context(), claims.Subject, "generate_emergency_qr", wallet, true, map[string]interface{}{
		"mode": qr.Mode,
	})
	writeJSON(w, http.StatusOK, qr)
}

// Capacity handles GET /api/v1/qr/capacity
func (h *Handlers) Capacity(w http.ResponseWriter, r *http.Request) {
	level, ok := h.levelParam(r)
	if !ok {
		writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "unknown error correction level", nil))
		return
	}
	writeJSON(w, http.StatusOK, h.service.Capacity(level))
}

// RenderQR handles GET /api/v1/qr/render and returns a PNG
func (h *Handlers) RenderQR(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	data := query.Get("data")
	if data == "" {
		writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "data is required", nil))
		return
	}

	level, ok := h.levelParam(r)
	if !ok {
		writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "unknown error correction level", nil))
		return
	}
	if limit := h.service.codec.Packer.EstimateQRCapacity(level); len(data) > limit {
		writeError(w, types.NewEncodeError(types.ErrCodeTooLarge, "data exceeds QR capacity",
			map[string]interface{}{"size": len(data), "capacity": limit}))
		return
	}

	size := 0
	if raw := query.Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "size must be a number", nil))
			return
		}
		size = parsed
	}

	png, err := RenderPNG(data, level, size)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// EmergencyAccess handles GET /emergency/{segment}. Unreadable or tampered
// payloads never produce a 5xx: the outcome is ShowSummary (200) or
// ShowUnavailable (404).
func (h *Handlers) EmergencyAccess(w http.ResponseWriter, r *http.Request) {
	outcome := h.access.Access(r.Context(), AccessRequest{
		Segment:    mux.Vars(r)["segment"],
		WalletHint: r.URL.Query().Get("w"),
		RemoteAddr: r.RemoteAddr,
	})

	w.Header().Set("Cache-Control", "no-store")
	status := http.StatusOK
	if outcome.State != types.AccessShowSummary {
		status = http.StatusNotFound
	}
	writeJSON(w, status, outcome)
}

// RecentScans handles GET /api/v1/audit/scans. Patients only see scans of
// their own wallet.
func (h *Handlers) RecentScans(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, types.NewAuthenticationError(types.ErrCodeUnauthorized, "bearer token required"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "limit must be between 1 and 500", nil))
			return
		}
		limit = parsed
	}

	var (
		events []*types.ScanEvent
		err    error
	)
	if claims.Role == RoleAdmin {
		events, err = h.scans.Recent(limit)
	} else {
		events, err = h.scans.RecentForWallet(claims.WalletAddress, limit)
	}
	if err != nil {
		writeError(w, types.NewInternalError(types.ErrCodeInternalError, "failed to read scan events", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (h *Handlers) levelParam(r *http.Request) (types.ErrorCorrectionLevel, bool) {
	raw := r.URL.Query().Get("level")
	if raw == "" {
		return h.service.defaultLevel, true
	}
	return types.ParseECLevel(raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorStatus(w, statusFor(err), err)
}

func writeErrorStatus(w http.ResponseWriter, status int, err error) {
	var zerr *types.ZeroNetError
	if !errors.As(err, &zerr) {
		zerr = types.NewInternalError(types.ErrCodeInternalError, "internal error", err)
	}
	writeJSON(w, status, map[string]interface{}{"error": zerr})
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	var zerr *types.ZeroNetError
	if !errors.As(err, &zerr) {
		return http.StatusInternalServerError
	}

	switch zerr.Code {
	case types.ErrCodeTooLarge:
		return http.StatusUnprocessableEntity
	case types.ErrCodeNotFound:
		return http.StatusNotFound
	case types.ErrCodeNetworkUnavailable:
		return http.StatusServiceUnavailable
	}

	switch zerr.Type {
	case types.ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case types.ErrorTypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
