package zeronet

import (
	"crypto/subtle"
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/medrex/zeronet/pkg/types"
)

// Result is a verified, decoded payload
type Result struct {
	Summary *types.EmergencySummary
	Version byte
	// Stale is set when the payload is older than the configured max age.
	// Stale data is still returned unless strict expiry is enabled.
	Stale bool
	Age   time.Duration
}

// Decoder reconstructs and verifies summaries from Version1 payloads
type Decoder struct {
	key          []byte
	maxAge       time.Duration
	clockSkew    time.Duration
	strictExpiry bool
	now          func() time.Time
}

// NewDecoder creates a decoder from codec options
func NewDecoder(opts Options) *Decoder {
	return &Decoder{
		key:          normalizeKey(opts.IntegrityKey),
		maxAge:       opts.MaxAge,
		clockSkew:    opts.ClockSkew,
		strictExpiry: opts.StrictExpiry,
		now:          time.Now,
	}
}

// WithClock overrides the time source
func (d *Decoder) WithClock(now func() time.Time) *Decoder {
	d.now = now
	return d
}

// Decode verifies and parses a payload. The version is checked before anything
// else so unknown versions are rejected without being parsed.
func (d *Decoder) Decode(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, types.NewDecodeError(types.ErrCodeMalformedPayload, "payload is empty")
	}

	version := data[0]
	if version != Version1 {
		return nil, types.NewDecodeError(types.ErrCodeUnsupportedVersion, "unsupported payload version").
			WithDetail("version", version)
	}

	if len(data) < headerLength {
		return nil, types.NewDecodeError(types.ErrCodeMalformedPayload, "payload shorter than header").
			WithDetail("size", len(data))
	}

	issuedAt := binary.BigEndian.Uint32(data[1:5])
	tag := data[5:headerLength]
	block := data[headerLength:]

	expected := integrityTag(d.key, version, issuedAt, block)
	if subtle.ConstantTimeCompare(tag, expected) != 1 {
		return nil, types.NewDecodeError(types.ErrCodeTamperDetected, "integrity tag mismatch")
	}

	now := d.now()
	issued := time.Unix(int64(issuedAt), 0)
	if issued.After(now.Add(d.clockSkew)) {
		return nil, types.NewDecodeError(types.ErrCodeFutureTimestamp, "payload issued in the future").
			WithDetail("issued_at", issuedAt)
	}

	age := now.Sub(issued)
	if age < 0 {
		age = 0
	}
	stale := d.maxAge > 0 && age > d.maxAge
	if stale && d.strictExpiry {
		return nil, types.NewDecodeError(types.ErrCodeExpired, "payload older than maximum age").
			WithDetail("age_seconds", int64(age.Seconds()))
	}

	summary, err := parseFieldBlock(block)
	if err != nil {
		return nil, err
	}
	summary.IssuedAt = int64(issuedAt)

	return &Result{Summary: summary, Version: version, Stale: stale, Age: age}, nil
}

func parseFieldBlock(block []byte) (*types.EmergencySummary, error) {
	s := &types.EmergencySummary{
		BloodGroup:         types.BloodGroupUnknown,
		Allergies:          []string{},
		ChronicConditions:  []string{},
		CurrentMedications: []string{},
	}
	hasWallet := false

	for len(block) > 0 {
		tag := block[0]
		length, n := binary.Uvarint(block[1:])
		if n <= 0 || length > uint64(len(block)-1-n) {
			return nil, types.NewDecodeError(types.ErrCodeMalformedPayload, "truncated field").
				WithDetail("field_tag", tag)
		}
		start := 1 + n
		value := block[start : start+int(length)]
		block = block[start+int(length):]

		switch tag {
		case fieldWallet:
			if len(value) != walletAddressBytes {
				return nil, types.NewDecodeError(types.ErrCodeMalformedPayload, "wallet field has wrong length")
			}
			s.WalletAddress = common.BytesToAddress(value)
			hasWallet = true
		case fieldName:
			s.Name = string(value)
		case fieldBloodGroup:
			bg, ok := types.BloodGroupFromCode(singleByte(value))
			if !ok || len(value) != 1 {
				return nil, types.NewDecodeError(types.ErrCodeMalformedPayload, "invalid blood group field")
			}
			s.BloodGroup = bg
		case fieldAllergy:
			s.Allergies = append(s.Allergies, string(value))
		case fieldCondition:
			s.ChronicConditions = append(s.ChronicConditions, string(value))
		case fieldMedication:
			s.CurrentMedications = append(s.CurrentMedications, string(value))
		case fieldContactName:
			s.EmergencyContact.Name = string(value)
		case fieldContactPhone:
			s.EmergencyContact.Phone = string(value)
		default:
			// authenticated but unknown: skip
		}
	}

	if !hasWallet {
		return nil, types.NewDecodeError(types.ErrCodeMalformedPayload, "payload has no wallet address")
	}
	return s, nil
}

func singleByte(v []byte) byte {
	if len(v) == 0 {
		return 0xff
	}
	return v[0]
}
