package zeronet

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/medrex/zeronet/pkg/types"
)

// Encoder serializes summaries into the compact Version1 byte form
type Encoder struct {
	key         []byte
	maxRawBytes int
}

// NewEncoder creates an encoder from codec options
func NewEncoder(opts Options) *Encoder {
	return &Encoder{
		key:         normalizeKey(opts.IntegrityKey),
		maxRawBytes: opts.MaxRawBytes,
	}
}

// Encode serializes s. It is deterministic for identical input and fails with
// TOO_LARGE rather than dropping anything when the budget is exceeded.
func (e *Encoder) Encode(s *types.EmergencySummary) ([]byte, error) {
	if s == nil {
		return nil, types.NewEncodeError(types.ErrCodeInvalidInput, "summary is required", nil)
	}
	if s.WalletAddress == (common.Address{}) {
		return nil, types.NewEncodeError(types.ErrCodeMissingWallet, "summary has no wallet address", nil)
	}
	if s.IssuedAt < 0 || s.IssuedAt > math.MaxUint32 {
		return nil, types.NewEncodeError(types.ErrCodeInvalidInput, "issuedAt does not fit in 32 bits",
			map[string]interface{}{"issued_at": s.IssuedAt})
	}

	if err := checkEncodable(s); err != nil {
		return nil, err
	}

	block := e.fieldBlock(s)

	out := make([]byte, headerLength, headerLength+len(block))
	out[0] = Version1
	issuedAt := uint32(s.IssuedAt)
	binary.BigEndian.PutUint32(out[1:5], issuedAt)
	copy(out[5:headerLength], integrityTag(e.key, Version1, issuedAt, block))
	out = append(out, block...)

	if e.maxRawBytes > 0 && len(out) > e.maxRawBytes {
		return nil, types.NewEncodeError(types.ErrCodeTooLarge, "emergency data too large, simplify your medical info",
			map[string]interface{}{"size": len(out), "budget": e.maxRawBytes})
	}

	return out, nil
}

// checkEncodable rejects values the wire form cannot carry back unchanged:
// an unset or unrecognized blood group and empty list entries.
func checkEncodable(s *types.EmergencySummary) error {
	if !s.BloodGroup.Valid() {
		return types.NewEncodeError(types.ErrCodeInvalidInput, "summary has no recognized blood group",
			map[string]interface{}{"blood_group": string(s.BloodGroup)})
	}
	lists := []struct {
		field   string
		entries []string
	}{
		{"allergies", s.Allergies},
		{"chronicConditions", s.ChronicConditions},
		{"currentMedications", s.CurrentMedications},
	}
	for _, l := range lists {
		for i, v := range l.entries {
			if v == "" {
				return types.NewEncodeError(types.ErrCodeInvalidInput, "list entries must not be empty",
					map[string]interface{}{"field": l.field, "index": i})
			}
		}
	}
	return nil
}

func (e *Encoder) fieldBlock(s *types.EmergencySummary) []byte {
	var b []byte
	b = appendField(b, fieldWallet, s.WalletAddress.Bytes())
	b = appendString(b, fieldName, s.Name)
	if code := s.BloodGroup.Code(); code != 0 {
		b = appendField(b, fieldBloodGroup, []byte{code})
	}
	for _, v := range s.Allergies {
		b = appendString(b, fieldAllergy, v)
	}
	for _, v := range s.ChronicConditions {
		b = appendString(b, fieldCondition, v)
	}
	for _, v := range s.CurrentMedications {
		b = appendString(b, fieldMedication, v)
	}
	b = appendString(b, fieldContactName, s.EmergencyContact.Name)
	b = appendString(b, fieldContactPhone, s.EmergencyContact.Phone)
	return b
}

func appendString(b []byte, tag byte, v string) []byte {
	if v == "" {
		return b
	}
	return appendField(b, tag, []byte(v))
}

func appendField(b []byte, tag byte, v []byte) []byte {
	b = append(b, tag)
	b = binary.AppendUvarint(b, uint64(len(v)))
	return append(b, v...)
}
