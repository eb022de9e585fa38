package zeronet

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/medrex/zeronet/pkg/types"
)

// ParseWallet validates a 0x-prefixed, 40 hex digit wallet address
func ParseWallet(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, types.NewFieldError(types.ErrCodeMissingWallet, "wallet address is required")
	}
	if !has0xPrefix(s) || !common.IsHexAddress(s) {
		return common.Address{}, types.NewFieldError(types.ErrCodeInvalidWallet, "wallet address must be 0x followed by 40 hex digits").
			WithDetail("wallet_address", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, types.NewFieldError(types.ErrCodeInvalidWallet, "wallet address must not be the zero address")
	}
	return addr, nil
}

// IsWalletAddress reports whether s looks like a plain wallet address,
// which on the emergency route means a legacy link
func IsWalletAddress(s string) bool {
	return has0xPrefix(s) && common.IsHexAddress(s)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Build validates a patient profile and normalizes it into an EmergencySummary
// stamped with issuedAt.
func Build(profile *types.PatientProfile, issuedAt time.Time) (*types.EmergencySummary, error) {
	if profile == nil {
		return nil, types.NewFieldError(types.ErrCodeMissingWallet, "profile is required")
	}

	wallet, err := ParseWallet(profile.WalletAddress)
	if err != nil {
		return nil, err
	}

	bloodGroup, ok := types.ParseBloodGroup(profile.BloodGroup)
	if !ok {
		return nil, types.NewFieldError(types.ErrCodeInvalidBloodGroup, "unrecognized blood group").
			WithDetail("blood_group", profile.BloodGroup)
	}

	return &types.EmergencySummary{
		Name:               collapseSpaces(profile.FullName),
		BloodGroup:         bloodGroup,
		Allergies:          SplitList(profile.Allergies),
		ChronicConditions:  SplitList(profile.ChronicConditions),
		CurrentMedications: SplitList(profile.CurrentMedications),
		EmergencyContact: types.EmergencyContact{
			Name:  collapseSpaces(profile.EmergencyName),
			Phone: strings.Join(strings.Fields(profile.EmergencyPhone), ""),
		},
		WalletAddress: wallet,
		IssuedAt:      issuedAt.Unix(),
	}, nil
}

// SplitList turns comma separated free text into trimmed entries, dropping
// empties and case-insensitive duplicates. The result is never nil.
func SplitList(s string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' || r == ';' }) {
		entry := collapseSpaces(part)
		if entry == "" {
			continue
		}
		key := strings.ToLower(entry)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, entry)
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CompactLimits bounds free-text fields when a summary overflows the budget
type CompactLimits struct {
	NameRunes    int
	EntryRunes   int
	ContactRunes int
}

// DefaultCompactLimits is the single retry applied before giving up on Zero-Net
var DefaultCompactLimits = CompactLimits{NameRunes: 32, EntryRunes: 24, ContactRunes: 24}

// Compact returns a copy of s with optional free text truncated to limits.
// Wallet, blood group, phone and issuedAt are never modified.
func Compact(s *types.EmergencySummary, limits CompactLimits) *types.EmergencySummary {
	out := *s
	out.Name = truncateRunes(s.Name, limits.NameRunes)
	out.Allergies = truncateAll(s.Allergies, limits.EntryRunes)
	out.ChronicConditions = truncateAll(s.ChronicConditions, limits.EntryRunes)
	out.CurrentMedications = truncateAll(s.CurrentMedications, limits.EntryRunes)
	out.EmergencyContact.Name = truncateRunes(s.EmergencyContact.Name, limits.ContactRunes)
	return &out
}

func truncateAll(entries []string, n int) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = truncateRunes(e, n)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimSpace(s[:pos])
		}
		i++
	}
	return s
}
