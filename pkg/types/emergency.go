package types

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BloodGroup represents an ABO/Rh blood group
type BloodGroup string

const (
	BloodGroupAPos    BloodGroup = "A+"
	BloodGroupANeg    BloodGroup = "A-"
	BloodGroupBPos    BloodGroup = "B+"
	BloodGroupBNeg    BloodGroup = "B-"
	BloodGroupABPos   BloodGroup = "AB+"
	BloodGroupABNeg   BloodGroup = "AB-"
	BloodGroupOPos    BloodGroup = "O+"
	BloodGroupONeg    BloodGroup = "O-"
	BloodGroupUnknown BloodGroup = "unknown"
)

// bloodGroupCodes is the single-byte wire form; 0 is reserved for unknown
var bloodGroupCodes = map[BloodGroup]byte{
	BloodGroupUnknown: 0,
	BloodGroupAPos:    1,
	BloodGroupANeg:    2,
	BloodGroupBPos:    3,
	BloodGroupBNeg:    4,
	BloodGroupABPos:   5,
	BloodGroupABNeg:   6,
	BloodGroupOPos:    7,
	BloodGroupONeg:    8,
}

// ParseBloodGroup normalizes free-text input such as " ab+ " or "O negative".
// Empty input maps to BloodGroupUnknown.
func ParseBloodGroup(s string) (BloodGroup, bool) {
	v := strings.ToUpper(strings.Join(strings.Fields(s), ""))
	v = strings.NewReplacer("POSITIVE", "+", "POS", "+", "NEGATIVE", "-", "NEG", "-").Replace(v)
	if v == "" || v == "UNKNOWN" {
		return BloodGroupUnknown, true
	}
	bg := BloodGroup(v)
	if _, ok := bloodGroupCodes[bg]; !ok {
		return BloodGroupUnknown, false
	}
	return bg, true
}

// Valid reports whether b is one of the known groups or unknown. The zero
// value is not valid.
func (b BloodGroup) Valid() bool {
	_, ok := bloodGroupCodes[b]
	return ok
}

// Code returns the wire byte for the blood group
func (b BloodGroup) Code() byte {
	return bloodGroupCodes[b]
}

// BloodGroupFromCode maps a wire byte back to a blood group
func BloodGroupFromCode(c byte) (BloodGroup, bool) {
	for bg, code := range bloodGroupCodes {
		if code == c {
			return bg, true
		}
	}
	return BloodGroupUnknown, false
}

// EmergencyContact is the person a responder should call
type EmergencyContact struct {
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone" yaml:"phone"`
}

// EmergencySummary is the minimal medical dataset a first responder needs.
// List fields are never nil; an absent list is an empty slice.
type EmergencySummary struct {
	Name               string           `json:"name" yaml:"name"`
	BloodGroup         BloodGroup       `json:"bloodGroup" yaml:"bloodGroup"`
	Allergies          []string         `json:"allergies" yaml:"allergies"`
	ChronicConditions  []string         `json:"chronicConditions" yaml:"chronicConditions"`
	CurrentMedications []string         `json:"currentMedications" yaml:"currentMedications"`
	EmergencyContact   EmergencyContact `json:"emergencyContact" yaml:"emergencyContact"`
	WalletAddress      common.Address   `json:"walletAddress" yaml:"walletAddress"`
	IssuedAt           int64            `json:"issuedAt" yaml:"issuedAt"`
}

// PatientProfile is the profile object served by the patient profile API.
// List fields are comma separated free text.
type PatientProfile struct {
	FullName           string `json:"fullName" yaml:"fullName" db:"full_name"`
	BloodGroup         string `json:"bloodGroup" yaml:"bloodGroup" db:"blood_group"`
	Allergies          string `json:"allergies" yaml:"allergies" db:"allergies"`
	ChronicConditions  string `json:"chronicConditions" yaml:"chronicConditions" db:"chronic_conditions"`
	CurrentMedications string `json:"currentMedications" yaml:"currentMedications" db:"current_medications"`
	EmergencyName      string `json:"emergencyName" yaml:"emergencyName" db:"emergency_name"`
	EmergencyPhone     string `json:"emergencyPhone" yaml:"emergencyPhone" db:"emergency_phone"`
	WalletAddress      string `json:"walletAddress" yaml:"walletAddress" db:"wallet_address"`
}

// QRMode tells a caller how a generated QR code must be read
type QRMode string

const (
	QRModeZeroNet QRMode = "zero-net"
	QRModeLegacy  QRMode = "legacy"
)

// ErrorCorrectionLevel is a QR error correction level
type ErrorCorrectionLevel string

const (
	ECLevelL ErrorCorrectionLevel = "L"
	ECLevelM ErrorCorrectionLevel = "M"
	ECLevelQ ErrorCorrectionLevel = "Q"
	ECLevelH ErrorCorrectionLevel = "H"
)

// ParseECLevel parses a level letter, case-insensitively
func ParseECLevel(s string) (ErrorCorrectionLevel, bool) {
	switch ErrorCorrectionLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case ECLevelL:
		return ECLevelL, true
	case ECLevelM:
		return ECLevelM, true
	case ECLevelQ:
		return ECLevelQ, true
	case ECLevelH:
		return ECLevelH, true
	}
	return "", false
}

// QRCode is the result of a QR generation request
type QRCode struct {
	Mode        QRMode               `json:"mode" yaml:"mode"`
	URL         string               `json:"url" yaml:"url"`
	Payload     string               `json:"payload,omitempty" yaml:"payload,omitempty"`
	Level       ErrorCorrectionLevel `json:"level" yaml:"level"`
	RawBytes    int                  `json:"rawBytes" yaml:"rawBytes"`
	PackedBytes int                  `json:"packedBytes" yaml:"packedBytes"`
	Capacity    int                  `json:"capacity" yaml:"capacity"`
	Compacted   bool                 `json:"compacted" yaml:"compacted"`
	Warnings    []string             `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	IssuedAt    int64                `json:"issuedAt" yaml:"issuedAt"`
}

// AccessState is a state of the emergency access page
type AccessState string

const (
	AccessStart             AccessState = "start"
	AccessTryEmbeddedDecode AccessState = "try_embedded_decode"
	AccessTryLegacyResolve  AccessState = "try_legacy_resolve"
	AccessShowSummary       AccessState = "show_summary"
	AccessShowUnavailable   AccessState = "show_unavailable"
)

// AccessSource records where a shown summary came from
type AccessSource string

const (
	SourceEmbedded AccessSource = "embedded"
	SourceLegacy   AccessSource = "legacy"
)

// AccessOutcome is the terminal result of an emergency access attempt
type AccessOutcome struct {
	State         AccessState       `json:"state"`
	Source        AccessSource      `json:"source,omitempty"`
	Summary       *EmergencySummary `json:"summary,omitempty"`
	Stale         bool              `json:"stale"`
	EmbeddedError string            `json:"embeddedError,omitempty"`
	ResolveError  string            `json:"resolveError,omitempty"`
	Trace         []AccessState     `json:"trace"`
}

// ScanEvent is an audit record of one emergency access attempt
type ScanEvent struct {
	ID            string       `json:"id"`
	State         AccessState  `json:"state"`
	Source        AccessSource `json:"source,omitempty"`
	ErrorCode     string       `json:"errorCode,omitempty"`
	Tampered      bool         `json:"tampered"`
	WalletAddress string       `json:"walletAddress,omitempty"`
	Stale         bool         `json:"stale"`
	RemoteAddr    string       `json:"remoteAddr,omitempty"`
	ScannedAt     time.Time    `json:"scannedAt"`
}
