package zeronet

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/medrex/zeronet/pkg/types"
)

// Smallest and largest QR symbol versions
const (
	MinQRVersion = 1
	MaxQRVersion = 40
)

// byteModeCapacity is the QR byte-mode capacity indexed by symbol version - 1,
// columns L, M, Q, H.
var byteModeCapacity = [MaxQRVersion][4]int{
	{17, 14, 11, 7},          // 1
	{32, 26, 20, 14},         // 2
	{53, 42, 32, 24},         // 3
	{78, 62, 46, 34},         // 4
	{106, 84, 60, 44},        // 5
	{134, 106, 74, 58},       // 6
	{154, 122, 86, 64},       // 7
	{192, 152, 108, 84},      // 8
	{230, 180, 130, 98},      // 9
	{271, 213, 151, 119},     // 10
	{321, 251, 177, 137},     // 11
	{367, 287, 203, 155},     // 12
	{425, 331, 241, 177},     // 13
	{458, 362, 258, 194},     // 14
	{520, 412, 292, 220},     // 15
	{586, 450, 322, 250},     // 16
	{644, 504, 364, 280},     // 17
	{718, 560, 394, 310},     // 18
	{792, 624, 442, 338},     // 19
	{858, 666, 482, 382},     // 20
	{929, 711, 509, 403},     // 21
	{1003, 779, 565, 439},    // 22
	{1091, 857, 611, 461},    // 23
	{1171, 911, 661, 511},    // 24
	{1273, 997, 715, 535},    // 25
	{1367, 1059, 751, 593},   // 26
	{1465, 1125, 805, 625},   // 27
	{1528, 1190, 868, 658},   // 28
	{1628, 1264, 908, 698},   // 29
	{1732, 1370, 982, 742},   // 30
	{1840, 1452, 1030, 790},  // 31
	{1952, 1538, 1112, 842},  // 32
	{2068, 1628, 1168, 898},  // 33
	{2188, 1722, 1228, 958},  // 34
	{2303, 1809, 1283, 983},  // 35
	{2431, 1911, 1351, 1051}, // 36
	{2563, 1989, 1423, 1093}, // 37
	{2699, 2099, 1499, 1139}, // 38
	{2809, 2213, 1579, 1219}, // 39
	{2953, 2331, 1663, 1273}, // 40
}

func levelColumn(level types.ErrorCorrectionLevel) int {
	switch level {
	case types.ECLevelL:
		return 0
	case types.ECLevelM:
		return 1
	case types.ECLevelQ:
		return 2
	case types.ECLevelH:
		return 3
	}
	return -1
}

// Packer turns payload bytes into URL-safe text and back
type Packer struct {
	maxPackedBytes int
	qrMaxVersion   int
}

// NewPacker creates a packer from codec options
func NewPacker(opts Options) *Packer {
	return &Packer{
		maxPackedBytes: opts.MaxPackedBytes,
		qrMaxVersion:   opts.QRMaxVersion,
	}
}

// Pack applies unpadded base64url
func (p *Packer) Pack(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Unpack reverses Pack. Padding, whitespace inside the text and characters
// outside the base64url alphabet are rejected.
func (p *Packer) Unpack(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, types.NewPackError(types.ErrCodeInvalidEncoding, "payload text is empty", nil)
	}
	if p.maxPackedBytes > 0 && len(s) > p.maxPackedBytes {
		return nil, types.NewPackError(types.ErrCodeInvalidEncoding, "payload text exceeds packed budget", nil).
			WithDetail("size", len(s))
	}
	if strings.ContainsAny(s, "\r\n\t =") {
		return nil, types.NewPackError(types.ErrCodeInvalidEncoding, "payload contains padding or whitespace", nil)
	}
	data, err := base64.RawURLEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, types.NewPackError(types.ErrCodeInvalidEncoding, "payload is not unpadded base64url", err)
	}
	return data, nil
}

// FitsPacked reports whether packed text is within the packed budget
func (p *Packer) FitsPacked(packed string) bool {
	return p.maxPackedBytes <= 0 || len(packed) <= p.maxPackedBytes
}

// MaxPacked returns the packed text budget
func (p *Packer) MaxPacked() int {
	return p.maxPackedBytes
}

// MaxVersion returns the largest QR symbol version considered scannable,
// clamped to 40. Zero means no version is allowed.
func (p *Packer) MaxVersion() int {
	switch {
	case p.qrMaxVersion < MinQRVersion:
		return 0
	case p.qrMaxVersion > MaxQRVersion:
		return MaxQRVersion
	}
	return p.qrMaxVersion
}

// EstimateQRCapacity returns how many bytes of URL text fit in a QR code at
// level without exceeding the configured maximum symbol version. Unknown
// levels and an unset maximum return 0 so callers fall back to legacy mode.
func (p *Packer) EstimateQRCapacity(level types.ErrorCorrectionLevel) int {
	version := p.MaxVersion()
	col := levelColumn(level)
	if version == 0 || col < 0 {
		return 0
	}
	return byteModeCapacity[version-1][col]
}

// BuildURL composes {origin}/emergency/{payload}, optionally carrying the
// wallet as a hint for the legacy fallback
func BuildURL(origin, payload, walletHint string) string {
	u := strings.TrimRight(origin, "/") + "/emergency/" + payload
	if walletHint != "" {
		u += "?w=" + url.QueryEscape(walletHint)
	}
	return u
}

// LegacyURL composes {origin}/emergency/{walletAddress}
func LegacyURL(origin, walletAddress string) string {
	return strings.TrimRight(origin, "/") + "/emergency/" + walletAddress
}

// ParseURL extracts the emergency path segment and wallet hint from scanned
// text. Bare segments without a URL are accepted as-is.
func ParseURL(raw string) (segment, walletHint string, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "/") {
		return raw, "", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", types.NewPackError(types.ErrCodeInvalidEncoding, "scanned text is not a URL", err)
	}

	path := strings.TrimRight(u.Path, "/")
	idx := strings.LastIndex(path, "/emergency/")
	if idx < 0 {
		return "", "", types.NewPackError(types.ErrCodeInvalidEncoding, "URL has no emergency segment", nil)
	}
	return path[idx+len("/emergency/"):], u.Query().Get("w"), nil
}
