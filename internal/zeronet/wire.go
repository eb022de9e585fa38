// Package zeronet implements the offline emergency payload carried inside a
// QR code.
//
// Wire format, version 1:
//
//	version(1) || issuedAt(4, big-endian uint32) || tag(8) || fieldBlock
//
// fieldBlock is a sparse sequence of fieldTag(1) || uvarint(len) || value
// entries. Empty fields are omitted. tag is the first TagLength bytes of
// BLAKE2b-256(version || issuedAt || fieldBlock), keyed when an integrity key
// is configured.
package zeronet

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/medrex/zeronet/pkg/config"
)

const (
	// Version1 is the only wire version this package emits
	Version1 byte = 0x01

	// TagLength is the integrity tag size for Version1
	TagLength = 8

	headerLength = 1 + 4 + TagLength
)

// Field tags in the sparse field block
const (
	fieldWallet       byte = 0x01
	fieldName         byte = 0x02
	fieldBloodGroup   byte = 0x03
	fieldAllergy      byte = 0x04
	fieldCondition    byte = 0x05
	fieldMedication   byte = 0x06
	fieldContactName  byte = 0x07
	fieldContactPhone byte = 0x08
)

const walletAddressBytes = 20

// Options configures encoder, decoder and packer
type Options struct {
	IntegrityKey   []byte
	MaxRawBytes    int
	MaxPackedBytes int
	MaxAge         time.Duration
	ClockSkew      time.Duration
	StrictExpiry   bool
	QRMaxVersion   int
}

// DefaultOptions matches the defaults in pkg/config
func DefaultOptions() Options {
	return Options{
		MaxRawBytes:    300,
		MaxPackedBytes: 400,
		MaxAge:         90 * 24 * time.Hour,
		ClockSkew:      5 * time.Minute,
		QRMaxVersion:   25,
	}
}

// OptionsFromConfig maps the codec section of the service config
func OptionsFromConfig(cfg config.CodecConfig) Options {
	return Options{
		IntegrityKey:   normalizeKey([]byte(cfg.IntegrityKey)),
		MaxRawBytes:    cfg.MaxRawBytes,
		MaxPackedBytes: cfg.MaxPackedBytes,
		MaxAge:         cfg.MaxAge(),
		ClockSkew:      cfg.ClockSkew(),
		StrictExpiry:   cfg.StrictExpiry,
		QRMaxVersion:   cfg.QRMaxVersion,
	}
}

// normalizeKey folds keys longer than BLAKE2b accepts into 32 bytes
func normalizeKey(key []byte) []byte {
	if len(key) == 0 {
		return nil
	}
	if len(key) > blake2b.Size {
		sum := blake2b.Sum256(key)
		return sum[:]
	}
	return key
}

// integrityTag computes the truncated tag over version, issuedAt and block
func integrityTag(key []byte, version byte, issuedAt uint32, block []byte) []byte {
	h, err := blake2b.New256(normalizeKey(key))
	if err != nil {
		// unreachable: normalizeKey bounds the key length
		panic(err)
	}
	var hdr [5]byte
	hdr[0] = version
	binary.BigEndian.PutUint32(hdr[1:], issuedAt)
	h.Write(hdr[:])
	h.Write(block)
	return h.Sum(nil)[:TagLength]
}
