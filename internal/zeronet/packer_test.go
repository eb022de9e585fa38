package zeronet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/zeronet/pkg/types"
)

func TestPacker_RoundTrip(t *testing.T) {
	p := NewPacker(DefaultOptions())
	data := []byte{0x01, 0xfb, 0xff, 0x00, 0x3e}

	packed := p.Pack(data)
	assert.NotContains(t, packed, "=")
	assert.NotContains(t, packed, "+")
	assert.NotContains(t, packed, "/")

	out, err := p.Unpack(packed)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestPacker_UnpackRejects(t *testing.T) {
	p := NewPacker(DefaultOptions())

	tests := map[string]string{
		"empty":             "",
		"padding":           "AQID=",
		"standard alphabet": "a+b/",
		"inner whitespace":  "AQ ID",
		"bad length":        "A",
		"non ascii":         "AQIDé",
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.Unpack(input)
			require.Error(t, err)

			var zerr *types.ZeroNetError
			require.ErrorAs(t, err, &zerr)
			assert.Equal(t, types.ErrorTypePack, zerr.Type)
			assert.Equal(t, types.ErrCodeInvalidEncoding, zerr.Code)
		})
	}
}

func TestPacker_EstimateQRCapacity(t *testing.T) {
	p := NewPacker(DefaultOptions())
	assert.Equal(t, 25, p.MaxVersion())
	assert.Equal(t, 535, p.EstimateQRCapacity(types.ECLevelH))
	assert.Equal(t, 1273, p.EstimateQRCapacity(types.ECLevelL))
	assert.Equal(t, 0, p.EstimateQRCapacity(types.ErrorCorrectionLevel("X")))

	mid := NewPacker(Options{QRMaxVersion: 12})
	assert.Equal(t, 12, mid.MaxVersion())
	assert.Equal(t, 155, mid.EstimateQRCapacity(types.ECLevelH))

	huge := NewPacker(Options{QRMaxVersion: 60})
	assert.Equal(t, 40, huge.MaxVersion())
	assert.Equal(t, 2953, huge.EstimateQRCapacity(types.ECLevelL))

	unset := NewPacker(Options{})
	assert.Equal(t, 0, unset.MaxVersion())
	assert.Equal(t, 0, unset.EstimateQRCapacity(types.ECLevelL))
}

func TestPacker_EstimateQRCapacity_SmallSymbols(t *testing.T) {
	tests := []struct {
		version int
		h, l    int
	}{
		{1, 7, 17},
		{5, 44, 106},
		{9, 98, 230},
		{10, 119, 271},
	}

	for _, tt := range tests {
		p := NewPacker(Options{QRMaxVersion: tt.version})
		assert.Equal(t, tt.version, p.MaxVersion())
		assert.Equal(t, tt.h, p.EstimateQRCapacity(types.ECLevelH), "version %d level H", tt.version)
		assert.Equal(t, tt.l, p.EstimateQRCapacity(types.ECLevelL), "version %d level L", tt.version)
	}
}

func TestURLs(t *testing.T) {
	u := BuildURL("https://care.example.org/", "AQID", testWallet)
	assert.Equal(t, "https://care.example.org/emergency/AQID?w="+testWallet, u)

	segment, hint, err := ParseURL(u)
	require.NoError(t, err)
	assert.Equal(t, "AQID", segment)
	assert.Equal(t, testWallet, hint)

	legacy := LegacyURL("https://care.example.org", testWallet)
	segment, hint, err = ParseURL(legacy)
	require.NoError(t, err)
	assert.Equal(t, testWallet, segment)
	assert.Empty(t, hint)

	segment, _, err = ParseURL("AQID")
	require.NoError(t, err)
	assert.Equal(t, "AQID", segment)

	_, _, err = ParseURL("https://care.example.org/patient/1")
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidEncoding))
}
