package zeronet

import (
	"github.com/medrex/zeronet/pkg/types"
)

// Codec bundles the encoder, packer and decoder that share one set of options
type Codec struct {
	Encoder *Encoder
	Decoder *Decoder
	Packer  *Packer
}

// NewCodec creates a codec
func NewCodec(opts Options) *Codec {
	return &Codec{
		Encoder: NewEncoder(opts),
		Decoder: NewDecoder(opts),
		Packer:  NewPacker(opts),
	}
}

// EncodeToText encodes and packs s, returning the packed text and raw size
func (c *Codec) EncodeToText(s *types.EmergencySummary) (string, int, error) {
	raw, err := c.Encoder.Encode(s)
	if err != nil {
		return "", 0, err
	}
	packed := c.Packer.Pack(raw)
	if !c.Packer.FitsPacked(packed) {
		return "", len(raw), types.NewEncodeError(types.ErrCodeTooLarge, "emergency data too large, simplify your medical info",
			map[string]interface{}{"packed_size": len(packed)})
	}
	return packed, len(raw), nil
}

// DecodeText unpacks and decodes packed text
func (c *Codec) DecodeText(packed string) (*Result, error) {
	raw, err := c.Packer.Unpack(packed)
	if err != nil {
		return nil, err
	}
	return c.Decoder.Decode(raw)
}
