package emergency

import (
	qrcode "github.com/skip2/go-qrcode"

	"github.com/medrex/zeronet/pkg/types"
)

const (
	defaultRenderSize = 256
	minRenderSize     = 128
	maxRenderSize     = 1024
)

var recoveryLevels = map[types.ErrorCorrectionLevel]qrcode.RecoveryLevel{
	types.ECLevelL: qrcode.Low,
	types.ECLevelM: qrcode.Medium,
	types.ECLevelQ: qrcode.High,
	types.ECLevelH: qrcode.Highest,
}

// RenderPNG draws content as a size x size PNG QR code at level
func RenderPNG(content string, level types.ErrorCorrectionLevel, size int) ([]byte, error) {
	if size == 0 {
		size = defaultRenderSize
	}
	if size < minRenderSize || size > maxRenderSize {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "size out of range",
			map[string]interface{}{"min": minRenderSize, "max": maxRenderSize})
	}

	recovery, ok := recoveryLevels[level]
	if !ok {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "unknown error correction level",
			map[string]interface{}{"level": level})
	}

	png, err := qrcode.Encode(content, recovery, size)
	if err != nil {
		return nil, types.NewEncodeError(types.ErrCodeTooLarge, "content does not fit in a QR code",
			map[string]interface{}{"size": len(content)})
	}
	return png, nil
}
