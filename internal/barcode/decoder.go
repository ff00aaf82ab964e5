package barcode

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Decoder reads one symbol from a frame, or returns ErrNotFound.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// ZXingDecoder tries EAN-13, UPC-A, Code 128 and QR in that order.
type ZXingDecoder struct {
	readers []gozxing.Reader
}

// NewZXingDecoder returns a decoder for the grocery symbologies.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{readers: []gozxing.Reader{
		oned.NewEAN13Reader(),
		oned.NewUPCAReader(),
		oned.NewCode128Reader(),
		qrcode.NewQRCodeReader(),
	}}
}

// Decode implements Decoder.
func (d *ZXingDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("barcode: bitmap: %w", err)
	}
	for _, r := range d.readers {
		res, err := r.Decode(bmp, nil)
		if err == nil && res.GetText() != "" {
			return res.GetText(), nil
		}
		// NotFound, checksum and format errors all mean "try the next reader".
	}
	return "", ErrNotFound
}
