package images

import (
	"fmt"
	"image"

	"github.com/bbrks/go-blurhash"
	"golang.org/x/image/draw"
)

// placeholderEdge bounds the thumbnail a signature placeholder is encoded from.
const placeholderEdge = 64

// placeholderHash encodes a 4x3 BlurHash of the signature.
func placeholderHash(img image.Image) (string, error) {
	hash, err := blurhash.Encode(4, 3, thumbnail(img, placeholderEdge))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// thumbnail fits img inside an edge by edge box, keeping the aspect ratio.
// Images that already fit are returned as is.
func thumbnail(img image.Image, edge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if longest <= edge {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, max(w*edge/longest, 1), max(h*edge/longest, 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
