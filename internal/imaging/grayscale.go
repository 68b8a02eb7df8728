package imaging

// Luma coefficients (Rec. 709) shared with kernels/grayscale.cl.
const (
	lumaR = 0.2126
	lumaG = 0.7152
	lumaB = 0.0722
)

// Luma returns the truncated weighted sum of r, g and b. Each product is
// rounded to float64 before the sum so no platform fuses it into an FMA.
func Luma(r, g, b byte) byte {
	return byte(float64(float64(r)*lumaR) + float64(float64(g)*lumaG) + float64(float64(b)*lumaB))
}

// Grayscale is the CPU reference path: a nested loop over every pixel of src
// writing a tight buffer where R, G and B hold the luma and alpha is kept.
func Grayscale(src *PixelBuffer) *PixelBuffer {
	row := src.Width * BytesPerPixel
	pix := src.Tight()
	out := make([]byte, len(pix))

	for y := 0; y < src.Height; y++ {
		in := pix[y*row:]
		dst := out[y*row:]
		for x := 0; x < row; x += BytesPerPixel {
			gray := Luma(in[x], in[x+1], in[x+2])
			dst[x] = gray
			dst[x+1] = gray
			dst[x+2] = gray
			dst[x+3] = in[x+3]
		}
	}

	return FromTight(out, src.Width, src.Height)
}
