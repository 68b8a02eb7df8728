package computetest

// Source declares both registered kernels with the two-buffer signature.
const Source = `
__kernel void ToGrayscale(__global const uchar4 *input, __global uchar4 *output) {
    const size_t i = get_global_id(0);
    output[i] = input[i];
}

__kernel void Identity(__global const uchar *input, __global uchar *output) {
    const size_t i = get_global_id(0);
    output[i] = input[i];
}
`

// GrayscaleKernel applies the luma transform of kernels/grayscale.cl in
// float64, matching imaging.Grayscale exactly.
func GrayscaleKernel(gid int, in, out []byte) {
	o := gid * 4
	if o+4 > len(in) || o+4 > len(out) {
		return
	}
	gray := byte(float64(float64(in[o])*0.2126) + float64(float64(in[o+1])*0.7152) + float64(float64(in[o+2])*0.0722))
	out[o] = gray
	out[o+1] = gray
	out[o+2] = gray
	out[o+3] = in[o+3]
}

// IdentityKernel copies one 4-byte pixel.
func IdentityKernel(gid int, in, out []byte) {
	o := gid * 4
	if o+4 > len(in) || o+4 > len(out) {
		return
	}
	copy(out[o:o+4], in[o:o+4])
}
