package testutil

// Planar allocates a zeroed block of channels x frames.
func Planar(channels, frames int) [][]float64 {
	block := make([][]float64, channels)
	for c := range block {
		block[c] = make([]float64, frames)
	}

	return block
}

// Filled allocates a block where every sample equals v. It is handy for
// checking that a processor overwrites stale output.
func Filled(channels, frames int, v float64) [][]float64 {
	block := Planar(channels, frames)
	for _, ch := range block {
		for i := range ch {
			ch[i] = v
		}
	}

	return block
}

// Padded returns head followed by zeros up to length n.
func Padded(n int, head ...float64) []float64 {
	out := make([]float64, n)
	copy(out, head)

	return out
}
