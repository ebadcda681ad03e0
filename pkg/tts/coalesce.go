package tts

import "iter"

// Coalesce re-chunks an audio stream so every yielded slice except the last
// holds at least minSize bytes. Vendors deliver whatever their transport
// framing produces; tiny frames waste wire messages and stall device
// playback buffers.
func Coalesce(src iter.Seq2[[]byte, error], minSize int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		var buf []byte
		for chunk, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			buf = append(buf, chunk...)
			for len(buf) >= minSize {
				out := make([]byte, minSize)
				copy(out, buf[:minSize])
				buf = buf[minSize:]
				if !yield(out, nil) {
					return
				}
			}
		}
		if len(buf) > 0 {
			yield(buf, nil)
		}
	}
}
