package codec

// Bytes is the identity codec for []byte values: Encode/Decode return the
// input unchanged. It is the default body codec for cached entries; wrap it
// with Limit to cap entry size on read.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }
