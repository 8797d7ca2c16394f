package codec

// Codec encodes/decodes values V to []byte for storage. The wire framing
// uses a Codec[http.Header] for the header block of a cached entry; CBOR is
// the default.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
