// Package codec centralizes footer encoding and block compression for
// packed archives.
//
// Footers are JSON encoded with Default. The compression kind is recorded
// per archive.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default is the codec archive footers are written and read with.
var Default Codec = GoJSON{}
