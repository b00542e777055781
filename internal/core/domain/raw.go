package domain

// RawDocument is the unparsed content of a file before normalisation.
type RawDocument struct {
	// URI is the original location, usually an absolute file path.
	URI string

	// Content is the raw bytes.
	Content []byte
}
