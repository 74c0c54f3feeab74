package domain

// Encryption describes how a track's payload is protected. The concrete
// variants are BlockCipherCBC, StreamCipherCTR and Plaintext.
type Encryption interface {
	encryption()
	Kind() string
}

// BlockCipherCBC keys are derived from Seed by the codec.
type BlockCipherCBC struct {
	Seed string
}

// StreamCipherCTR carries the key and nonce supplied by resolution.
type StreamCipherCTR struct {
	Key   []byte
	Nonce []byte
}

// Plaintext sources are written as received.
type Plaintext struct{}

func (BlockCipherCBC) encryption()  {}
func (StreamCipherCTR) encryption() {}
func (Plaintext) encryption()       {}

func (BlockCipherCBC) Kind() string  { return "cbc" }
func (StreamCipherCTR) Kind() string { return "ctr" }
func (Plaintext) Kind() string       { return "none" }

// Resolution is a playable source for one track at one tier.
type Resolution struct {
	URL        string
	Encryption Encryption
	// Err is set when neither the batch nor the single path produced a source.
	Err error
}
