package kv

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	// CompressionThreshold is the minimum value size before compression is considered.
	CompressionThreshold = 2048

	// MaxValueSize is the maximum allowed uncompressed value size.
	MaxValueSize = 8 * 1024 * 1024

	// recordVersion is the current on-disk record layout.
	recordVersion = 1

	digestSize = 32
)

// contentEncoding identifies how a record's payload is stored.
type contentEncoding uint64

const (
	encIdentity contentEncoding = 0
	encZstd     contentEncoding = 1
)

// Record field numbers. Never reuse a number.
const (
	fieldVersion  protowire.Number = 1
	fieldEncoding protowire.Number = 2
	fieldDigest   protowire.Number = 3
	fieldSize     protowire.Number = 4
	fieldPayload  protowire.Number = 5
)

var (
	// ErrValueTooLarge is returned when a value exceeds MaxValueSize.
	ErrValueTooLarge = errors.New("value exceeds maximum size")

	// ErrCorrupted is returned when a stored record cannot be parsed or fails
	// digest verification.
	ErrCorrupted = errors.New("value digest mismatch")

	// ErrDecompressionBomb is returned when a record decompresses past MaxValueSize.
	ErrDecompressionBomb = errors.New("decompressed value exceeds maximum size")
)

// record is the stored envelope around a value.
type record struct {
	version  uint64
	encoding contentEncoding
	digest   []byte
	size     uint64
	payload  []byte
}

func (r record) marshal() []byte {
	b := make([]byte, 0, len(r.payload)+len(r.digest)+16)
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, r.version)
	b = protowire.AppendTag(b, fieldEncoding, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.encoding))
	b = protowire.AppendTag(b, fieldDigest, protowire.BytesType)
	b = protowire.AppendBytes(b, r.digest)
	b = protowire.AppendTag(b, fieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, r.size)
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, r.payload)
	return b
}

// parseRecord decodes an envelope. Unknown fields are skipped so newer
// writers stay readable.
func parseRecord(b []byte) (record, error) {
	var r record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return record{}, fmt.Errorf("%w: %v", ErrCorrupted, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			r.version, n = protowire.ConsumeVarint(b)
		case num == fieldEncoding && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			r.encoding = contentEncoding(v)
		case num == fieldSize && typ == protowire.VarintType:
			r.size, n = protowire.ConsumeVarint(b)
		case num == fieldDigest && typ == protowire.BytesType:
			r.digest, n = protowire.ConsumeBytes(b)
		case num == fieldPayload && typ == protowire.BytesType:
			r.payload, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return record{}, fmt.Errorf("%w: %v", ErrCorrupted, protowire.ParseError(n))
		}
		b = b[n:]
	}
	if len(r.digest) != digestSize {
		return record{}, fmt.Errorf("%w: digest is %d bytes", ErrCorrupted, len(r.digest))
	}
	return r, nil
}

// Codec wraps stored values in a protobuf-encoded envelope carrying the
// record version, payload encoding, blake3 digest and uncompressed size.
// Payloads over CompressionThreshold are zstd compressed when that saves space.
// Encoder and decoder are goroutine-safe and can be reused.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mu      sync.RWMutex
}

// NewCodec creates a codec with pooled zstd encoder/decoder.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxValueSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Codec{encoder: enc, decoder: dec}, nil
}

// Close releases encoder/decoder resources.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

// Encode wraps a value for storage.
func (c *Codec) Encode(value []byte) ([]byte, error) {
	if len(value) > MaxValueSize {
		return nil, ErrValueTooLarge
	}

	digest := blake3.Sum256(value)
	r := record{
		version:  recordVersion,
		encoding: encIdentity,
		digest:   digest[:],
		size:     uint64(len(value)),
		payload:  value,
	}

	if len(value) >= CompressionThreshold {
		c.mu.RLock()
		enc := c.encoder
		c.mu.RUnlock()
		if enc != nil {
			if compressed := enc.EncodeAll(value, nil); len(compressed) < len(value) {
				r.encoding = encZstd
				r.payload = compressed
			}
		}
	}

	return r.marshal(), nil
}

// Decode unwraps a stored record and verifies its size and digest.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	r, err := parseRecord(data)
	if err != nil {
		return nil, err
	}
	if r.version != recordVersion {
		return nil, fmt.Errorf("unsupported record version %d", r.version)
	}
	if r.size > MaxValueSize {
		return nil, ErrDecompressionBomb
	}

	var value []byte
	switch r.encoding {
	case encIdentity:
		value = make([]byte, len(r.payload))
		copy(value, r.payload)
	case encZstd:
		c.mu.RLock()
		dec := c.decoder
		c.mu.RUnlock()
		if dec == nil {
			return nil, errors.New("decoder not initialized")
		}
		out, err := dec.DecodeAll(r.payload, make([]byte, 0, r.size))
		if err != nil {
			if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
				return nil, ErrDecompressionBomb
			}
			return nil, fmt.Errorf("decompressing value: %w", err)
		}
		if len(out) > MaxValueSize {
			return nil, ErrDecompressionBomb
		}
		value = out
	default:
		return nil, fmt.Errorf("unsupported encoding %d", r.encoding)
	}

	if uint64(len(value)) != r.size {
		return nil, fmt.Errorf("%w: size %d, want %d", ErrCorrupted, len(value), r.size)
	}
	digest := blake3.Sum256(value)
	if !bytes.Equal(digest[:], r.digest) {
		return nil, ErrCorrupted
	}
	return value, nil
}
