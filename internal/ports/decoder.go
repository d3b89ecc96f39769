package ports

import (
	"context"
	"io"

	"github.com/ahrav/go-netimport/internal/domain"
)

// Decoder turns a serialized network descriptor into the decoder-neutral
// RawGraph consumed by the import engine. Decoders perform structural
// checks only; layer semantics are left to the adapters.
type Decoder interface {
	// Decode reads the whole descriptor from r. The context allows
	// cancellation of reads from slow sources.
	Decode(ctx context.Context, r io.Reader) (*domain.RawGraph, error)
}

// DecoderFunc lets an ordinary function serve as a Decoder.
type DecoderFunc func(ctx context.Context, r io.Reader) (*domain.RawGraph, error)

// Decode calls f(ctx, r).
func (f DecoderFunc) Decode(ctx context.Context, r io.Reader) (*domain.RawGraph, error) {
	return f(ctx, r)
}
