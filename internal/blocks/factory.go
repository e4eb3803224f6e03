// Package blocks builds the typed output blocks of an envelope.
//
// Deterministic variants (graph_patch, fact, review_card, brief) are
// identified by "blk_<type>_" plus the first 16 hex characters of the
// SHA-256 of their canonical hash subset, so identical content always gets the
// same id. Ephemeral variants (commentary, framing) get a random id on every
// call.
package blocks

import (
	"fmt"
	"strings"
	"time"

	"conductor/internal/types"

	"github.com/google/uuid"
)

const idHexLen = 16

// Factory creates blocks. The zero value is not usable; call NewFactory.
type Factory struct {
	now    func() time.Time
	random func() string
}

// Option configures a Factory.
type Option func(*Factory)

// WithClock overrides the provenance timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) { f.now = now }
}

// WithRandom overrides the random component of ephemeral ids.
func WithRandom(random func() string) Option {
	return func(f *Factory) { f.random = random }
}

// NewFactory returns a Factory using wall-clock time and UUIDv4 randomness.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		now: func() time.Time { return time.Now().UTC() },
		random: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:idHexLen]
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GraphPatch builds a graph_patch block. Summary, status and applied graph
// do not affect the id.
func (f *Factory) GraphPatch(data types.GraphPatchData, turnID string) (types.Block, error) {
	return f.deterministic(data, turnID)
}

// Fact builds a fact block.
func (f *Factory) Fact(data types.FactData, turnID string) (types.Block, error) {
	return f.deterministic(data, turnID)
}

// ReviewCard builds a review_card block.
func (f *Factory) ReviewCard(data types.ReviewCardData, turnID string) (types.Block, error) {
	return f.deterministic(data, turnID)
}

// Brief builds a brief block.
func (f *Factory) Brief(data types.BriefData, turnID string) (types.Block, error) {
	return f.deterministic(data, turnID)
}

// Commentary builds a commentary block with a fresh random id.
func (f *Factory) Commentary(text, turnID string) types.Block {
	return f.ephemeral(types.CommentaryData{Text: text}, turnID)
}

// Framing builds a framing block with a fresh random id.
func (f *Factory) Framing(data types.FramingData, turnID string) types.Block {
	return f.ephemeral(data, turnID)
}

// DeterministicID computes the id a deterministic payload would receive.
func DeterministicID(data types.BlockData) (string, error) {
	if !data.Type().Deterministic() {
		return "", fmt.Errorf("block type %s has no content-derived id", data.Type())
	}
	sum, err := ContentHash(data.HashSubset())
	if err != nil {
		return "", fmt.Errorf("hash %s block: %w", data.Type(), err)
	}
	return "blk_" + string(data.Type()) + "_" + sum[:idHexLen], nil
}

func (f *Factory) deterministic(data types.BlockData, turnID string) (types.Block, error) {
	id, err := DeterministicID(data)
	if err != nil {
		return types.Block{}, err
	}
	return types.Block{
		BlockID:    id,
		BlockType:  data.Type(),
		Data:       data,
		Provenance: f.provenance(turnID),
	}, nil
}

func (f *Factory) ephemeral(data types.BlockData, turnID string) types.Block {
	return types.Block{
		BlockID:    "blk_" + string(data.Type()) + "_" + f.random(),
		BlockType:  data.Type(),
		Data:       data,
		Provenance: f.provenance(turnID),
	}
}

func (f *Factory) provenance(turnID string) types.Provenance {
	return types.Provenance{TurnID: turnID, Timestamp: f.now()}
}
