package types

import "time"

// =============================================================================
// BLOCKS
// =============================================================================
//
// A Block is a typed unit of structured output. Deterministic variants derive
// their id from a hash of HashSubset(); ephemeral variants get a random id.
// Each variant declares its hashed subset next to its definition.

// BlockType is the tag of the Block union.
type BlockType string

const (
	BlockGraphPatch BlockType = "graph_patch"
	BlockFact       BlockType = "fact"
	BlockCommentary BlockType = "commentary"
	BlockFraming    BlockType = "framing"
	BlockReviewCard BlockType = "review_card"
	BlockBrief      BlockType = "brief"
)

// Deterministic reports whether blocks of this type have content-derived ids.
func (t BlockType) Deterministic() bool {
	switch t {
	case BlockGraphPatch, BlockFact, BlockReviewCard, BlockBrief:
		return true
	}
	return false
}

// Block is one element of an Envelope's ordered block list.
type Block struct {
	BlockID    string     `json:"block_id"`
	BlockType  BlockType  `json:"block_type"`
	Data       BlockData  `json:"data"`
	Provenance Provenance `json:"provenance"`
}

// Provenance records which turn produced a block. It is never hashed.
type Provenance struct {
	TurnID    string    `json:"turn_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BlockData is the closed set of block payloads.
type BlockData interface {
	Type() BlockType
	// HashSubset returns the value whose canonical form identifies a
	// deterministic block. Ephemeral variants return nil.
	HashSubset() any
	isBlockData()
}

// PatchStatus is the presentational validation state of a graph patch.
type PatchStatus string

const (
	PatchProposed  PatchStatus = "proposed"
	PatchValidated PatchStatus = "validated"
	PatchRejected  PatchStatus = "rejected"
)

// GraphPatchData proposes an ordered list of graph operations.
// Summary, Status and AppliedGraph are presentational and excluded from the id.
type GraphPatchData struct {
	PatchType    string           `json:"patch_type"`
	Operations   []PatchOperation `json:"operations"`
	Summary      string           `json:"summary,omitempty"`
	Status       PatchStatus      `json:"status,omitempty"`
	AppliedGraph *GraphSnapshot   `json:"applied_graph,omitempty"`
}

func (GraphPatchData) Type() BlockType { return BlockGraphPatch }
func (GraphPatchData) isBlockData()    {}

func (d GraphPatchData) HashSubset() any {
	return struct {
		PatchType  string           `json:"patch_type"`
		Operations []PatchOperation `json:"operations"`
	}{d.PatchType, d.Operations}
}

// FactData carries quantitative claims, usually derived from an analysis run.
type FactData struct {
	FactType     string      `json:"fact_type"`
	Claims       []FactClaim `json:"claims"`
	ResponseHash string      `json:"response_hash,omitempty"`
}

// FactClaim is one measured value about a subject (option, factor, goal).
type FactClaim struct {
	Subject string  `json:"subject"`
	Label   string  `json:"label,omitempty"`
	Metric  string  `json:"metric"`
	Value   float64 `json:"value"`
}

func (FactData) Type() BlockType   { return BlockFact }
func (FactData) isBlockData()      {}
func (d FactData) HashSubset() any { return d }

// CommentaryData is transient narrative text.
type CommentaryData struct {
	Text string `json:"text"`
}

func (CommentaryData) Type() BlockType { return BlockCommentary }
func (CommentaryData) isBlockData()    {}
func (CommentaryData) HashSubset() any { return nil }

// FramingData moves the conversation to a new stage.
type FramingData struct {
	Stage Stage  `json:"stage"`
	Goal  string `json:"goal,omitempty"`
	Note  string `json:"note,omitempty"`
}

func (FramingData) Type() BlockType { return BlockFraming }
func (FramingData) isBlockData()    {}
func (FramingData) HashSubset() any { return nil }

// ReviewCardData lists findings the user should review.
type ReviewCardData struct {
	Title    string       `json:"title"`
	Severity string       `json:"severity"`
	Items    []ReviewItem `json:"items"`
	Source   string       `json:"source,omitempty"`
}

// ReviewItem is one finding on a review card.
type ReviewItem struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

func (ReviewCardData) Type() BlockType   { return BlockReviewCard }
func (ReviewCardData) isBlockData()      {}
func (d ReviewCardData) HashSubset() any { return d }

// BriefData is a decision brief assembled from a graph and its analysis.
type BriefData struct {
	Title          string         `json:"title"`
	Goal           string         `json:"goal,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
	Sections       []BriefSection `json:"sections"`
	ResponseHash   string         `json:"response_hash,omitempty"`
}

// BriefSection is one headed section of a brief.
type BriefSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

func (BriefData) Type() BlockType   { return BlockBrief }
func (BriefData) isBlockData()      {}
func (d BriefData) HashSubset() any { return d }
