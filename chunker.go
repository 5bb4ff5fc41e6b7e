package docquiz

import "strings"

// ChunkOptions controls chunk boundaries. The zero value is replaced by
// DefaultChunkOptions.
type ChunkOptions struct {
	MinLength int `json:"min_length"`
	MaxLength int `json:"max_length"`
	Overlap   int `json:"overlap"`
}

// DefaultChunkOptions returns the standard window sizes.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{MinLength: 800, MaxLength: 1200, Overlap: 200}
}

func (o ChunkOptions) validate() error {
	if o.MaxLength <= 0 {
		return Validationf("chunk max_length must be > 0")
	}
	if o.MinLength < 0 || o.MinLength > o.MaxLength {
		return Validationf("chunk min_length must be in [0, max_length]")
	}
	if o.Overlap < 0 || o.Overlap >= o.MaxLength {
		return Validationf("chunk overlap must be >= 0 and < max_length")
	}
	return nil
}

// ChunkPages splits per-page text into bounded, overlapping chunks.
// Pure and deterministic: identical input always yields identical
// boundaries. Empty or whitespace-only pages yield zero chunks.
func ChunkPages(pages []Page, opts ChunkOptions) ([]Chunk, error) {
	if opts == (ChunkOptions{}) {
		opts = DefaultChunkOptions()
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, page := range pages {
		for _, content := range chunkText(page.Text, opts) {
			chunks = append(chunks, Chunk{Page: page.Page, Content: content})
		}
	}
	return chunks, nil
}

// chunkText slides a window over one page's normalized text. Each chunk
// ends at min(start+max, len), backed off to the last space at or after
// start+min so words are not split; if no such space exists the hard
// cutoff stands. The next chunk starts at end-overlap.
func chunkText(text string, opts ChunkOptions) []string {
	normalized := normalizeWhitespace(text)
	if normalized == "" {
		return nil
	}
	if len(normalized) <= opts.MaxLength {
		return []string{normalized}
	}

	var out []string
	start := 0
	for {
		end := start + opts.MaxLength
		if end >= len(normalized) {
			out = append(out, normalized[start:])
			break
		}

		// Back off to a word boundary, but never below start+min.
		cut := end
		floor := start + opts.MinLength
		if idx := strings.LastIndexByte(normalized[floor:end], ' '); idx >= 0 {
			cut = floor + idx
		}

		out = append(out, normalized[start:cut])
		next := cut - opts.Overlap
		if next < 0 {
			next = 0
		}
		// A cut at the floor with a large overlap could stall; always
		// move forward.
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}

// normalizeWhitespace collapses every whitespace run to a single space
// and trims the ends.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
