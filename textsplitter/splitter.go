package textsplitter

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/skosovsky/promptchain"
)

// Defaults match the usual RAG setup of 200-character chunks with 20 characters of overlap.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 20
)

// MetaChunk is the metadata key holding a chunk's index within its source document.
const MetaChunk = "chunk"

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// ErrInvalidConfig is returned by New for inconsistent sizes.
var ErrInvalidConfig = errors.New("textsplitter: invalid configuration")

// RecursiveCharacter splits text recursively by a list of separators. Immutable after New.
type RecursiveCharacter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
	counter      TokenCounter
}

// Option configures a RecursiveCharacter splitter.
type Option func(*RecursiveCharacter)

// WithChunkSize sets the maximum chunk length as measured by the counter.
func WithChunkSize(n int) Option {
	return func(s *RecursiveCharacter) { s.chunkSize = n }
}

// WithChunkOverlap sets how much of the previous chunk is repeated at the start of the next.
func WithChunkOverlap(n int) Option {
	return func(s *RecursiveCharacter) { s.chunkOverlap = n }
}

// WithSeparators replaces DefaultSeparators. Put "" last to allow character splits.
func WithSeparators(seps ...string) Option {
	return func(s *RecursiveCharacter) { s.separators = append([]string(nil), seps...) }
}

// WithTokenCounter measures lengths in tokens instead of runes.
func WithTokenCounter(c TokenCounter) Option {
	return func(s *RecursiveCharacter) {
		if c != nil {
			s.counter = c
		}
	}
}

// New creates a splitter. Fails when the chunk size is not positive or the overlap is
// negative or not smaller than the chunk size.
func New(opts ...Option) (*RecursiveCharacter, error) {
	s := &RecursiveCharacter{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		separators:   DefaultSeparators,
		counter:      RuneCounter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, s.chunkSize)
	}
	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("%w: overlap %d with chunk size %d", ErrInvalidConfig, s.chunkOverlap, s.chunkSize)
	}
	if len(s.separators) == 0 {
		return nil, fmt.Errorf("%w: no separators", ErrInvalidConfig)
	}
	return s, nil
}

// SplitText returns the chunks of text in order. Chunks are trimmed; empty ones are dropped.
func (s *RecursiveCharacter) SplitText(text string) ([]string, error) {
	return s.split(text, s.separators)
}

// SplitDocuments splits every document. Each chunk keeps a copy of its source metadata
// plus MetaChunk.
func (s *RecursiveCharacter) SplitDocuments(docs []promptchain.Document) ([]promptchain.Document, error) {
	var out []promptchain.Document
	for _, doc := range docs {
		chunks, err := s.SplitText(doc.PageContent)
		if err != nil {
			return nil, err
		}
		for i, c := range chunks {
			meta := maps.Clone(doc.Metadata)
			if meta == nil {
				meta = make(map[string]any, 1)
			}
			meta[MetaChunk] = i
			out = append(out, promptchain.Document{PageContent: c, Metadata: meta})
		}
	}
	return out, nil
}

func (s *RecursiveCharacter) length(text string) (int, error) {
	n, err := s.counter.Count(text)
	if err != nil {
		return 0, fmt.Errorf("textsplitter: count: %w", err)
	}
	return n, nil
}

func (s *RecursiveCharacter) split(text string, separators []string) ([]string, error) {
	sep, rest := pickSeparator(text, separators)
	var splits []string
	if sep == "" {
		splits = runes(text)
	} else {
		splits = strings.Split(text, sep)
	}
	var out, good []string
	for _, piece := range splits {
		if piece == "" {
			continue
		}
		n, err := s.length(piece)
		if err != nil {
			return nil, err
		}
		if n < s.chunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			merged, err := s.merge(good, sep)
			if err != nil {
				return nil, err
			}
			out = append(out, merged...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, piece)
			continue
		}
		sub, err := s.split(piece, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	if len(good) > 0 {
		merged, err := s.merge(good, sep)
		if err != nil {
			return nil, err
		}
		out = append(out, merged...)
	}
	return out, nil
}

// pickSeparator returns the first separator present in text (or "") and the finer ones after it.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return separators[len(separators)-1], nil
}

func runes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// merge joins small pieces into chunks of at most chunkSize, carrying up to chunkOverlap
// of trailing pieces into the next chunk.
func (s *RecursiveCharacter) merge(pieces []string, sep string) ([]string, error) {
	sepLen, err := s.length(sep)
	if err != nil {
		return nil, err
	}
	var (
		chunks  []string
		current []string
		lens    []int
		total   int
	)
	joinCost := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	emit := func() {
		if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	for _, p := range pieces {
		n, err := s.length(p)
		if err != nil {
			return nil, err
		}
		if total+n+joinCost() > s.chunkSize && len(current) > 0 {
			emit()
			for total > s.chunkOverlap || (total+n+joinCost() > s.chunkSize && total > 0) {
				total -= lens[0]
				if len(current) > 1 {
					total -= sepLen
				}
				current, lens = current[1:], lens[1:]
			}
		}
		total += n + joinCost()
		current = append(current, p)
		lens = append(lens, n)
	}
	if len(current) > 0 {
		emit()
	}
	return chunks, nil
}
