// Package chunk stores a document as fixed-size chunks so that range reads
// touch only the chunks they overlap.
//
// Sizes and offsets are counted in runes; a chunk boundary never splits a
// UTF-8 sequence. Under memory pressure the store drops the least recently
// read chunks beyond a retention cap. Reads of a dropped chunk fail with
// ErrChunkEvicted rather than returning partial text.
package chunk

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/duomark/internal/logging"
	"github.com/dshills/duomark/internal/memory"
)

// Defaults used by DefaultOptions.
const (
	DefaultChunkSize    = 4096
	DefaultRetainChunks = 256
	DefaultGCThreshold  = 80.0
)

// Options configures a Store.
type Options struct {
	// ChunkSize is the number of runes per chunk. Must be positive.
	ChunkSize int
	// RetainChunks is the number of chunks kept resident under pressure.
	RetainChunks int
	// GCThreshold is the memory usage percentage above which
	// CheckMemoryPressure evicts.
	GCThreshold float64
	// Probe supplies the memory metric. Nil disables eviction.
	Probe memory.Probe
	// Logger receives eviction reports.
	Logger *logging.Logger
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		RetainChunks: DefaultRetainChunks,
		GCThreshold:  DefaultGCThreshold,
	}
}

// Chunk is one stored piece of the document.
type Chunk struct {
	Index int
	Text  string
}

type slot struct {
	text       string
	runes      int
	resident   bool
	lastAccess uint64
}

// Stats describes the store.
type Stats struct {
	Chunks       int
	Resident     int
	Length       int
	Reads        uint64
	EvictedReads uint64
	Evictions    uint64
}

// Store holds chunked content.
type Store struct {
	mu sync.Mutex

	size        int
	retain      int
	gcThreshold float64
	probe       memory.Probe
	logger      *logging.Logger

	slots    []slot
	length   int
	resident int
	tick     uint64

	reads        uint64
	evictedReads uint64
	evictions    uint64
}

// New creates an empty store.
func New(opts Options) (*Store, error) {
	if opts.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, opts.ChunkSize)
	}
	if opts.RetainChunks < 0 {
		return nil, fmt.Errorf("%w: retain cap must not be negative, got %d", ErrInvalidConfig, opts.RetainChunks)
	}
	return &Store{
		size:        opts.ChunkSize,
		retain:      opts.RetainChunks,
		gcThreshold: opts.GCThreshold,
		probe:       opts.Probe,
		logger:      logging.OrNop(opts.Logger).WithComponent("chunk"),
	}, nil
}

// SetContent replaces the whole content, re-splitting it into chunks.
// Chunks copy their text so an evicted chunk releases its memory.
func (s *Store) SetContent(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.slots)
	s.slots = s.slots[:0]
	s.length = 0
	s.tick = 0

	start, count := 0, 0
	for i := range text {
		if count == s.size {
			s.slots = append(s.slots, slot{text: strings.Clone(text[start:i]), runes: count, resident: true})
			s.length += count
			start, count = i, 0
		}
		count++
	}
	if count > 0 {
		s.slots = append(s.slots, slot{text: strings.Clone(text[start:]), runes: count, resident: true})
		s.length += count
	}
	s.resident = len(s.slots)
}

// Len returns the content length in runes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.length
}

// ChunkSize returns the configured chunk size.
func (s *Store) ChunkSize() int {
	return s.size
}

// ChunkCount returns the number of resident chunks.
func (s *Store) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resident
}

// Chunk returns the chunk at index i.
func (s *Store) Chunk(i int) (Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.slots) {
		return Chunk{}, fmt.Errorf("%w: chunk %d of %d", ErrRangeOutOfBounds, i, len(s.slots))
	}
	s.reads++
	if !s.slots[i].resident {
		s.evictedReads++
		return Chunk{}, fmt.Errorf("%w: chunk %d", ErrChunkEvicted, i)
	}
	s.touch(i)
	return Chunk{Index: i, Text: s.slots[i].text}, nil
}

// Range returns runes [start, end) of the content. The result equals
// slicing the original text by runes.
func (s *Store) Range(start, end int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if start < 0 || end < start || end > s.length {
		return "", fmt.Errorf("%w: [%d,%d) of %d", ErrRangeOutOfBounds, start, end, s.length)
	}
	s.reads++
	if start == end {
		return "", nil
	}

	first := start / s.size
	last := (end - 1) / s.size

	for i := first; i <= last; i++ {
		if !s.slots[i].resident {
			s.evictedReads++
			return "", fmt.Errorf("%w: chunk %d needed for [%d,%d)", ErrChunkEvicted, i, start, end)
		}
	}

	var b strings.Builder
	for i := first; i <= last; i++ {
		s.touch(i)
		base := i * s.size
		from := max(start-base, 0)
		to := min(end-base, s.slots[i].runes)
		b.WriteString(runeSlice(s.slots[i].text, s.slots[i].runes, from, to))
	}
	return b.String(), nil
}

// touch refreshes the recency of chunk i. Must be called with mu held.
func (s *Store) touch(i int) {
	s.tick++
	s.slots[i].lastAccess = s.tick
}

// CheckMemoryPressure evicts down to the retention cap when the probe
// reports usage above the threshold. It returns the number of chunks
// evicted; an unavailable metric evicts nothing.
func (s *Store) CheckMemoryPressure() int {
	percent, ok := memory.Usage(s.probe)
	if !ok || percent <= s.gcThreshold {
		return 0
	}
	n := s.Shrink(s.retain)
	if n > 0 {
		s.logger.Warn("memory at %.1f%% over %.1f%%, evicted %d chunks", percent, s.gcThreshold, n)
	}
	return n
}

// Shrink evicts the least recently read chunks until at most keep remain
// resident. Chunks never read rank by index, lowest first.
func (s *Store) Shrink(keep int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	excess := s.resident - keep
	if excess <= 0 {
		return 0
	}

	order := make([]int, 0, s.resident)
	for i := range s.slots {
		if s.slots[i].resident {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.slots[order[a]].lastAccess < s.slots[order[b]].lastAccess
	})

	for _, i := range order[:excess] {
		s.slots[i].resident = false
		s.slots[i].text = ""
	}
	s.resident -= excess
	s.evictions += uint64(excess)
	return excess
}

// Resident reports whether chunk i is held in memory.
func (s *Store) Resident(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return i >= 0 && i < len(s.slots) && s.slots[i].resident
}

// Stats returns store statistics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Chunks:       len(s.slots),
		Resident:     s.resident,
		Length:       s.length,
		Reads:        s.reads,
		EvictedReads: s.evictedReads,
		Evictions:    s.evictions,
	}
}

// runeSlice returns runes [from, to) of s, which holds n runes.
func runeSlice(s string, n, from, to int) string {
	if from == 0 && to == n {
		return s
	}
	startByte, endByte := len(s), len(s)
	r := 0
	for i := range s {
		if r == from {
			startByte = i
		}
		if r == to {
			endByte = i
			break
		}
		r++
	}
	return s[startByte:endByte]
}
