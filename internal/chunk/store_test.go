package chunk

import (
	"errors"
	"strings"
	"testing"

	"github.com/dshills/duomark/internal/memory"
)

func newStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func sample(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789\n"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[i%len(alphabet)])
	}
	return b.String()
}

func TestStore_Scenario(t *testing.T) {
	s := newStore(t, Options{ChunkSize: 10})
	content := sample(500)
	s.SetContent(content)

	if s.ChunkCount() != 50 {
		t.Errorf("expected 50 chunks, got %d", s.ChunkCount())
	}
	if s.Len() != 500 {
		t.Errorf("expected length 500, got %d", s.Len())
	}

	got, err := s.Range(5, 15)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if got != content[5:15] {
		t.Errorf("Range(5,15) = %q, want %q", got, content[5:15])
	}
}

func TestStore_RangeEqualsSlice(t *testing.T) {
	contents := []string{
		"",
		"x",
		sample(97),
		"héllo wörld, ünïcode ✓ 日本語テキスト 🎉🎉 done",
	}
	for _, size := range []int{1, 3, 7, 10, 64} {
		for _, content := range contents {
			s := newStore(t, Options{ChunkSize: size})
			s.SetContent(content)
			runes := []rune(content)
			for a := 0; a <= len(runes); a++ {
				for b := a; b <= len(runes); b++ {
					got, err := s.Range(a, b)
					if err != nil {
						t.Fatalf("size=%d Range(%d,%d): %v", size, a, b, err)
					}
					if want := string(runes[a:b]); got != want {
						t.Fatalf("size=%d Range(%d,%d) = %q, want %q", size, a, b, got, want)
					}
				}
			}
		}
	}
}

func TestStore_Chunks(t *testing.T) {
	s := newStore(t, Options{ChunkSize: 4})
	s.SetContent("abcdefghij")

	want := []string{"abcd", "efgh", "ij"}
	for i, w := range want {
		c, err := s.Chunk(i)
		if err != nil {
			t.Fatalf("Chunk(%d): %v", i, err)
		}
		if c.Index != i || c.Text != w {
			t.Errorf("Chunk(%d) = %+v, want %q", i, c, w)
		}
	}
	if _, err := s.Chunk(3); !errors.Is(err, ErrRangeOutOfBounds) {
		t.Errorf("expected ErrRangeOutOfBounds, got %v", err)
	}
}

func TestStore_SetContentRebuilds(t *testing.T) {
	s := newStore(t, Options{ChunkSize: 4})
	s.SetContent(sample(40))
	s.SetContent("short")

	if s.ChunkCount() != 2 || s.Len() != 5 {
		t.Errorf("expected 2 chunks of 5 runes, got %d / %d", s.ChunkCount(), s.Len())
	}
	if got, _ := s.Range(0, 5); got != "short" {
		t.Errorf("got %q", got)
	}
}

func TestStore_SetContentReleasesOldChunks(t *testing.T) {
	s := newStore(t, Options{ChunkSize: 10})
	s.SetContent(sample(500))
	s.SetContent("abc")

	if s.ChunkCount() != 1 {
		t.Fatalf("expected 1 chunk, got %d", s.ChunkCount())
	}
	for i, sl := range s.slots[len(s.slots):cap(s.slots)] {
		if sl.text != "" {
			t.Fatalf("slot %d past the end still holds %q", len(s.slots)+i, sl.text)
		}
	}
}

func TestStore_InvalidRange(t *testing.T) {
	s := newStore(t, Options{ChunkSize: 4})
	s.SetContent("abcdef")

	for _, r := range [][2]int{{-1, 2}, {3, 2}, {0, 7}} {
		if _, err := s.Range(r[0], r[1]); !errors.Is(err, ErrRangeOutOfBounds) {
			t.Errorf("Range(%d,%d): expected ErrRangeOutOfBounds, got %v", r[0], r[1], err)
		}
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	for _, opts := range []Options{{ChunkSize: 0}, {ChunkSize: -5}, {ChunkSize: 5, RetainChunks: -1}} {
		if _, err := New(opts); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("New(%+v): expected ErrInvalidConfig, got %v", opts, err)
		}
	}
}

func TestStore_MemoryPressure(t *testing.T) {
	probe := memory.NewStatic(85)
	s := newStore(t, Options{ChunkSize: 10, RetainChunks: 5, GCThreshold: 80, Probe: probe})
	s.SetContent(sample(500))

	evicted := s.CheckMemoryPressure()
	if evicted != 45 {
		t.Errorf("expected 45 evictions, got %d", evicted)
	}
	if s.ChunkCount() > 5 {
		t.Errorf("expected at most 5 chunks, got %d", s.ChunkCount())
	}
	if s.Stats().Evictions != 45 {
		t.Errorf("expected eviction stat 45, got %d", s.Stats().Evictions)
	}
}

func TestStore_NoPressureNoEviction(t *testing.T) {
	probe := memory.NewStatic(50)
	s := newStore(t, Options{ChunkSize: 10, RetainChunks: 5, GCThreshold: 80, Probe: probe})
	s.SetContent(sample(500))

	if n := s.CheckMemoryPressure(); n != 0 {
		t.Errorf("usage under threshold evicted %d", n)
	}

	probe.SetUnavailable()
	probe.Set(99)
	probe.SetUnavailable()
	if n := s.CheckMemoryPressure(); n != 0 {
		t.Errorf("unavailable metric evicted %d", n)
	}

	nilProbe := newStore(t, Options{ChunkSize: 10, RetainChunks: 5, GCThreshold: 80})
	nilProbe.SetContent(sample(500))
	if n := nilProbe.CheckMemoryPressure(); n != 0 {
		t.Errorf("missing probe evicted %d", n)
	}
}

func TestStore_EvictionKeepsRecentlyRead(t *testing.T) {
	s := newStore(t, Options{ChunkSize: 10})
	content := sample(100)
	s.SetContent(content)

	if _, err := s.Range(75, 95); err != nil {
		t.Fatalf("Range: %v", err)
	}
	s.Shrink(3)

	for _, i := range []int{7, 8, 9} {
		if !s.Resident(i) {
			t.Errorf("recently read chunk %d should stay resident", i)
		}
	}
	got, err := s.Range(70, 100)
	if err != nil || got != content[70:100] {
		t.Errorf("resident range read failed: %q %v", got, err)
	}
}

func TestStore_EvictedReadFails(t *testing.T) {
	s := newStore(t, Options{ChunkSize: 10})
	s.SetContent(sample(100))
	s.Shrink(2)

	// Never-read chunks are evicted lowest index first.
	if s.Resident(0) || !s.Resident(9) {
		t.Error("expected low chunks evicted and tail kept")
	}
	if _, err := s.Range(0, 20); !errors.Is(err, ErrChunkEvicted) {
		t.Errorf("expected ErrChunkEvicted, got %v", err)
	}
	if _, err := s.Chunk(0); !errors.Is(err, ErrChunkEvicted) {
		t.Errorf("expected ErrChunkEvicted, got %v", err)
	}
	if s.Stats().EvictedReads != 2 {
		t.Errorf("expected 2 evicted reads, got %d", s.Stats().EvictedReads)
	}

	s.SetContent(sample(100))
	if _, err := s.Range(0, 20); err != nil {
		t.Errorf("SetContent should restore every chunk: %v", err)
	}
}
