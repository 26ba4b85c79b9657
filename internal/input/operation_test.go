package input

import (
	"errors"
	"testing"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		text string
		ops  []EditOperation
		want string
	}{
		{"insert", "hello", []EditOperation{Insert(5, " world")}, "hello world"},
		{"insert front", "bc", []EditOperation{Insert(0, "a")}, "abc"},
		{"delete", "hello world", []EditOperation{Delete(5, 6)}, "hello"},
		{"replace", "hello world", []EditOperation{Replace(6, 5, "there")}, "hello there"},
		{"sequence", "", []EditOperation{Insert(0, "ab"), Insert(2, "c"), Delete(0, 1), Replace(1, 1, "Z")}, "bZ"},
		{"unicode", "héllo", []EditOperation{Delete(1, 1), Insert(1, "ë")}, "hëllo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply([]rune(tt.text), NewBatch("id", 1, epoch, tt.ops))
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", string(got), tt.want)
			}
		})
	}
}

func TestApply_InvalidPosition(t *testing.T) {
	text := []rune("abc")
	bad := []EditOperation{Insert(6, "x"), Insert(-1, "x"), Delete(4, 2), Replace(0, -1, "x")}
	for _, op := range bad {
		got, err := Apply(text, NewBatch("id", 1, epoch, []EditOperation{Insert(0, "ok"), op}))
		if !errors.Is(err, ErrInvalidPosition) {
			t.Errorf("%+v: expected ErrInvalidPosition, got %v", op, err)
		}
		if string(got) != "abc" {
			t.Errorf("failed apply should return the original text, got %q", string(got))
		}
	}
}

func TestKind_String(t *testing.T) {
	for k, want := range map[Kind]string{KindInsert: "insert", KindDelete: "delete", KindReplace: "replace", Kind(9): "unknown"} {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}
