package input

import (
	"fmt"
	"slices"
	"time"
)

// Kind is the type of an edit.
type Kind int

const (
	// KindInsert inserts Payload at Position.
	KindInsert Kind = iota
	// KindDelete removes Length runes at Position.
	KindDelete
	// KindReplace removes Length runes at Position and inserts Payload.
	KindReplace
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindDelete:
		return "delete"
	case KindReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// EditOperation is a single edit. Positions and lengths count runes.
type EditOperation struct {
	Kind      Kind
	Position  int
	Payload   string
	Length    int
	Timestamp time.Time
}

// Insert returns an insert operation.
func Insert(pos int, text string) EditOperation {
	return EditOperation{Kind: KindInsert, Position: pos, Payload: text}
}

// Delete returns a delete operation.
func Delete(pos, length int) EditOperation {
	return EditOperation{Kind: KindDelete, Position: pos, Length: length}
}

// Replace returns a replace operation.
func Replace(pos, length int, text string) EditOperation {
	return EditOperation{Kind: KindReplace, Position: pos, Length: length, Payload: text}
}

// Batch is an immutable, ordered group of operations delivered together.
type Batch struct {
	id        string
	seq       uint64
	timestamp time.Time
	ops       []EditOperation
}

// NewBatch builds a batch from ops, copying the slice.
func NewBatch(id string, seq uint64, ts time.Time, ops []EditOperation) Batch {
	return Batch{id: id, seq: seq, timestamp: ts, ops: slices.Clone(ops)}
}

// ID returns the unique batch identifier.
func (b Batch) ID() string { return b.id }

// Seq returns the batch sequence number, starting at 1 per scheduler.
func (b Batch) Seq() uint64 { return b.seq }

// Timestamp returns the flush time.
func (b Batch) Timestamp() time.Time { return b.timestamp }

// Len returns the number of operations.
func (b Batch) Len() int { return len(b.ops) }

// Operations returns a copy of the operations in input order.
func (b Batch) Operations() []EditOperation {
	return slices.Clone(b.ops)
}

// At returns operation i.
func (b Batch) At(i int) EditOperation { return b.ops[i] }

// Apply applies the batch to text in order and returns the new text. The
// input slice is never modified; on error the original text is returned.
func Apply(text []rune, b Batch) ([]rune, error) {
	out := slices.Clone(text)
	for i, op := range b.ops {
		next, err := applyOne(out, op)
		if err != nil {
			return text, fmt.Errorf("batch %d operation %d: %w", b.seq, i, err)
		}
		out = next
	}
	return out, nil
}

func applyOne(text []rune, op EditOperation) ([]rune, error) {
	if op.Position < 0 || op.Position > len(text) {
		return nil, fmt.Errorf("%w: %s at %d of %d", ErrInvalidPosition, op.Kind, op.Position, len(text))
	}

	switch op.Kind {
	case KindInsert:
		return slices.Insert(text, op.Position, []rune(op.Payload)...), nil
	case KindDelete, KindReplace:
		if op.Length < 0 || op.Position+op.Length > len(text) {
			return nil, fmt.Errorf("%w: %s of %d at %d of %d", ErrInvalidPosition, op.Kind, op.Length, op.Position, len(text))
		}
		text = slices.Delete(text, op.Position, op.Position+op.Length)
		if op.Kind == KindReplace {
			text = slices.Insert(text, op.Position, []rune(op.Payload)...)
		}
		return text, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidPosition, op.Kind)
	}
}
