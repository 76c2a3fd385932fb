package lsp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	protocol "github.com/sourcegraph/go-lsp"
)

func rng(line, from, to int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: from},
		End:   protocol.Position{Line: line, Character: to},
	}
}

func TestDecorateGroupsByKind(t *testing.T) {
	resp := CursorResponse{
		Status:     StatusFinished,
		IsAnalyzed: true,
		Decorations: []Decoration{
			{Type: TypeLifetime, Range: rng(1, 0, 4), HoverText: "lifetime"},
			{Type: TypeMove, Range: rng(2, 0, 1)},
			{Type: TypeCall, Range: rng(3, 0, 1)},
			{Type: TypeImmBorrow, Range: rng(4, 0, 1), HoverText: "immutable borrow"},
			{Type: TypeMutBorrow, Range: rng(5, 0, 1)},
			{Type: TypeSharedMut, Range: rng(6, 0, 1)},
			{Type: TypeOutlive, Range: rng(7, 0, 1)},
			{Type: TypeMove, Range: rng(8, 0, 1), HoverText: "moved here", Overlapped: true},
		},
	}

	want := Decorations{
		Lifetime:        []protocol.Range{rng(1, 0, 4)},
		MoveCall:        []protocol.Range{rng(2, 0, 1), rng(3, 0, 1)},
		ImmutableBorrow: []protocol.Range{rng(4, 0, 1)},
		MutableBorrow:   []protocol.Range{rng(5, 0, 1), rng(6, 0, 1)},
		Outlive:         []protocol.Range{rng(7, 0, 1)},
		Hover: []Hover{
			{Range: rng(1, 0, 4), Text: "lifetime"},
			{Range: rng(4, 0, 1), Text: "immutable borrow"},
			{Range: rng(8, 0, 1), Text: "moved here"},
		},
	}
	if diff := cmp.Diff(want, Decorate(resp)); diff != "" {
		t.Fatalf("decorations mismatch (-want +got):\n%s", diff)
	}
}

func TestDecorateErrorStatusIsEmpty(t *testing.T) {
	resp := CursorResponse{
		Status:      StatusError,
		Decorations: []Decoration{{Type: TypeLifetime, Range: rng(0, 0, 1), HoverText: "x"}},
	}
	if got := Decorate(resp); !got.Empty() {
		t.Fatalf("expected no decorations, got %+v", got)
	}
}

func TestStyledOrder(t *testing.T) {
	var kinds []SetKind
	for _, s := range (Decorations{}).Styled() {
		kinds = append(kinds, s.Kind)
	}
	want := []SetKind{SetLifetime, SetMoveCall, SetImmutableBorrow, SetMutableBorrow, SetOutlive}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}
