package lsp

import protocol "github.com/sourcegraph/go-lsp"

// SetKind names one of the decoration groups an editor styles separately.
type SetKind string

const (
	SetLifetime        SetKind = "lifetime"
	SetMoveCall        SetKind = "moveCall"
	SetImmutableBorrow SetKind = "immutableBorrow"
	SetMutableBorrow   SetKind = "mutableBorrow"
	SetOutlive         SetKind = "outlive"
	SetHover           SetKind = "hover"
)

// Hover attaches text to a range without styling it.
type Hover struct {
	Range protocol.Range `json:"range"`
	Text  string         `json:"text"`
}

// Decorations groups a cursor response by how it is drawn.
type Decorations struct {
	Lifetime        []protocol.Range `json:"lifetime"`
	MoveCall        []protocol.Range `json:"moveCall"`
	ImmutableBorrow []protocol.Range `json:"immutableBorrow"`
	MutableBorrow   []protocol.Range `json:"mutableBorrow"`
	Outlive         []protocol.Range `json:"outlive"`
	Hover           []Hover          `json:"hover"`
}

// Set is one styled group in drawing order.
type Set struct {
	Kind   SetKind
	Ranges []protocol.Range
}

// Styled returns the colored groups in the order they are drawn; later sets
// paint over earlier ones.
func (d Decorations) Styled() []Set {
	return []Set{
		{Kind: SetLifetime, Ranges: d.Lifetime},
		{Kind: SetMoveCall, Ranges: d.MoveCall},
		{Kind: SetImmutableBorrow, Ranges: d.ImmutableBorrow},
		{Kind: SetMutableBorrow, Ranges: d.MutableBorrow},
		{Kind: SetOutlive, Ranges: d.Outlive},
	}
}

// Empty reports whether there is nothing to draw.
func (d Decorations) Empty() bool {
	for _, s := range d.Styled() {
		if len(s.Ranges) > 0 {
			return false
		}
	}
	return len(d.Hover) == 0
}

// Decorate sorts a response into decoration sets. An error status yields
// nothing. Overlapped decorations are left out of the styled sets but keep
// their hover text.
func Decorate(resp CursorResponse) Decorations {
	var out Decorations
	if resp.Status == StatusError {
		return out
	}
	for _, d := range resp.Decorations {
		if d.HoverText != "" {
			out.Hover = append(out.Hover, Hover{Range: d.Range, Text: d.HoverText})
		}
		if d.Overlapped {
			continue
		}
		switch d.Type {
		case TypeLifetime:
			out.Lifetime = append(out.Lifetime, d.Range)
		case TypeMove, TypeCall:
			out.MoveCall = append(out.MoveCall, d.Range)
		case TypeImmBorrow:
			out.ImmutableBorrow = append(out.ImmutableBorrow, d.Range)
		case TypeMutBorrow, TypeSharedMut:
			out.MutableBorrow = append(out.MutableBorrow, d.Range)
		case TypeOutlive:
			out.Outlive = append(out.Outlive, d.Range)
		}
	}
	return out
}
