package lsp

import (
	"encoding/json"
	"errors"
	"fmt"

	protocol "github.com/sourcegraph/go-lsp"
)

// ErrInvalidResponse means the server answered a cursor query with something
// that does not have the cursor response shape.
var ErrInvalidResponse = errors.New("invalid cursor response")

type Status string

const (
	StatusFinished  Status = "finished"
	StatusAnalyzing Status = "analyzing"
	StatusError     Status = "error"
)

type DecorationType string

const (
	TypeLifetime  DecorationType = "lifetime"
	TypeImmBorrow DecorationType = "imm_borrow"
	TypeMutBorrow DecorationType = "mut_borrow"
	TypeMove      DecorationType = "move"
	TypeCall      DecorationType = "call"
	TypeSharedMut DecorationType = "shared_mut"
	TypeOutlive   DecorationType = "outlive"
)

func (t DecorationType) valid() bool {
	switch t {
	case TypeLifetime, TypeImmBorrow, TypeMutBorrow, TypeMove, TypeCall, TypeSharedMut, TypeOutlive:
		return true
	}
	return false
}

// Decoration is one highlighted range returned for a cursor position.
type Decoration struct {
	Type       DecorationType `json:"type"`
	Range      protocol.Range `json:"range"`
	HoverText  string         `json:"hover_text,omitempty"`
	Overlapped bool           `json:"overlapped"`
}

// CursorResponse is the server's answer to a cursor query.
type CursorResponse struct {
	Status      Status       `json:"status"`
	IsAnalyzed  bool         `json:"is_analyzed"`
	Decorations []Decoration `json:"decorations"`
}

// CursorParams is sent with the cursor request.
type CursorParams struct {
	Position protocol.Position               `json:"position"`
	Document protocol.TextDocumentIdentifier `json:"document"`
}

// Validate checks enumerated fields and range coordinates.
func (r CursorResponse) Validate() error {
	switch r.Status {
	case StatusFinished, StatusAnalyzing, StatusError:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidResponse, r.Status)
	}
	for i, d := range r.Decorations {
		if !d.Type.valid() {
			return fmt.Errorf("%w: decoration %d has unknown type %q", ErrInvalidResponse, i, d.Type)
		}
		for _, p := range []protocol.Position{d.Range.Start, d.Range.End} {
			if p.Line < 0 || p.Character < 0 {
				return fmt.Errorf("%w: decoration %d has negative position", ErrInvalidResponse, i)
			}
		}
	}
	return nil
}

type rawDecoration struct {
	Type       *DecorationType `json:"type"`
	Range      *protocol.Range `json:"range"`
	HoverText  *string         `json:"hover_text"`
	Overlapped *bool           `json:"overlapped"`
}

type rawCursorResponse struct {
	Status      *Status          `json:"status"`
	IsAnalyzed  *bool            `json:"is_analyzed"`
	Decorations *[]rawDecoration `json:"decorations"`
}

// ParseCursorResponse decodes and validates a cursor response. Every field
// except hover_text is required.
func ParseCursorResponse(data []byte) (CursorResponse, error) {
	var raw rawCursorResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return CursorResponse{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	switch {
	case raw.Status == nil:
		return CursorResponse{}, fmt.Errorf("%w: missing status", ErrInvalidResponse)
	case raw.IsAnalyzed == nil:
		return CursorResponse{}, fmt.Errorf("%w: missing is_analyzed", ErrInvalidResponse)
	case raw.Decorations == nil:
		return CursorResponse{}, fmt.Errorf("%w: missing decorations", ErrInvalidResponse)
	}

	resp := CursorResponse{
		Status:      *raw.Status,
		IsAnalyzed:  *raw.IsAnalyzed,
		Decorations: make([]Decoration, 0, len(*raw.Decorations)),
	}
	for i, d := range *raw.Decorations {
		if d.Type == nil || d.Range == nil || d.Overlapped == nil {
			return CursorResponse{}, fmt.Errorf("%w: decoration %d is incomplete", ErrInvalidResponse, i)
		}
		dec := Decoration{Type: *d.Type, Range: *d.Range, Overlapped: *d.Overlapped}
		if d.HoverText != nil {
			dec.HoverText = *d.HoverText
		}
		resp.Decorations = append(resp.Decorations, dec)
	}
	if err := resp.Validate(); err != nil {
		return CursorResponse{}, err
	}
	return resp, nil
}
