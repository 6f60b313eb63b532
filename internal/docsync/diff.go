package docsync

import "github.com/teamspace-collab/sync-client/internal/model"

// Diff computes the positional operations that explain the difference between
// two texts by scanning from the start for the first differing rune. This is a
// prefix-anchored diff, deliberately simpler than a minimal edit distance: a
// contiguous insertion or deletion, the shape every editor change event
// produces, yields exactly one operation. Changes a single contiguous
// operation cannot explain fall back to rewriting the differing tail as a
// delete followed by an insert at the same anchor.
//
// Positions count runes. Base version and origin are left for the caller.
func Diff(oldText, newText string) []*model.Operation {
	if oldText == newText {
		return nil
	}

	oldRunes := []rune(oldText)
	newRunes := []rune(newText)

	anchor := 0
	for anchor < len(oldRunes) && anchor < len(newRunes) && oldRunes[anchor] == newRunes[anchor] {
		anchor++
	}

	if len(newRunes) > len(oldRunes) {
		inserted := len(newRunes) - len(oldRunes)
		op := &model.Operation{
			Type:     model.OperationInsert,
			Position: anchor,
			Text:     string(newRunes[anchor : anchor+inserted]),
		}
		if Apply(oldText, op) == newText {
			return []*model.Operation{op}
		}
	} else if len(newRunes) < len(oldRunes) {
		op := &model.Operation{
			Type:     model.OperationDelete,
			Position: anchor,
			Length:   len(oldRunes) - len(newRunes),
		}
		if Apply(oldText, op) == newText {
			return []*model.Operation{op}
		}
	}

	// Not a single contiguous edit: replace everything past the anchor.
	return []*model.Operation{
		{
			Type:     model.OperationDelete,
			Position: anchor,
			Length:   len(oldRunes) - anchor,
		},
		{
			Type:     model.OperationInsert,
			Position: anchor,
			Text:     string(newRunes[anchor:]),
		},
	}
}

// Apply splices an operation into content positionally. Out-of-range positions
// and lengths are clamped rather than rejected, so a divergent peer cannot
// crash the engine.
func Apply(content string, op *model.Operation) string {
	runes := []rune(content)

	pos := op.Position
	if pos < 0 {
		pos = 0
	}
	if pos > len(runes) {
		pos = len(runes)
	}

	switch op.Type {
	case model.OperationInsert:
		out := make([]rune, 0, len(runes)+len([]rune(op.Text)))
		out = append(out, runes[:pos]...)
		out = append(out, []rune(op.Text)...)
		out = append(out, runes[pos:]...)
		return string(out)
	case model.OperationDelete:
		length := op.Length
		if length < 0 {
			length = 0
		}
		end := pos + length
		if end > len(runes) {
			end = len(runes)
		}
		out := make([]rune, 0, len(runes)-(end-pos))
		out = append(out, runes[:pos]...)
		out = append(out, runes[end:]...)
		return string(out)
	default:
		return content
	}
}
