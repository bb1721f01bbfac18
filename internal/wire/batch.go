package wire

// Span is a byte range of a region, the sender-side shape of a pending edit.
type Span struct {
	Offset uint64
	Length uint64
}

// SplitSpans expands every span wider than max into max-sized pieces so that
// no single message carries more than the payload capacity. Order is
// preserved: the pieces of one span are emitted lowest offset first, in the
// position the span held in the input.
func SplitSpans(spans []Span, max uint64) []Span {
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		for s.Length > max {
			out = append(out, Span{Offset: s.Offset, Length: max})
			s.Offset += max
			s.Length -= max
		}
		if s.Length > 0 {
			out = append(out, s)
		}
	}
	return out
}

// PlanBatch encodes a drained set of edits for one region into messages.
// Each edit is read from the region through read at plan time, so payloads
// reflect the byte image at send time. One piece yields a SingleUpdate;
// more than one yields StartUpdate, UpdateChunk* and EndUpdate sharing id.
// Edits wider than the payload capacity are split first.
func PlanBatch(region string, id uint64, ts uint32, spans []Span, read func(off, n uint64) ([]byte, error)) ([]Message, error) {
	pieces := SplitSpans(spans, MaxPayload)
	if len(pieces) == 0 {
		return nil, nil
	}

	msgs := make([]Message, 0, len(pieces))
	for i, p := range pieces {
		payload, err := read(p.Offset, p.Length)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{
			Region:    region,
			Kind:      kindFor(i, len(pieces)),
			UpdateID:  id,
			Offset:    p.Offset,
			Length:    p.Length,
			Timestamp: ts,
			Payload:   payload,
		})
	}
	return msgs, nil
}

func kindFor(i, n int) Kind {
	if n == 1 {
		return SingleUpdate
	}
	switch i {
	case 0:
		return StartUpdate
	case n - 1:
		return EndUpdate
	default:
		return UpdateChunk
	}
}
