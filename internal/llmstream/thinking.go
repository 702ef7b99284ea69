package llmstream

import "strings"

// ThinkingParser splits incoming text chunks into thinking and content spans
// using a configurable {open, close} tag pair.
//
// Modeled as a small streaming DFA, grounded on the sentence-boundary scan in
// the teacher's cascade engine (firstSentenceBoundary/collectFirstSentence):
// both algorithms scan a growing buffer for a delimiter and must cope with
// the delimiter's prefix being the last thing in the buffer when the chunk
// boundary falls mid-match. Where cascade looks for single-rune punctuation
// boundaries, ThinkingParser looks for multi-rune tag boundaries, so instead
// of a one-character lookahead it tracks the longest buffered suffix that is
// still a valid prefix of the tag it's currently hunting for.
//
// A ThinkingParser is not safe for concurrent use; callers must serialize
// Feed/Flush calls for a single generation, matching the single-generation
// scope each parser instance is created for.
type ThinkingParser struct {
	openTag  string
	closeTag string

	buf        strings.Builder
	inThinking bool
}

// NewThinkingParser creates a parser for the given open/close tag pair. An
// empty open tag disables thinking-tag parsing entirely; Feed then always
// returns a single content segment per call.
func NewThinkingParser(open, closeTag string) *ThinkingParser {
	return &ThinkingParser{openTag: open, closeTag: closeTag}
}

// Segment is one contiguous span of text classified as thinking or content.
type Segment struct {
	Thinking bool
	Text     string
}

// Feed appends chunk to the parser's internal buffer and returns every
// segment that can be conclusively classified so far. Text that might still
// be an incomplete tag is held back in the internal buffer until a later
// Feed or a final Flush resolves it.
func (p *ThinkingParser) Feed(chunk string) []Segment {
	if p.openTag == "" {
		if chunk == "" {
			return nil
		}
		return []Segment{{Thinking: false, Text: chunk}}
	}

	p.buf.WriteString(chunk)
	buf := p.buf.String()

	var out []Segment
	for {
		tag := p.closeTag
		if !p.inThinking {
			tag = p.openTag
		}

		idx := strings.Index(buf, tag)
		if idx >= 0 {
			if idx > 0 {
				out = append(out, Segment{Thinking: p.inThinking, Text: buf[:idx]})
			}
			buf = buf[idx+len(tag):]
			p.inThinking = !p.inThinking
			continue
		}

		overlap := partialSuffixMatchLen(buf, tag)
		if overlap < len(buf) {
			emit := buf[:len(buf)-overlap]
			if emit != "" {
				out = append(out, Segment{Thinking: p.inThinking, Text: emit})
			}
			buf = buf[len(buf)-overlap:]
		}
		break
	}

	p.buf.Reset()
	p.buf.WriteString(buf)
	return out
}

// Flush releases any text still held in the internal buffer as a final
// segment in the current mode, for use when the stream ends with a
// never-completed partial tag (treated as literal text, not a tag).
func (p *ThinkingParser) Flush() []Segment {
	remaining := p.buf.String()
	p.buf.Reset()
	if remaining == "" {
		return nil
	}
	return []Segment{{Thinking: p.inThinking, Text: remaining}}
}

// partialSuffixMatchLen returns the length of the longest suffix of s that is
// also a proper prefix of tag (i.e. shorter than tag itself, since a full
// match would already have been found by strings.Index). Returns 0 if tag is
// empty or no such suffix exists.
func partialSuffixMatchLen(s, tag string) int {
	if tag == "" {
		return 0
	}
	max := len(tag) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
