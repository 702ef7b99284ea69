package llmstream

import "testing"

func feedAll(p *ThinkingParser, chunks []string) []Segment {
	var out []Segment
	for _, c := range chunks {
		out = append(out, p.Feed(c)...)
	}
	out = append(out, p.Flush()...)
	return out
}

func TestThinkingParserSplitsContentFromThinking(t *testing.T) {
	p := NewThinkingParser("<think>", "</think>")
	segs := feedAll(p, []string{"<think>", "plan", "</think>", "Hello"})

	var content string
	thinkingChars := 0
	for _, s := range segs {
		if s.Thinking {
			thinkingChars += len(s.Text)
		} else {
			content += s.Text
		}
	}
	if content != "Hello" {
		t.Fatalf("expected content %q, got %q", "Hello", content)
	}
	if thinkingChars != len("plan") {
		t.Fatalf("expected thinking text %q, got length %d", "plan", thinkingChars)
	}
}

func TestThinkingParserHandlesTagSplitAcrossChunks(t *testing.T) {
	p := NewThinkingParser("<think>", "</think>")
	segs := feedAll(p, []string{"<thi", "nk>plan<", "/think>Hello"})

	var content string
	for _, s := range segs {
		if !s.Thinking {
			content += s.Text
		}
	}
	if content != "Hello" {
		t.Fatalf("expected content %q after split tag, got %q", "Hello", content)
	}
}

func TestThinkingParserDisabledWhenNoOpenTag(t *testing.T) {
	p := NewThinkingParser("", "")
	segs := feedAll(p, []string{"just content"})
	if len(segs) != 1 || segs[0].Thinking || segs[0].Text != "just content" {
		t.Fatalf("expected single content segment, got %+v", segs)
	}
}

func TestThinkingParserNeverCompletedTagFlushedAsLiteralText(t *testing.T) {
	p := NewThinkingParser("<think>", "</think>")
	segs := feedAll(p, []string{"hello <thi"})

	var full string
	for _, s := range segs {
		full += s.Text
	}
	if full != "hello <thi" {
		t.Fatalf("expected partial tag preserved as literal text, got %q", full)
	}
}

func TestThinkingParserPartialSuffixNotFalsePositive(t *testing.T) {
	p := NewThinkingParser("<think>", "</think>")
	// "<th" looks like a partial open tag but is followed by non-matching text.
	segs := feedAll(p, []string{"a <th", "ere it is>"})

	var content string
	for _, s := range segs {
		content += s.Text
	}
	if content != "a <there it is>" {
		t.Fatalf("expected full literal text preserved, got %q", content)
	}
}
