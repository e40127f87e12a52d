// Package reasoning hides model reasoning spans (<think>...</think>) from
// text shown to end users.
package reasoning

import "strings"

const (
	OpenTag  = "<think>"
	CloseTag = "</think>"
)

// Strip removes every reasoning span from text. An opening tag without a
// matching close hides everything after it. Removal is repeated until nothing
// changes, so Strip(Strip(s)) == Strip(s).
func Strip(text string) string {
	for {
		next := stripOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func stripOnce(s string) string {
	if !strings.Contains(s, OpenTag) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for {
		i := strings.Index(s, OpenTag)
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		rest := s[i+len(OpenTag):]
		j := strings.Index(rest, CloseTag)
		if j < 0 {
			break
		}
		s = rest[j+len(CloseTag):]
	}
	return b.String()
}

// Filter separates visible text from reasoning text in a stream of chunks.
// Tags split across chunk boundaries are held back until they can be decided.
type Filter struct {
	inThink bool
	pending string
}

// Write consumes the next chunk and returns the text that can be released now.
func (f *Filter) Write(chunk string) (visible, thinking string) {
	s := f.pending + chunk
	f.pending = ""

	var vis, think strings.Builder
	for len(s) > 0 {
		tag := OpenTag
		out := &vis
		if f.inThink {
			tag = CloseTag
			out = &think
		}

		if i := strings.Index(s, tag); i >= 0 {
			out.WriteString(s[:i])
			s = s[i+len(tag):]
			f.inThink = !f.inThink
			continue
		}

		keep := partialSuffix(s, tag)
		out.WriteString(s[:len(s)-keep])
		f.pending = s[len(s)-keep:]
		break
	}
	return vis.String(), think.String()
}

// Flush releases any held-back text at end of stream.
func (f *Filter) Flush() (visible, thinking string) {
	rest := f.pending
	f.pending = ""
	if f.inThink {
		return "", rest
	}
	return rest, ""
}

// InReasoning reports whether the filter is inside an open reasoning span.
func (f *Filter) InReasoning() bool {
	return f.inThink
}

// partialSuffix returns the length of the longest suffix of s that is a proper prefix of tag.
func partialSuffix(s, tag string) int {
	n := len(tag) - 1
	if len(s) < n {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, tag[:n]) {
			return n
		}
	}
	return 0
}
