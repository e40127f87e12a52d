package chatstream

import "bytes"

// StreamBuffer reassembles newline-delimited lines from arbitrarily split
// reads. It works on bytes so that a multi-byte character or a JSON payload
// cut across two reads is only decoded once the whole line has arrived.
type StreamBuffer struct {
	pending []byte
}

// Feed appends p and returns every line completed by it, without the line
// terminator. Bytes after the last newline are kept for the next call.
func (b *StreamBuffer) Feed(p []byte) []string {
	b.pending = append(b.pending, p...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(b.pending[start:], '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSuffix(b.pending[start:start+i], []byte{'\r'})
		lines = append(lines, string(line))
		start += i + 1
	}

	if start > 0 {
		b.pending = append(b.pending[:0], b.pending[start:]...)
	}
	return lines
}

// Flush returns the unterminated remainder, if any, and empties the buffer.
func (b *StreamBuffer) Flush() (string, bool) {
	if len(b.pending) == 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(b.pending, []byte{'\r'}))
	b.pending = nil
	return line, true
}

// Buffered reports how many bytes are waiting for a line terminator.
func (b *StreamBuffer) Buffered() int {
	return len(b.pending)
}
