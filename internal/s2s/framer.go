package s2s

import "bytes"

// Framer reassembles CRLF-terminated protocol lines from arbitrary
// transport chunks. An incomplete trailing fragment is carried over
// until its terminator arrives, so lines may straddle any number of
// chunk boundaries, including a split between CR and LF.
type Framer struct {
	carry []byte
}

// Push appends a chunk and returns every line it completed, in
// arrival order and without terminators. No line is ever delivered
// twice or out of order.
func (f *Framer) Push(chunk []byte) []string {
	f.carry = append(f.carry, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(f.carry, '\n')
		if i < 0 {
			return lines
		}
		line := f.carry[:i]
		f.carry = f.carry[i+1:]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))
	}
}

// Pending reports how many buffered bytes are awaiting a terminator.
func (f *Framer) Pending() int {
	return len(f.carry)
}
