package decoder

import (
	"bufio"
	"fmt"
	"io"
)

// Subset copies the first n lines of an extract to w and returns how many
// were written. Gzip input is decompressed; the output is always plain text.
func Subset(r io.Reader, w io.Writer, n int) (int, error) {
	src, err := OpenExtract(r)
	if err != nil {
		return 0, err
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	bw := bufio.NewWriter(w)

	written := 0
	for written < n && scanner.Scan() {
		if _, err := bw.WriteString(scanner.Text() + "\n"); err != nil {
			return written, fmt.Errorf("decoder: failed to write subset: %w", err)
		}
		written++
	}
	if err := scanner.Err(); err != nil {
		return written, fmt.Errorf("decoder: failed to read extract: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("decoder: failed to write subset: %w", err)
	}
	return written, nil
}
