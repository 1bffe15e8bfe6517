package server

import (
	"bytes"
	"io"
	"strings"
)

const tailBlock = 8192

// tailLines returns the last n lines of r, reading backwards from size in
// fixed blocks so large logs are not read whole.
func tailLines(r io.ReaderAt, size int64, n int) ([]string, error) {
	if n <= 0 || size == 0 {
		return []string{}, nil
	}

	var buf []byte
	off := size
	for off > 0 {
		step := min(int64(tailBlock), off)
		off -= step
		chunk := make([]byte, step)
		if _, err := r.ReadAt(chunk, off); err != nil && err != io.EOF {
			return nil, err
		}
		buf = append(chunk, buf...)
		if bytes.Count(bytes.TrimSuffix(buf, []byte("\n")), []byte("\n")) >= n {
			break
		}
	}

	lines := strings.Split(strings.TrimSuffix(string(buf), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
