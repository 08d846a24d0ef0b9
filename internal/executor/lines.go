package executor

import (
	"bufio"
	"io"
)

func scanLines(r io.Reader, fn func(line string)) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			fn(line)
		}
		if err != nil {
			// drain so the writer never blocks
			_, _ = io.Copy(io.Discard, br)
			return
		}
	}
}
