package llmstream

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// consumeSSE reads a Server-Sent Events body and invokes fn once per event
// with the accumulated data payload. Multi-line data fields are joined with
// newlines per the SSE standard; comment lines are skipped.
func consumeSSE(ctx context.Context, r io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	flush := func() error {
		if data.Len() == 0 {
			return nil
		}
		payload := data.String()
		data.Reset()
		return fn(payload)
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(line[len("data:"):]))
		default:
			// event:/id:/retry: fields are not needed; the payload carries
			// its own type discriminator.
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
