package provider

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// maxSSELine is the largest single SSE line accepted.
const maxSSELine = 1024 * 1024

// SSEEvent is one dispatched server-sent event.
type SSEEvent struct {
	Name string
	Data string
}

// ReadSSE reads a server-sent event stream and calls fn for every event
// with a non-empty data field. Multiple data lines are joined with "\n".
// Comments and unknown fields are ignored. Returning io.EOF from fn stops
// reading without error. Context cancellation stops reading and returns
// the context error.
func ReadSSE(ctx context.Context, body io.Reader, fn func(SSEEvent) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

	var name string
	var data []string

	dispatch := func() error {
		if len(data) == 0 {
			name = ""
			return nil
		}
		ev := SSEEvent{Name: name, Data: strings.Join(data, "\n")}
		name, data = "", data[:0]
		return fn(ev)
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return stopOnEOF(err)
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	// Flush an event not followed by a blank line before EOF.
	return stopOnEOF(dispatch())
}

func stopOnEOF(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}
