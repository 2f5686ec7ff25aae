// Copyright 2025 Joseph Cumines
//
// Newline-delimited JSON-RPC 2.0 over stdin/stdout

package transport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// maxLineSize bounds a single inbound message.
const maxLineSize = 4 << 20

// StdioTransport reads one message per line from a reader and writes one
// message per line to a writer.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type StdioTransport struct {
	scanner *bufio.Scanner
	writer  io.Writer
	readMu  sync.Mutex
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewStdioTransport creates a transport over stdin and stdout.
func NewStdioTransport(stdin io.Reader, stdout io.Writer) *StdioTransport {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StdioTransport{
		scanner: scanner,
		writer:  stdout,
	}
}

// ParseError is returned by ReadMessage for a line that is not a JSON-RPC
// message. The stream remains usable.
type ParseError struct {
	Err  error
	Line string
}

func (e *ParseError) Error() string { return fmt.Sprintf("failed to parse JSON: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// ReadMessage reads the next non-blank line as a message.
func (t *StdioTransport) ReadMessage() (*Message, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for {
		if t.closed.Load() {
			return nil, ErrClosed
		}
		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read line: %w", err)
			}
			return nil, io.EOF
		}
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, &ParseError{Err: err, Line: string(line)}
		}
		return &msg, nil
	}
}

// WriteMessage writes msg followed by a newline.
func (t *StdioTransport) WriteMessage(msg *Message) error {
	if t.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close marks the transport closed. It is idempotent.
func (t *StdioTransport) Close() error {
	t.closed.Store(true)
	return nil
}

// IsClosed reports whether Close has been called.
func (t *StdioTransport) IsClosed() bool {
	return t.closed.Load()
}
