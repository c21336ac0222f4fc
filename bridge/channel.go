package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Channel owns the two pipe ends of a running worker: an exclusive-write
// input pipe and an exclusive-read, line-buffered output pipe. Each end
// has its own mutex so the Channel type is shareable without callers
// owning it exclusively; whole request/response exchanges are serialized
// one level up, by Bridge.Call.
type Channel struct {
	wmu sync.Mutex
	w   io.Writer

	rmu sync.Mutex
	r   *bufio.Reader
}

// NewChannel wraps the worker's stdin writer and stdout reader.
func NewChannel(w io.Writer, r io.Reader) *Channel {
	return &Channel{w: w, r: bufio.NewReader(r)}
}

// WriteLine writes one already-framed line under the write lock and
// flushes writers that buffer. Failures are not retried here: a partially
// written line leaves the stream in an unknown framing state, and that is
// the caller's signal to discard the bridge.
func (c *Channel) WriteLine(line []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if _, err := c.w.Write(line); err != nil {
		return fmt.Errorf("writing line: %w", err)
	}
	if f, ok := c.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flushing line: %w", err)
		}
	}
	return nil
}

// ReadLine blocks until one newline-terminated line arrives on the
// worker's output pipe and returns it with the terminator attached. A
// final unterminated line before EOF is returned as data. EOF with
// nothing buffered means the worker closed its output without answering —
// a worker-death condition, reported as an error and never as an empty
// response.
func (c *Channel) ReadLine() ([]byte, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	line, err := c.r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if len(line) > 0 {
				return line, nil
			}
			return nil, fmt.Errorf("reading line: worker closed its output: %w", io.ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("reading line: %w", err)
	}
	return line, nil
}

// Close closes the write end if it is closable. A worker blocked reading
// its stdin sees EOF and exits.
func (c *Channel) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if cl, ok := c.w.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
