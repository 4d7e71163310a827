package logger

import (
	"bufio"
	"io"
	"sync"
)

// asyncWriter serializes log lines through a single goroutine that fans them
// out to every sink. Write never drops a line; it blocks when the queue is full.
type asyncWriter struct {
	queue   chan []byte
	flushCh chan chan error
	done    chan struct{}
	once    sync.Once

	out *bufio.Writer

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	w := &asyncWriter{
		queue:   make(chan []byte, 256),
		flushCh: make(chan chan error),
		done:    make(chan struct{}),
		out:     bufio.NewWriterSize(io.MultiWriter(sinks...), bufSize),
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.setErr(w.out.Flush())
				return
			}
			if _, err := w.out.Write(line); err != nil {
				w.setErr(err)
				continue
			}
			// Flush eagerly when idle so tailing the log stays live.
			if len(w.queue) == 0 {
				w.setErr(w.out.Flush())
			}
		case ack := <-w.flushCh:
			ack <- w.out.Flush()
		}
	}
}

// Write enqueues a copy of p.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.Err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush blocks until everything queued so far has reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushCh <- ack:
		return <-ack
	case <-w.done:
		return w.Err()
	}
}

// Close drains the queue and reports the first write error.
func (w *asyncWriter) Close() error {
	w.once.Do(func() { close(w.queue) })
	<-w.done
	return w.Err()
}

// Err returns the first write error seen by the writer.
func (w *asyncWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *asyncWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
