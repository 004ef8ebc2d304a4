package supervisor

import (
	"io"
	"sync"
)

// Input is the only reader of the console. One goroutine reads the source
// and hands each chunk to whoever is listening, the restart prompt or the
// running bot. Bytes nobody has claimed wait for the next listener, so a read
// that outlives a prompt never swallows input meant for the bot.
type Input struct {
	src    io.Reader
	start  sync.Once
	chunks chan inputChunk

	mu   sync.Mutex
	buf  []byte
	err  error
	done bool
}

type inputChunk struct {
	data []byte
	err  error
}

// NewInput wraps src. Nothing is read until the first listener asks.
func NewInput(src io.Reader) *Input {
	return &Input{src: src, chunks: make(chan inputChunk)}
}

func (in *Input) pump() {
	buf := make([]byte, 512)
	for {
		n, err := in.src.Read(buf)
		if n > 0 {
			in.chunks <- inputChunk{data: append([]byte(nil), buf[:n]...)}
			continue
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		in.chunks <- inputChunk{err: err}
		return
	}
}

// incoming returns the channel the reader goroutine delivers on, starting it
// on first use.
func (in *Input) incoming() <-chan inputChunk {
	in.start.Do(func() { go in.pump() })
	return in.chunks
}

// claim takes the unclaimed bytes without blocking. Once the source has
// failed and everything before the failure was claimed, it returns the error.
func (in *Input) claim() ([]byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.buf) > 0 {
		b := in.buf
		in.buf = nil
		return b, nil
	}
	if in.done {
		return nil, in.err
	}
	return nil, nil
}

// accept records a delivered chunk and returns it as claim would.
func (in *Input) accept(c inputChunk) ([]byte, error) {
	if c.err != nil {
		in.mu.Lock()
		in.err, in.done = c.err, true
		in.mu.Unlock()
		return nil, c.err
	}
	return c.data, nil
}

// unread puts b back in front of the unclaimed bytes.
func (in *Input) unread(b []byte) {
	if len(b) == 0 {
		return
	}
	in.mu.Lock()
	in.buf = append(append([]byte(nil), b...), in.buf...)
	in.mu.Unlock()
}

// next blocks until bytes arrive, the source fails, or stop is closed. It
// returns nil, nil on stop.
func (in *Input) next(stop <-chan struct{}) ([]byte, error) {
	if b, err := in.claim(); b != nil || err != nil {
		return b, err
	}
	select {
	case c := <-in.incoming():
		return in.accept(c)
	case <-stop:
		return nil, nil
	}
}

// forward copies console input to w until stop is closed. Bytes w refuses
// are put back for the next listener. When the source ends, w is closed so
// the bot sees end of input.
func (in *Input) forward(w io.WriteCloser, stop <-chan struct{}) {
	for {
		data, err := in.next(stop)
		if err != nil {
			_ = w.Close()
			return
		}
		if data == nil {
			return
		}
		n, werr := w.Write(data)
		if werr != nil {
			in.unread(data[n:])
			return
		}
	}
}
