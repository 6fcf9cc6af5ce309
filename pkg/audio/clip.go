package audio

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Compile-time interface checks.
var (
	_ Mic  = (*ClipMic)(nil)
	_ Sink = (*ClipSink)(nil)
)

// ClipMic is a [Mic] fed with whole recorded clips. A clip put before a
// capture starts is consumed by the next [ClipMic.Open]; a newer clip
// replaces one nobody has opened yet.
type ClipMic struct {
	mu      sync.Mutex
	pending []byte
	format  Format
	ready   bool
}

// Put stores pcm as the next utterance.
func (m *ClipMic) Put(pcm []byte, f Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = pcm
	m.format = f
	m.ready = true
}

// Pending reports whether a clip is waiting to be opened.
func (m *ClipMic) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Open returns the pending clip, or [ErrNoAudio] when there is none.
func (m *ClipMic) Open(ctx context.Context) (io.ReadCloser, Format, error) {
	if err := ctx.Err(); err != nil {
		return nil, Format{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, Format{}, ErrNoAudio
	}
	pcm, f := m.pending, m.format
	m.pending, m.ready = nil, false
	return &clipReader{r: bytes.NewReader(pcm)}, f, nil
}

// clipReader is a bytes.Reader that fails with io.ErrClosedPipe once closed.
type clipReader struct {
	mu     sync.Mutex
	r      *bytes.Reader
	closed bool
}

func (c *clipReader) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	return c.r.Read(p)
}

func (c *clipReader) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// ClipSink is a [Sink] that renders each playback to a WAV file kept in
// memory until the next playback replaces it.
type ClipSink struct {
	mu   sync.Mutex
	last []byte
	seq  uint64
}

// Play collects pcm until the channel closes. A playback cancelled through
// ctx is discarded and the previous clip stays current.
func (s *ClipSink) Play(ctx context.Context, pcm <-chan []byte, f Format, gain float64) error {
	var buf bytes.Buffer
	for {
		select {
		case chunk, ok := <-pcm:
			if !ok {
				out := buf.Bytes()
				Gain(out, gain)
				s.mu.Lock()
				s.last = EncodeWAV(out, f)
				s.seq++
				s.mu.Unlock()
				return nil
			}
			buf.Write(chunk)
		case <-ctx.Done():
			go Drain(pcm)
			return ctx.Err()
		}
	}
}

// Last returns the most recent completed playback as WAV, and a sequence
// number that increases with every playback.
func (s *ClipSink) Last() ([]byte, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.seq, s.last != nil
}
