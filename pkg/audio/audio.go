// Package audio carries PCM between the learner's microphone, the speech
// providers and the speaker.
//
// The two abstractions are:
//
//   - [Mic] opens one capture's worth of 16-bit little-endian PCM.
//   - [Sink] plays a stream of synthesised PCM.
//
// [ClipMic] and [ClipSink] implement them for request/response transports
// where audio arrives as an uploaded clip and leaves as a downloadable WAV.
package audio

import (
	"context"
	"errors"
	"io"
)

// ErrNoAudio is returned by [Mic.Open] when there is nothing to capture.
var ErrNoAudio = errors.New("audio: no audio available")

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is the 16 kHz mono format STT providers expect.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// BytesPerMs returns the byte rate of 16-bit PCM in f per millisecond.
func (f Format) BytesPerMs() int {
	n := f.SampleRate * max(f.Channels, 1) * 2 / 1000
	if n <= 0 {
		return 32
	}
	return n
}

// Frame is a chunk of PCM tagged with its format.
type Frame struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Mic opens audio for a single capture. The returned reader yields PCM in the
// returned format and ends with io.EOF when the utterance is over. Closing
// the reader aborts the capture.
type Mic interface {
	Open(ctx context.Context) (io.ReadCloser, Format, error)
}

// Sink plays synthesised speech. Play consumes pcm until it closes or ctx is
// cancelled. gain scales the output volume (1.0 = unchanged).
type Sink interface {
	Play(ctx context.Context, pcm <-chan []byte, f Format, gain float64) error
}
