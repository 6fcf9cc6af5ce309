package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vozcards/pkg/provider/stt"
	"github.com/MrWong99/vozcards/pkg/provider/stt/whisper"
	"github.com/MrWong99/vozcards/pkg/types"
)

// inferenceServer is a fake whisper-server that records every /inference
// upload and answers with a fixed text or status.
type inferenceServer struct {
	*httptest.Server

	text   string
	status int

	mu       sync.Mutex
	requests []map[string]string
	riff     []string
}

func newInferenceServer(t *testing.T, text string, status int) *inferenceServer {
	t.Helper()
	s := &inferenceServer{text: text, status: status}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *inferenceServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/inference" {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fields := map[string]string{}
	for k, v := range r.MultipartForm.Value {
		fields[k] = v[0]
	}
	var kind string
	if fhs := r.MultipartForm.File["file"]; len(fhs) == 1 {
		if f, err := fhs[0].Open(); err == nil {
			head := make([]byte, 12)
			_, _ = f.Read(head)
			f.Close()
			kind = string(head[8:12])
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, fields)
	s.riff = append(s.riff, kind)
	s.mu.Unlock()

	if s.status != 0 && s.status != http.StatusOK {
		http.Error(w, "model not loaded", s.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"text": s.text})
}

func (s *inferenceServer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// tone returns ms milliseconds of a loud 440 Hz sine at 16 kHz mono.
func tone(ms int) []byte {
	n := ms * 16
	buf := make([]byte, n*2)
	for i := range n {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// quiet returns ms milliseconds of digital silence at 16 kHz mono.
func quiet(ms int) []byte { return make([]byte, ms*32) }

var mono16k = stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "es-ES"}

func waitForCalls(t *testing.T, srv *inferenceServer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.calls() < n {
		if time.Now().After(deadline) {
			t.Fatalf("saw %d inference calls, want at least %d", srv.calls(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// drain closes the session and collects every transcript it emitted.
func drain(t *testing.T, h stt.SessionHandle) (partials, finals []types.Transcript) {
	t.Helper()
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for tr := range h.Partials() {
		partials = append(partials, tr)
	}
	for tr := range h.Finals() {
		finals = append(finals, tr)
	}
	return partials, finals
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Error("New(\"\") succeeded, want an error")
	}
	p, err := whisper.New("http://localhost:8178/",
		whisper.WithModel("base"),
		whisper.WithLanguage("es"),
		whisper.WithSampleRate(16000),
		whisper.WithSilenceThresholdMs(400),
		whisper.WithMaxBufferDurationMs(5000),
		whisper.WithHTTPClient(http.DefaultClient),
	)
	if err != nil || p == nil {
		t.Fatalf("New = (%v, %v), want a provider", p, err)
	}
}

func TestStartStream_CancelledContext(t *testing.T) {
	t.Parallel()

	p, _ := whisper.New("http://localhost:8178")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, mono16k); !errors.Is(err, context.Canceled) {
		t.Errorf("StartStream err = %v, want context.Canceled", err)
	}
}

func TestSession_Segmentation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		opts      []whisper.Option
		chunks    [][]byte
		settle    int // inference calls to observe before closing
		wantCalls int
	}{
		{
			name:      "silence alone is never sent",
			chunks:    [][]byte{quiet(200), quiet(200), quiet(200)},
			wantCalls: 0,
		},
		{
			name:      "trailing silence ends the utterance",
			chunks:    [][]byte{tone(200), quiet(300), quiet(300)},
			wantCalls: 1,
		},
		{
			name:      "close flushes buffered speech",
			opts:      []whisper.Option{whisper.WithSilenceThresholdMs(60_000)},
			chunks:    [][]byte{tone(100), quiet(100), tone(100)},
			wantCalls: 1,
		},
		{
			name:      "long speech is split at the buffer cap",
			opts:      []whisper.Option{whisper.WithMaxBufferDurationMs(300)},
			chunks:    [][]byte{tone(100), tone(100), tone(100), tone(100), tone(100)},
			settle:    1,
			wantCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newInferenceServer(t, "gato", http.StatusOK)
			p, _ := whisper.New(srv.URL, tt.opts...)
			h, err := p.StartStream(context.Background(), mono16k)
			if err != nil {
				t.Fatalf("StartStream: %v", err)
			}
			for _, c := range tt.chunks {
				if err := h.SendAudio(c); err != nil {
					t.Fatalf("SendAudio: %v", err)
				}
			}
			waitForCalls(t, srv, tt.settle)
			_, finals := drain(t, h)

			if got := srv.calls(); got != tt.wantCalls {
				t.Errorf("inference calls = %d, want %d", got, tt.wantCalls)
			}
			if len(finals) != tt.wantCalls {
				t.Errorf("finals = %d, want %d", len(finals), tt.wantCalls)
			}
		})
	}
}

func TestSession_RequestFieldsAndTranscripts(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "  gato ", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithModel("small"), whisper.WithSilenceThresholdMs(60_000))
	cfg := mono16k
	cfg.Keywords = []string{"gato", " ", "cat"}
	h, err := p.StartStream(context.Background(), cfg)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	_ = h.SendAudio(tone(100))
	partials, finals := drain(t, h)

	if len(finals) != 1 || finals[0].Text != "gato" || !finals[0].IsFinal {
		t.Fatalf("finals = %+v, want one final \"gato\"", finals)
	}
	if len(partials) != 1 || partials[0].Text != "gato" || partials[0].IsFinal {
		t.Errorf("partials = %+v, want one interim \"gato\"", partials)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	want := map[string]string{"language": "es", "prompt": "gato, cat", "model": "small", "response_format": "json"}
	for k, v := range want {
		if got := srv.requests[0][k]; got != v {
			t.Errorf("field %s = %q, want %q", k, got, v)
		}
	}
	if srv.riff[0] != "WAVE" {
		t.Errorf("upload type = %q, want WAVE", srv.riff[0])
	}
}

func TestSession_UnusableResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		status int
	}{
		{name: "server error", text: "gato", status: http.StatusInternalServerError},
		{name: "blank text", text: "   ", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newInferenceServer(t, tt.text, tt.status)
			p, _ := whisper.New(srv.URL)
			h, err := p.StartStream(context.Background(), mono16k)
			if err != nil {
				t.Fatalf("StartStream: %v", err)
			}
			_ = h.SendAudio(tone(200))
			_, finals := drain(t, h)

			if srv.calls() != 1 {
				t.Errorf("inference calls = %d, want 1", srv.calls())
			}
			if len(finals) != 0 {
				t.Errorf("finals = %+v, want none", finals)
			}
		})
	}
}

func TestSession_CloseIsFinal(t *testing.T) {
	t.Parallel()

	p, _ := whisper.New("http://localhost:8178")
	h, err := p.StartStream(context.Background(), mono16k)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := h.SendAudio(tone(20)); !errors.Is(err, stt.ErrSessionClosed) {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}
}

func TestSession_ConcurrentSend(t *testing.T) {
	t.Parallel()

	srv := newInferenceServer(t, "perro", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithSilenceThresholdMs(60_000))
	h, err := p.StartStream(context.Background(), mono16k)
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 5 {
				_ = h.SendAudio(tone(20))
			}
		}()
	}
	wg.Wait()
	_, finals := drain(t, h)

	if len(finals) != 1 || finals[0].Text != "perro" {
		t.Errorf("finals = %+v, want one \"perro\"", finals)
	}
}
