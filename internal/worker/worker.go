// Package worker implements the synthesis side of the wire protocol. The
// readaloud-worker binary serves it on stdin/stdout; tests serve it over
// in-memory pipes.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/protocol"
)

// ErrNotInitialized is returned for voices and generate requests that arrive
// before a successful init.
var ErrNotInitialized = errors.New(protocol.NotInitialized)

// Backend is a speech engine.
type Backend interface {
	// Init loads the model. It may be called again with a new config.
	Init(ctx context.Context, cfg protocol.ModelConfig) error
	// Voices lists the available voice ids.
	Voices(ctx context.Context) ([]string, error)
	// Generate synthesizes text with voice. An empty voice selects the
	// engine default.
	Generate(ctx context.Context, text, voice string) (*audio.Clip, error)
}

// Serve writes the ready line and then answers requests read from r until r
// reaches EOF or ctx is cancelled. Each request is handled in its own
// goroutine, so responses are written in completion order.
func Serve(ctx context.Context, r io.Reader, w io.Writer, backend Backend) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &server{backend: backend, enc: json.NewEncoder(w)}
	if err := s.write(protocol.Ready()); err != nil {
		return fmt.Errorf("write ready: %w", err)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			var req protocol.Request
			if jerr := json.Unmarshal(line, &req); jerr != nil {
				log.Warn("worker: bad request line", "err", jerr)
			} else {
				wg.Add(1)
				go func() {
					defer wg.Done()
					s.respond(ctx, req)
				}()
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type server struct {
	backend Backend
	ready   atomic.Bool

	initMu sync.Mutex
	mu     sync.Mutex
	enc    *json.Encoder
}

func (s *server) write(resp protocol.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(resp)
}

func (s *server) respond(ctx context.Context, req protocol.Request) {
	resp, err := s.handle(ctx, req)
	if err != nil {
		log.Debug("worker: request failed", "id", req.ID, "type", req.Type, "err", err)
		resp = protocol.Failure(req.ID, err)
	} else {
		resp.ID = req.ID
		resp.OK = true
	}
	if err := s.write(resp); err != nil {
		log.Error("worker: write response", "id", req.ID, "err", err)
	}
}

func (s *server) handle(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	switch req.Type {
	case protocol.TypeInit:
		cfg := protocol.DefaultModelConfig()
		if len(req.Payload) > 0 {
			if err := req.Decode(&cfg); err != nil {
				return protocol.Response{}, err
			}
		}
		s.initMu.Lock()
		defer s.initMu.Unlock()
		if err := s.backend.Init(ctx, cfg); err != nil {
			s.ready.Store(false)
			return protocol.Response{}, err
		}
		s.ready.Store(true)
		return protocol.Response{Ready: true}, nil

	case protocol.TypeStatus:
		return protocol.Response{Ready: s.ready.Load()}, nil

	case protocol.TypeVoices:
		if !s.ready.Load() {
			return protocol.Response{}, ErrNotInitialized
		}
		voices, err := s.backend.Voices(ctx)
		if err != nil {
			return protocol.Response{}, err
		}
		return protocol.Response{Voices: voices}, nil

	case protocol.TypeGenerate:
		if !s.ready.Load() {
			return protocol.Response{}, ErrNotInitialized
		}
		var p protocol.GeneratePayload
		if err := req.Decode(&p); err != nil {
			return protocol.Response{}, err
		}
		clip, err := s.backend.Generate(ctx, p.Text, p.Voice)
		if err != nil {
			return protocol.Response{}, err
		}
		return protocol.Response{Audio: clip.PCM, SampleRate: clip.SampleRate}, nil

	default:
		return protocol.Response{}, fmt.Errorf("unknown request type %q", req.Type)
	}
}
