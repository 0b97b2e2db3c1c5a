// Package rpc lets a host drive the reader with JSON commands. The
// dispatcher maps each command to one reader or bridge call. Transports
// (NATS, WebSocket) only move requests and responses.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/bridge"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/reader"
	"github.com/dgnsrekt/readaloud/internal/voice"
)

// Command names a request.
type Command string

// Commands.
const (
	Ping           Command = "ping"
	Start          Command = "start"
	Pause          Command = "pause"
	Resume         Command = "resume"
	Stop           Command = "stop"
	Jump           Command = "jump"
	Toggle         Command = "toggle"
	SetVoice       Command = "setVoice"
	SetSpeed       Command = "setSpeed"
	ClearCache     Command = "clearCache"
	GetState       Command = "getState"
	ListVoices     Command = "listVoices"
	GetModelStatus Command = "getModelStatus"
)

// aliases are the names older hosts send.
var aliases = map[string]Command{
	"playButtonPressed": Toggle,
	"executeCommand":    Toggle,
}

var (
	// ErrUnknownCommand is returned for a request type no handler serves.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMissingArgument is returned when a command lacks a required field.
	ErrMissingArgument = errors.New("missing argument")
)

// Request is one host command. Hosts may prefix the type with
// "kokoro:".
type Request struct {
	ID    string  `json:"id,omitempty"`
	Type  Command `json:"type"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
	Index *int    `json:"index,omitempty"`
	Scope string  `json:"scope,omitempty"`
}

// Response answers a Request. Every response carries the reader's state
// after the command ran.
type Response struct {
	ID       string          `json:"id,omitempty"`
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	State    reader.State    `json:"state"`
	Settings reader.Settings `json:"settings"`
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Voices   []voice.Voice   `json:"voices,omitempty"`
	Ready    *bool           `json:"ready,omitempty"`
}

// Reader is the part of reader.Engine the dispatcher drives.
type Reader interface {
	Start(ctx context.Context, s reader.Settings) error
	Pause() error
	Resume() error
	Stop() error
	Jump(ctx context.Context, i int) error
	Toggle(ctx context.Context, s reader.Settings) error
	SetVoice(voice string)
	SetSpeed(speed float64) error
	SetScope(loc document.Locator)
	ClearCache() error
	Settings() reader.Settings
	Snapshot() reader.Snapshot
}

// Speech is the part of bridge.Client the dispatcher queries.
type Speech interface {
	ListVoices(ctx context.Context) ([]string, error)
	Status(ctx context.Context) bridge.Status
}

// Dispatcher serves Requests. It is safe for concurrent use when its
// Reader and Speech are.
type Dispatcher struct {
	reader Reader
	speech Speech
}

// NewDispatcher returns a dispatcher driving r. speech may be nil, in
// which case voice commands pass voices through unchecked and the model
// reports not ready.
func NewDispatcher(r Reader, speech Speech) *Dispatcher {
	return &Dispatcher{reader: r, speech: speech}
}

// Handle runs req. Failures are reported in Response.Error.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	resp, err := d.handle(ctx, req)
	resp.ID = req.ID
	if err != nil {
		log.Debug("rpc: command failed", "type", req.Type, "err", err)
		resp.OK = false
		resp.Error = err.Error()
	} else {
		resp.OK = true
	}
	snap := d.reader.Snapshot()
	resp.State = snap.State
	resp.Settings = snap.Settings
	resp.Index = snap.Index
	resp.Total = snap.Total
	return resp
}

func normalize(t Command) Command {
	name := strings.TrimPrefix(string(t), "kokoro:")
	if c, ok := aliases[name]; ok {
		return c
	}
	return Command(name)
}

func (d *Dispatcher) handle(ctx context.Context, req Request) (Response, error) {
	var resp Response
	switch normalize(req.Type) {
	case Ping, GetState:
		return resp, nil
	case Start:
		return resp, d.start(ctx, req)
	case Pause:
		return resp, d.reader.Pause()
	case Resume:
		return resp, d.reader.Resume()
	case Stop:
		return resp, d.reader.Stop()
	case Toggle:
		return resp, d.reader.Toggle(ctx, d.settings(req))
	case Jump:
		if req.Index == nil {
			return resp, fmt.Errorf("%w: index", ErrMissingArgument)
		}
		return resp, d.reader.Jump(ctx, *req.Index)
	case SetVoice:
		return resp, d.setVoice(ctx, req.Voice)
	case SetSpeed:
		if req.Speed == 0 {
			return resp, fmt.Errorf("%w: speed", ErrMissingArgument)
		}
		return resp, d.reader.SetSpeed(req.Speed)
	case ClearCache:
		return resp, d.reader.ClearCache()
	case ListVoices:
		ids, err := d.voices(ctx)
		if err != nil {
			return resp, err
		}
		resp.Voices = voice.Describe(ids)
		return resp, nil
	case GetModelStatus:
		ready := d.speech != nil && d.speech.Status(ctx) == bridge.Ready
		resp.Ready = &ready
		return resp, nil
	default:
		return resp, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Type)
	}
}

// settings overlays the request's voice and speed on the current ones.
func (d *Dispatcher) settings(req Request) reader.Settings {
	s := d.reader.Settings()
	if req.Voice != "" {
		s.Voice = req.Voice
	}
	if req.Speed != 0 {
		s.Speed = req.Speed
	}
	return s
}

func (d *Dispatcher) start(ctx context.Context, req Request) error {
	var scope document.Locator
	if req.Scope != "" {
		loc, err := document.ParseLocator(req.Scope)
		if err != nil {
			return err
		}
		scope = loc
	}
	s := d.settings(req)
	if req.Voice != "" {
		v, err := d.resolve(ctx, req.Voice)
		if err != nil {
			return err
		}
		s.Voice = v
	}
	d.reader.SetScope(scope)
	return d.reader.Start(ctx, s)
}

// setVoice switches voices and, when the voice changed, drops the audio
// synthesized with the old one.
func (d *Dispatcher) setVoice(ctx context.Context, query string) error {
	if query == "" {
		return fmt.Errorf("%w: voice", ErrMissingArgument)
	}
	v, err := d.resolve(ctx, query)
	if err != nil {
		return err
	}
	if v == d.reader.Settings().Voice {
		return nil
	}
	d.reader.SetVoice(v)
	return d.reader.ClearCache()
}

// resolve maps query onto a listed voice. When voices cannot be listed the
// query is used as given.
func (d *Dispatcher) resolve(ctx context.Context, query string) (string, error) {
	ids, err := d.voices(ctx)
	if err != nil || len(ids) == 0 {
		log.Debug("rpc: voice list unavailable, using voice as given", "voice", query, "err", err)
		return query, nil
	}
	return voice.Match(query, ids)
}

func (d *Dispatcher) voices(ctx context.Context) ([]string, error) {
	if d.speech == nil {
		return nil, nil
	}
	return d.speech.ListVoices(ctx)
}

// HandleJSON decodes one JSON request, runs it and encodes the response.
// A request that does not decode gets an error response.
func (d *Dispatcher) HandleJSON(ctx context.Context, data []byte) []byte {
	var req Request
	var resp Response
	if err := json.Unmarshal(data, &req); err != nil {
		resp = d.Handle(ctx, Request{Type: "invalid"})
		resp.Error = fmt.Sprintf("decode request: %v", err)
	} else {
		resp = d.Handle(ctx, req)
	}
	out, err := json.Marshal(resp)
	if err != nil {
		log.Error("rpc: encode response", "err", err)
		return []byte(`{"ok":false,"error":"encode response"}`)
	}
	return out
}
