package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dgnsrekt/readaloud/internal/bridge"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/reader"
	"github.com/nats-io/nats.go"
)

type fakeReader struct {
	mu       sync.Mutex
	calls    []string
	state    reader.State
	settings reader.Settings
	scope    document.Locator
	jumped   int
	err      error
}

func newFakeReader() *fakeReader {
	return &fakeReader{settings: reader.Settings{Voice: "af_heart", Speed: 1}}
}

func (f *fakeReader) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeReader) Start(_ context.Context, s reader.Settings) error {
	f.mu.Lock()
	f.settings = s
	f.state = reader.Playing
	f.mu.Unlock()
	return f.record("start")
}

func (f *fakeReader) Pause() error  { return f.record("pause") }
func (f *fakeReader) Resume() error { return f.record("resume") }
func (f *fakeReader) Stop() error   { return f.record("stop") }

func (f *fakeReader) Jump(_ context.Context, i int) error {
	f.mu.Lock()
	f.jumped = i
	f.mu.Unlock()
	return f.record("jump")
}

func (f *fakeReader) Toggle(_ context.Context, s reader.Settings) error {
	f.mu.Lock()
	f.settings = s
	f.mu.Unlock()
	return f.record("toggle")
}

func (f *fakeReader) SetVoice(v string) {
	f.mu.Lock()
	f.settings.Voice = v
	f.mu.Unlock()
	f.record("setVoice")
}

func (f *fakeReader) SetSpeed(speed float64) error {
	f.mu.Lock()
	f.settings.Speed = speed
	f.mu.Unlock()
	return f.record("setSpeed")
}

func (f *fakeReader) SetScope(loc document.Locator) {
	f.mu.Lock()
	f.scope = loc
	f.mu.Unlock()
}

func (f *fakeReader) ClearCache() error { return f.record("clearCache") }

func (f *fakeReader) Settings() reader.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeReader) Snapshot() reader.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return reader.Snapshot{State: f.state, Index: 3, Total: 7, Settings: f.settings}
}

func (f *fakeReader) Jumped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jumped
}

func (f *fakeReader) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeSpeech struct {
	voices []string
	err    error
	status bridge.Status
}

func (s *fakeSpeech) ListVoices(context.Context) ([]string, error) { return s.voices, s.err }
func (s *fakeSpeech) Status(context.Context) bridge.Status          { return s.status }

func intp(i int) *int { return &i }

func TestDispatcherCommands(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		wantCalls []string
		wantErr   string
	}{
		{"ping", Request{Type: Ping}, nil, ""},
		{"get state", Request{Type: GetState}, nil, ""},
		{"start", Request{Type: Start}, []string{"start"}, ""},
		{"pause", Request{Type: Pause}, []string{"pause"}, ""},
		{"resume", Request{Type: Resume}, []string{"resume"}, ""},
		{"stop", Request{Type: Stop}, []string{"stop"}, ""},
		{"toggle", Request{Type: Toggle}, []string{"toggle"}, ""},
		{"prefixed", Request{Type: "kokoro:pause"}, []string{"pause"}, ""},
		{"play button alias", Request{Type: "kokoro:playButtonPressed"}, []string{"toggle"}, ""},
		{"jump", Request{Type: Jump, Index: intp(2)}, []string{"jump"}, ""},
		{"jump to zero", Request{Type: Jump, Index: intp(0)}, []string{"jump"}, ""},
		{"jump without index", Request{Type: Jump}, nil, "missing argument"},
		{"set speed", Request{Type: SetSpeed, Speed: 1.5}, []string{"setSpeed"}, ""},
		{"set speed without speed", Request{Type: SetSpeed}, nil, "missing argument"},
		{"clear cache", Request{Type: ClearCache}, []string{"clearCache"}, ""},
		{"unknown", Request{Type: "dance"}, nil, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeReader()
			d := NewDispatcher(r, &fakeSpeech{voices: []string{"af_heart", "bf_emma"}})

			resp := d.Handle(context.Background(), Request{ID: "7", Type: tt.req.Type, Index: tt.req.Index, Speed: tt.req.Speed})
			if resp.ID != "7" {
				t.Errorf("ID = %q", resp.ID)
			}
			if tt.wantErr == "" && (!resp.OK || resp.Error != "") {
				t.Errorf("resp = %+v, want ok", resp)
			}
			if tt.wantErr != "" && (resp.OK || !strings.Contains(resp.Error, tt.wantErr)) {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantErr)
			}
			if resp.Index != 3 || resp.Total != 7 {
				t.Errorf("snapshot not attached: %+v", resp)
			}
			if got := r.Calls(); strings.Join(got, ",") != strings.Join(tt.wantCalls, ",") {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestDispatcherReaderError(t *testing.T) {
	r := newFakeReader()
	r.err = reader.ErrNothingToRead
	d := NewDispatcher(r, nil)

	resp := d.Handle(context.Background(), Request{Type: Start})
	if resp.OK || resp.Error != reader.ErrNothingToRead.Error() {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDispatcherStart(t *testing.T) {
	r := newFakeReader()
	d := NewDispatcher(r, &fakeSpeech{voices: []string{"af_heart", "bf_emma"}})

	resp := d.Handle(context.Background(), Request{
		Type:  Start,
		Voice: "emma",
		Speed: 1.25,
		Scope: "/html[1]/body[1]/p[2]",
	})
	if !resp.OK {
		t.Fatalf("start failed: %s", resp.Error)
	}
	if got := r.Settings(); got.Voice != "bf_emma" || got.Speed != 1.25 {
		t.Errorf("settings = %+v", got)
	}
	if r.scope.String() != "/html[1]/body[1]/p[2]" {
		t.Errorf("scope = %s", r.scope)
	}
	if resp.State != reader.Playing {
		t.Errorf("state = %v", resp.State)
	}

	resp = d.Handle(context.Background(), Request{Type: Start, Scope: "not a path"})
	if resp.OK {
		t.Error("bad scope accepted")
	}
}

func TestDispatcherSetVoice(t *testing.T) {
	tests := []struct {
		name      string
		speech    Speech
		voice     string
		wantVoice string
		wantCalls []string
		wantErr   bool
	}{
		{"new voice clears cache", &fakeSpeech{voices: []string{"af_heart", "bf_emma"}}, "bf_emma", "bf_emma", []string{"setVoice", "clearCache"}, false},
		{"same voice keeps cache", &fakeSpeech{voices: []string{"af_heart", "bf_emma"}}, "af_heart", "af_heart", nil, false},
		{"fuzzy", &fakeSpeech{voices: []string{"af_heart", "bf_emma"}}, "Emma", "bf_emma", []string{"setVoice", "clearCache"}, false},
		{"no match", &fakeSpeech{voices: []string{"af_heart", "bf_emma"}}, "zzzzqx", "af_heart", nil, true},
		{"voices unavailable", &fakeSpeech{err: errors.New("worker gone")}, "xx_custom", "xx_custom", []string{"setVoice", "clearCache"}, false},
		{"no speech", nil, "xx_custom", "xx_custom", []string{"setVoice", "clearCache"}, false},
		{"empty", &fakeSpeech{}, "", "af_heart", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeReader()
			d := NewDispatcher(r, tt.speech)
			resp := d.Handle(context.Background(), Request{Type: SetVoice, Voice: tt.voice})
			if resp.OK == tt.wantErr {
				t.Fatalf("resp = %+v, wantErr %v", resp, tt.wantErr)
			}
			if got := r.Settings().Voice; got != tt.wantVoice {
				t.Errorf("voice = %q, want %q", got, tt.wantVoice)
			}
			if got := r.Calls(); strings.Join(got, ",") != strings.Join(tt.wantCalls, ",") {
				t.Errorf("calls = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestDispatcherVoicesAndStatus(t *testing.T) {
	speech := &fakeSpeech{voices: []string{"bf_emma", "af_heart"}, status: bridge.Ready}
	d := NewDispatcher(newFakeReader(), speech)
	ctx := context.Background()

	resp := d.Handle(ctx, Request{Type: ListVoices})
	if !resp.OK || len(resp.Voices) != 2 || resp.Voices[0].ID != "af_heart" {
		t.Errorf("voices = %+v", resp.Voices)
	}

	resp = d.Handle(ctx, Request{Type: GetModelStatus})
	if resp.Ready == nil || !*resp.Ready {
		t.Errorf("ready = %v, want true", resp.Ready)
	}

	speech.status = bridge.NotReady
	resp = d.Handle(ctx, Request{Type: GetModelStatus})
	if resp.Ready == nil || *resp.Ready {
		t.Errorf("ready = %v, want false", resp.Ready)
	}

	speech.err = errors.New("boom")
	if resp := d.Handle(ctx, Request{Type: ListVoices}); resp.OK {
		t.Error("voice listing error swallowed")
	}
}

func TestHandleJSON(t *testing.T) {
	d := NewDispatcher(newFakeReader(), nil)
	ctx := context.Background()

	var resp map[string]any
	if err := json.Unmarshal(d.HandleJSON(ctx, []byte(`{"id":"1","type":"getState"}`)), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["ok"] != true || resp["id"] != "1" || resp["state"] != "idle" {
		t.Errorf("resp = %v", resp)
	}
	settings, _ := resp["settings"].(map[string]any)
	if settings["voice"] != "af_heart" {
		t.Errorf("settings = %v", resp["settings"])
	}

	resp = nil
	if err := json.Unmarshal(d.HandleJSON(ctx, []byte(`{not json`)), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["ok"] != false || !strings.HasPrefix(resp["error"].(string), "decode request") {
		t.Errorf("resp = %v", resp)
	}
}

func TestNATSConfig(t *testing.T) {
	cfg := DefaultNATSConfig()
	if cfg.Subject() != "readaloud.command" {
		t.Errorf("Subject() = %q", cfg.Subject())
	}
	if _, err := ConnectNATS(NATSConfig{}); err == nil {
		t.Error("empty URL accepted")
	}
}

func TestNATSHandleWithoutReply(t *testing.T) {
	r := newFakeReader()
	s := NewNATSService(context.Background(), DefaultNATSConfig(), nil, NewDispatcher(r, nil))
	defer s.Close()

	s.handleMsg(&nats.Msg{Subject: "readaloud.command", Data: []byte(`{"type":"stop"}`)})
	if got := r.Calls(); len(got) != 1 || got[0] != "stop" {
		t.Errorf("calls = %v", got)
	}
}
