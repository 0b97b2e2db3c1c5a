// Package protocol defines the JSON-lines wire format spoken between the
// reader and its synthesis worker.
//
// Every message is one JSON object per line. The worker announces itself
// with a ready message before it reads any request:
//
//	{"type":"ready"}
//
// Requests carry a correlation id that the matching response echoes:
//
//	{"id":7,"type":"generate","payload":{"text":"Hello.","voice":"af_heart"}}
//	{"id":7,"ok":true,"audio":"<base64 pcm16le>","sample_rate":24000}
//
// Responses may arrive in any order.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Type names a request kind.
type Type string

const (
	TypeReady    Type = "ready"
	TypeInit     Type = "init"
	TypeVoices   Type = "voices"
	TypeGenerate Type = "generate"
	TypeStatus   Type = "status"
)

// NotInitialized is the error text a worker returns for requests that need
// a loaded model before init succeeded.
const NotInitialized = "model not initialized"

// Default model settings sent with init.
const (
	DefaultModel  = "onnx-community/Kokoro-82M-v1.0-ONNX"
	DefaultDtype  = "fp32"
	DefaultDevice = "webgpu"
)

// ModelConfig is the init payload.
type ModelConfig struct {
	Model   string            `json:"model" yaml:"model" mapstructure:"model"`
	Dtype   string            `json:"dtype" yaml:"dtype" mapstructure:"dtype"`
	Device  string            `json:"device" yaml:"device" mapstructure:"device"`
	Options map[string]string `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
}

// DefaultModelConfig returns the model settings used when none are configured.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{Model: DefaultModel, Dtype: DefaultDtype, Device: DefaultDevice}
}

// GeneratePayload asks for one utterance.
type GeneratePayload struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Request is a message from the reader to the worker.
type Request struct {
	ID      uint64          `json:"id"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRequest builds a request, encoding payload when it is not nil.
func NewRequest(id uint64, typ Type, payload any) (Request, error) {
	req := Request{ID: id, Type: typ}
	if payload == nil {
		return req, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	req.Payload = raw
	return req, nil
}

// Decode unmarshals the request payload into v.
func (r Request) Decode(v any) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("%s request has no payload", r.Type)
	}
	return json.Unmarshal(r.Payload, v)
}

// Response is a message from the worker. Audio is encoded as base64 by
// encoding/json.
type Response struct {
	ID         uint64   `json:"id,omitempty"`
	Type       Type     `json:"type,omitempty"`
	OK         bool     `json:"ok"`
	Error      string   `json:"error,omitempty"`
	Voices     []string `json:"voices,omitempty"`
	Audio      []byte   `json:"audio,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	Ready      bool     `json:"ready,omitempty"`
}

// Ready is the handshake line.
func Ready() Response {
	return Response{Type: TypeReady, OK: true}
}

// Failure builds an error response for id.
func Failure(id uint64, err error) Response {
	return Response{ID: id, Error: err.Error()}
}
