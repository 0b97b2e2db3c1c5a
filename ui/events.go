package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dgnsrekt/readaloud/internal/reader"
)

type (
	stateChangedMsg struct{ from, to reader.State }
	segmentMsg      queue.Info
	readerErrMsg    struct{ err error }
	finishedMsg     struct{}
)

// Events carries reader hooks into the Bubble Tea loop.
type Events struct {
	ch chan tea.Msg
}

// NewEvents returns an empty event stream.
func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, 64)}
}

// Options are the reader hooks that feed the stream.
func (e *Events) Options() []reader.Option {
	return []reader.Option{
		reader.OnStateChange(func(from, to reader.State) { e.send(stateChangedMsg{from, to}) }),
		reader.OnSegment(func(info queue.Info) { e.send(segmentMsg(info)) }),
		reader.OnError(func(err error) { e.send(readerErrMsg{err}) }),
		reader.OnFinished(func() { e.send(finishedMsg{}) }),
	}
}

// send never blocks the reader. A full stream drops the event; the next
// response refreshes the state anyway.
func (e *Events) send(msg tea.Msg) {
	select {
	case e.ch <- msg:
	default:
		log.Debug("ui: event dropped", "msg", msg)
	}
}

func (e *Events) wait() tea.Cmd {
	if e == nil {
		return nil
	}
	return func() tea.Msg { return <-e.ch }
}
