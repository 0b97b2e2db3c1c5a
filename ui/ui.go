// Package ui is the terminal reader: it shows the document as a list of
// blocks, follows the block being spoken and drives the reader through the
// same commands a remote host would send.
package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dgnsrekt/readaloud/internal/reader"
	"github.com/dgnsrekt/readaloud/internal/rpc"
	"github.com/dgnsrekt/readaloud/internal/voice"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	te "github.com/muesli/termenv"
)

const ellipsis = "…"

// Handler runs host commands. *rpc.Dispatcher implements it.
type Handler interface {
	Handle(ctx context.Context, req rpc.Request) rpc.Response
}

// Session is what the TUI drives.
type Session struct {
	Handler Handler
	// Queue returns the current queue. Nil keeps showing Preview.
	Queue func() []queue.Info
	// Preview is shown before the first Start.
	Preview []queue.Info
	Events  *Events
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, s Session) *tea.Program {
	if te.EnvColorProfile() == te.Ascii {
		cfg.ActiveColor = ""
	}
	log.Debug("starting reader ui", "segments", len(s.Preview), "alt_screen", cfg.AltScreen)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	if cfg.InputTTY {
		opts = append(opts, tea.WithInputTTY())
	}
	return tea.NewProgram(newModel(cfg, s), opts...)
}

type (
	responseMsg struct {
		req  rpc.Request
		resp rpc.Response
	}
	statusMessageTimeoutMsg struct{ id int }
)

type model struct {
	cfg     Config
	session Session
	keys    keyMap

	width, height int
	viewport      viewport.Model
	help          help.Model
	spinner       spinner.Model
	showHelp      bool
	ready         bool

	segments []queue.Info
	starts   []int
	snap     reader.Snapshot
	voices   []voice.Voice
	busy     bool

	statusMessage string
	statusIsError bool
	statusID      int
}

func newModel(cfg Config, s Session) model {
	if cfg.SpeedStep <= 0 {
		cfg.SpeedStep = 0.25
	}
	if cfg.StatusExpiry <= 0 {
		cfg.StatusExpiry = 3 * time.Second
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	return model{
		cfg:      cfg,
		session:  s,
		keys:     newKeyMap(),
		help:     help.New(),
		spinner:  sp,
		showHelp: cfg.ShowHelp,
		segments: s.Preview,
		snap:     reader.Snapshot{Index: -1, Settings: reader.DefaultSettings()},
		viewport: viewport.New(80, 20),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.session.Events.wait(),
		m.send(rpc.Request{Type: rpc.GetState}),
		m.send(rpc.Request{Type: rpc.ListVoices}),
	)
}

// send runs req off the UI goroutine.
func (m model) send(req rpc.Request) tea.Cmd {
	h := m.session.Handler
	return func() tea.Msg {
		return responseMsg{req: req, resp: h.Handle(context.Background(), req)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		m.render()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case responseMsg:
		return m.handleResponse(msg)

	case stateChangedMsg:
		m.snap.State = msg.to
		if msg.to == reader.Idle {
			m.snap.Index = -1
		}
		m.render()
		return m, m.session.Events.wait()

	case segmentMsg:
		m.snap.Index = msg.Index
		if msg.Index >= len(m.segments) {
			m.refreshQueue()
		} else {
			m.segments[msg.Index] = queue.Info(msg)
		}
		m.busy = false
		m.render()
		m.follow()
		return m, m.session.Events.wait()

	case readerErrMsg:
		cmd := m.showStatus(msg.err.Error(), true)
		return m, tea.Batch(cmd, m.session.Events.wait())

	case finishedMsg:
		m.snap.Index = -1
		m.render()
		cmd := m.showStatus("Finished reading", false)
		return m, tea.Batch(cmd, m.session.Events.wait())

	case statusMessageTimeoutMsg:
		if msg.id == m.statusID {
			m.statusMessage = ""
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		h := m.session.Handler
		return m, func() tea.Msg {
			h.Handle(context.Background(), rpc.Request{Type: rpc.Stop})
			return tea.QuitMsg{}
		}

	case key.Matches(msg, m.keys.Toggle):
		if m.snap.State == reader.Idle {
			m.busy = true
			return m, tea.Batch(m.send(rpc.Request{Type: rpc.Toggle}), m.spinner.Tick)
		}
		return m, m.send(rpc.Request{Type: rpc.Toggle})

	case key.Matches(msg, m.keys.Stop):
		return m, m.send(rpc.Request{Type: rpc.Stop})

	case key.Matches(msg, m.keys.Next):
		cmd := m.jump(m.snap.Index + 1)
		return m, cmd

	case key.Matches(msg, m.keys.Prev):
		cmd := m.jump(max(m.snap.Index-1, 0))
		return m, cmd

	case key.Matches(msg, m.keys.Faster):
		return m, m.speed(m.snap.Settings.Speed + m.cfg.SpeedStep)

	case key.Matches(msg, m.keys.Slower):
		return m, m.speed(m.snap.Settings.Speed - m.cfg.SpeedStep)

	case key.Matches(msg, m.keys.Voice):
		next, ok := m.nextVoice()
		if !ok {
			return m, m.showStatus("No voices available", true)
		}
		return m, m.send(rpc.Request{Type: rpc.SetVoice, Voice: next})

	case key.Matches(msg, m.keys.Clear):
		return m, m.send(rpc.Request{Type: rpc.ClearCache})

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		m.layout()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// jump reads from segment i. Before the first Start there is no queue to
// jump in, so it starts instead.
func (m *model) jump(i int) tea.Cmd {
	if m.snap.Total == 0 {
		m.busy = true
		return tea.Batch(m.send(rpc.Request{Type: rpc.Start}), m.spinner.Tick)
	}
	if i >= m.snap.Total {
		return nil
	}
	return m.send(rpc.Request{Type: rpc.Jump, Index: &i})
}

func (m model) speed(s float64) tea.Cmd {
	s = math.Round(s*100) / 100
	s = min(max(s, reader.MinSpeed), reader.MaxSpeed)
	return m.send(rpc.Request{Type: rpc.SetSpeed, Speed: s})
}

// nextVoice returns the voice after the current one, wrapping around.
func (m model) nextVoice() (string, bool) {
	if len(m.voices) == 0 {
		return "", false
	}
	for i, v := range m.voices {
		if v.ID == m.snap.Settings.Voice {
			return m.voices[(i+1)%len(m.voices)].ID, true
		}
	}
	return m.voices[0].ID, true
}

func (m model) handleResponse(msg responseMsg) (tea.Model, tea.Cmd) {
	resp := msg.resp
	m.busy = false
	m.snap = reader.Snapshot{
		State:    resp.State,
		Index:    resp.Index,
		Total:    resp.Total,
		Settings: resp.Settings,
	}
	if resp.Voices != nil {
		m.voices = resp.Voices
	}
	if m.snap.Total != len(m.segments) || msg.req.Type == rpc.Start || msg.req.Type == rpc.Toggle {
		m.refreshQueue()
	}
	m.render()

	if !resp.OK {
		return m, m.showStatus(resp.Error, true)
	}
	switch msg.req.Type {
	case rpc.SetVoice:
		return m, m.showStatus("Voice: "+voice.Parse(resp.Settings.Voice).Label(), false)
	case rpc.SetSpeed:
		return m, m.showStatus(fmt.Sprintf("Speed: %g×", resp.Settings.Speed), false)
	case rpc.ClearCache:
		return m, m.showStatus("Audio cleared", false)
	}
	return m, nil
}

func (m *model) refreshQueue() {
	if m.session.Queue == nil {
		return
	}
	if segs := m.session.Queue(); len(segs) > 0 {
		m.segments = segs
	}
}

func (m *model) showStatus(text string, isError bool) tea.Cmd {
	m.statusID++
	m.statusMessage = text
	m.statusIsError = isError
	id := m.statusID
	return tea.Tick(m.cfg.StatusExpiry, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg{id: id}
	})
}

func (m *model) layout() {
	if !m.ready {
		return
	}
	helpHeight := 0
	if m.showHelp {
		helpHeight = lipgloss.Height(m.help.View(m.keys))
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-1-helpHeight, 1)
	m.help.Width = m.width
}

func (m *model) contentWidth() int {
	w := m.width
	if m.cfg.Width > 0 && int(m.cfg.Width) < w {
		w = int(m.cfg.Width)
	}
	return w
}

func (m *model) render() {
	content, starts := renderSegments(m.segments, m.snap.Index, m.contentWidth(), activeStyle(m.cfg.ActiveColor))
	if len(m.segments) == 0 {
		content = dimStyle("\n  Nothing to read.")
	}
	m.starts = starts
	m.viewport.SetContent(content)
}

// follow scrolls so the current segment sits near the top third.
func (m *model) follow() {
	i := m.snap.Index
	if i < 0 || i >= len(m.starts) {
		return
	}
	line := m.starts[i]
	if line >= m.viewport.YOffset && line < m.viewport.YOffset+m.viewport.Height*2/3 {
		return
	}
	m.viewport.SetYOffset(max(line-m.viewport.Height/3, 0))
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.viewport.View() + "\n")
	m.statusBarView(&b)
	if m.showHelp {
		b.WriteString("\n" + m.help.View(m.keys))
	}
	return b.String()
}

func (m model) statusBarView(b *strings.Builder) {
	logo := logoStyle(" readaloud ")

	icon := "■"
	switch m.snap.State {
	case reader.Playing:
		icon = "▶"
	case reader.Paused:
		icon = "⏸"
	}
	if m.busy {
		icon = m.spinner.View()
	}
	position := "-"
	if m.snap.Index >= 0 && m.snap.Total > 0 {
		position = fmt.Sprintf("%d/%d", m.snap.Index+1, m.snap.Total)
	}
	state := lipgloss.NewStyle().
		Foreground(stateColor(m.snap.State == reader.Playing, m.snap.State == reader.Paused)).
		Background(statusBarBg).
		Render(fmt.Sprintf(" %s %s ", icon, position))

	voiceLabel := "default voice"
	if m.snap.Settings.Voice != "" {
		voiceLabel = voice.Parse(m.snap.Settings.Voice).Name
	}
	voiceLabel = runewidth.Truncate(voiceLabel, 18, ellipsis)
	settings := statusBarHelpStyle(fmt.Sprintf(" %s · %g× ", voiceLabel, m.snap.Settings.Speed))
	helpNote := statusBarHelpStyle(" ? Help ")

	note := m.cfg.Title
	style := statusBarNoteStyle
	if m.statusMessage != "" {
		note = m.statusMessage
		style = statusMessageStyle
		if m.statusIsError {
			style = errorMessageStyle
		}
	}
	fixed := ansi.PrintableRuneWidth(logo) + ansi.PrintableRuneWidth(state) +
		ansi.PrintableRuneWidth(settings) + ansi.PrintableRuneWidth(helpNote)
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, m.width-fixed)), ellipsis) //nolint:gosec
	padding := strings.Repeat(" ", max(0, m.width-fixed-ansi.PrintableRuneWidth(note)))

	fmt.Fprintf(b, "%s%s%s%s%s%s", logo, state, style(note), style(padding), settings, helpNote)
}
