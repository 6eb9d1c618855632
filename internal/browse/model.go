// Package browse is the interactive message list: a bubbletea model that
// shows the active channel of a session, follows new messages, and opens
// the references the user picks.
package browse

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/concord-chat/refnav/internal/client"
	"github.com/concord-chat/refnav/internal/highlight"
	"github.com/concord-chat/refnav/internal/models"
	"github.com/concord-chat/refnav/internal/navigation"
	"github.com/concord-chat/refnav/internal/protocol"
	"github.com/concord-chat/refnav/internal/render"
	"github.com/concord-chat/refnav/internal/resolve"
)

// chrome is the number of lines around the viewport: title, status, help
const chrome = 3

// Backlog returns the recent messages of a channel, oldest first
type Backlog func(channelID string) ([]*models.Message, error)

// EventMsg carries a gateway event the session has already applied
type EventMsg struct {
	Event *protocol.Message
}

// NoticeMsg carries a session notice
type NoticeMsg struct {
	Notice client.Notice
}

// NavigatedMsg reports the outcome of activating a span
type NavigatedMsg struct {
	Decision navigation.Decision
}

// BacklogMsg delivers a channel's recent messages
type BacklogMsg struct {
	ChannelID string
	Messages  []*models.Message
	Err       error
}

// pick is one selectable span of the message list
type pick struct {
	messageID string
	index     int // into the message's Display.Spans
	span      render.Span
	line      int
}

// Model is the bubbletea model of the message browser
type Model struct {
	ctx     context.Context
	sess    *client.Session
	painter *highlight.Painter
	backlog Backlog

	viewport viewport.Model
	ready    bool
	width    int
	height   int

	picks       []pick
	selected    int // into picks, -1 for none
	starts      map[string]int
	status      string
	statusError bool
}

// Option configures a Model
type Option func(*Model)

// WithBacklog loads recent messages whenever a channel opens without a
// target message
func WithBacklog(b Backlog) Option {
	return func(m *Model) { m.backlog = b }
}

// New creates a browser over sess. Activations run on ctx.
func New(ctx context.Context, sess *client.Session, painter *highlight.Painter, opts ...Option) *Model {
	m := &Model{
		ctx:      ctx,
		sess:     sess,
		painter:  painter,
		selected: -1,
		starts:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitForNotice()}
	if !m.sess.Suppressing() {
		cmds = append(cmds, m.loadBacklog(m.sess.Messages().Active()))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd := m.handleKeyPress(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		if tea.MouseEvent(msg).IsWheel() {
			m.sess.UserScrolled()
		}
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateViewportSize()

	case EventMsg:
		m.handleEvent(msg.Event)

	case NoticeMsg:
		m.handleNotice(msg.Notice)
		cmds = append(cmds, m.waitForNotice())

	case NavigatedMsg:
		if cmd := m.handleDecision(msg.Decision); cmd != nil {
			cmds = append(cmds, cmd)
		}

	case BacklogMsg:
		m.handleBacklog(msg)
	}

	return m, tea.Batch(cmds...)
}

// View implements tea.Model
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.painter.Notice(m.title()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	switch {
	case m.status == "":
	case m.statusError:
		b.WriteString(m.painter.Error(m.status))
	default:
		b.WriteString(m.painter.Notice(m.status))
	}
	b.WriteString("\n")
	b.WriteString("↑/↓ scroll  tab select  enter open  q quit")
	return b.String()
}

// Status returns the status line and whether it reports an error
func (m *Model) Status() (string, bool) {
	return m.status, m.statusError
}

// Selected returns the selected span, if any
func (m *Model) Selected() (render.Span, bool) {
	if m.selected < 0 || m.selected >= len(m.picks) {
		return render.Span{}, false
	}
	return m.picks[m.selected].span, true
}

// Viewport returns the message list viewport
func (m *Model) Viewport() viewport.Model {
	return m.viewport
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return tea.Quit

	case "up", "k":
		m.viewport.LineUp(1)
		m.sess.UserScrolled()

	case "down", "j":
		m.viewport.LineDown(1)
		m.sess.UserScrolled()

	case "pgup":
		m.viewport.HalfViewUp()
		m.sess.UserScrolled()

	case "pgdown":
		m.viewport.HalfViewDown()
		m.sess.UserScrolled()

	case "home", "g":
		m.viewport.GotoTop()
		m.sess.UserScrolled()

	case "end", "G":
		m.viewport.GotoBottom()
		m.sess.UserScrolled()

	case "tab":
		m.moveSelection(1)

	case "shift+tab":
		m.moveSelection(-1)

	case "enter":
		if span, ok := m.Selected(); ok {
			return m.activate(span)
		}
	}
	return nil
}

func (m *Model) moveSelection(delta int) {
	if len(m.picks) == 0 {
		return
	}
	switch {
	case m.selected < 0 && delta > 0:
		m.selected = 0
	case m.selected < 0:
		m.selected = len(m.picks) - 1
	default:
		m.selected = (m.selected + delta + len(m.picks)) % len(m.picks)
	}
	m.updateChatContent()

	// bringing the selection into view is a deliberate scroll
	line := m.picks[m.selected].line
	if line < m.viewport.YOffset || line >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(line)
		m.sess.UserScrolled()
	}
}

func (m *Model) activate(span render.Span) tea.Cmd {
	ctx, sess := m.ctx, m.sess
	return func() tea.Msg {
		return NavigatedMsg{Decision: sess.Activate(ctx, span)}
	}
}

func (m *Model) waitForNotice() tea.Cmd {
	notices := m.sess.Notices()
	return func() tea.Msg {
		n, ok := <-notices
		if !ok {
			return nil
		}
		return NoticeMsg{Notice: n}
	}
}

func (m *Model) loadBacklog(channelID string) tea.Cmd {
	if m.backlog == nil || channelID == "" {
		return nil
	}
	backlog := m.backlog
	return func() tea.Msg {
		msgs, err := backlog(channelID)
		return BacklogMsg{ChannelID: channelID, Messages: msgs, Err: err}
	}
}

func (m *Model) handleEvent(ev *protocol.Message) {
	if ev == nil || ev.Op != protocol.OpDispatch {
		return
	}
	switch ev.Type {
	case protocol.EventMessageCreate:
		var p protocol.MessageCreatePayload
		if err := ev.Decode(&p); err != nil || p.Message == nil {
			return
		}
		if p.ChannelID != m.sess.Messages().Active() {
			return
		}
		m.updateChatContent()
		// a protected navigation keeps the list where it is
		if !m.sess.Suppressing() {
			m.scrollToBottom()
		}

	case protocol.EventMessageUpdate, protocol.EventMessageDelete, protocol.EventUserUpdate,
		protocol.EventChannelUpdate, protocol.EventChannelDelete, protocol.EventEmojiCreate:
		m.updateChatContent()
	}
}

func (m *Model) handleNotice(n client.Notice) {
	switch n.Kind {
	case client.NoticeTimeout:
		m.status = n.Text
		m.statusError = true
		m.updateChatContent()
	case client.NoticeResolved:
		m.status = ""
		m.statusError = false
		m.updateChatContent()
		if line, ok := m.starts[n.Window.TargetMessageID]; ok {
			m.viewport.SetYOffset(line)
		}
	}
}

func (m *Model) handleDecision(dec navigation.Decision) tea.Cmd {
	m.statusError = false
	switch dec.Kind {
	case navigation.DecisionChannel:
		m.status = ""
		m.selected = -1
		m.updateChatContent()
		if dec.Target.MessageID != "" {
			// the session loads the page around the target
			return nil
		}
		m.scrollToBottom()
		return m.loadBacklog(dec.Target.ChannelID)

	case navigation.DecisionDiscover:
		m.status = "nothing to open here, showing Discover (" + dec.Reason + ")"

	case navigation.DecisionUserProfile:
		name := dec.UserID
		if u, ok := m.sess.Catalog().GetUser(dec.UserID); ok {
			name = u.GetDisplayName()
		}
		m.status = "profile: " + name

	case navigation.DecisionInvite:
		m.status = "invite " + dec.InviteCode + " awaits acceptance"
	}
	return nil
}

func (m *Model) handleBacklog(msg BacklogMsg) {
	if msg.Err != nil {
		m.status = fmt.Sprintf("failed to load messages: %v", msg.Err)
		m.statusError = true
		return
	}
	if !m.sess.Messages().LoadActive(msg.ChannelID, msg.Messages, nil) {
		return
	}
	m.updateChatContent()
	if !m.sess.Suppressing() {
		m.scrollToBottom()
	}
}

func (m *Model) title() string {
	id := m.sess.Messages().Active()
	if id == "" {
		return "no channel"
	}
	ch, ok := resolve.LookupChannel(m.sess.Catalog(), m.sess.Catalog(), id)
	if !ok {
		return id
	}
	return "#" + resolve.ChannelDisplayName(ch)
}

func (m *Model) authorName(userID string) string {
	if u, ok := m.sess.Catalog().GetUser(userID); ok {
		return u.GetDisplayName()
	}
	return userID
}

// updateChatContent rebuilds the viewport content from the active channel.
// The selection survives when its span is still shown.
func (m *Model) updateChatContent() {
	var keep *pick
	if m.selected >= 0 && m.selected < len(m.picks) {
		p := m.picks[m.selected]
		keep = &p
	}

	m.picks = m.picks[:0]
	m.selected = -1
	m.starts = make(map[string]int)

	var content strings.Builder
	line := 0
	for _, msg := range m.sess.Messages().Messages(m.sess.Messages().Active()) {
		m.starts[msg.ID] = line

		header := fmt.Sprintf("%s  %s", m.authorName(msg.AuthorID), msg.CreatedAt.Format("15:04"))
		if msg.IsReply() {
			header += "  ↪ reply"
		}
		if msg.IsEdited() {
			header += "  (edited)"
		}
		content.WriteString(header)
		content.WriteString("\n")
		line++

		d := m.sess.Render(msg.Content)
		selectedIndex := -1
		for i, s := range d.Spans {
			if s.Action == render.ActionNone {
				continue
			}
			p := pick{
				messageID: msg.ID,
				index:     i,
				span:      s,
				line:      line + strings.Count(d.Text[:s.Range.Start], "\n"),
			}
			if keep != nil && keep.messageID == p.messageID && keep.index == p.index {
				m.selected = len(m.picks)
				selectedIndex = i
			}
			m.picks = append(m.picks, p)
		}
		content.WriteString(m.painter.PaintSelected(d, selectedIndex))
		content.WriteString("\n")
		line += strings.Count(d.Text, "\n") + 1
	}

	m.viewport.SetContent(content.String())
}

// scrollToBottom scrolls the message list to the newest message
func (m *Model) scrollToBottom() {
	m.viewport.GotoBottom()
}

// updateViewportSize updates viewport dimensions based on window size
func (m *Model) updateViewportSize() {
	height := m.height - chrome
	if height < 1 {
		height = 1
	}
	offset := m.viewport.YOffset
	m.viewport = viewport.New(m.width, height)
	m.updateChatContent()
	if !m.ready {
		m.ready = true
		if !m.sess.Suppressing() {
			m.scrollToBottom()
		}
		return
	}
	m.viewport.SetYOffset(offset)
}
