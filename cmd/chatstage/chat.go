// Interactive conversation feed built on bubbletea. The feed polls the store
// while a reply turn delivers, so messages appear one by one at typing pace,
// the same way the headless reply command persists them.
package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"chatstage/internal/lorebook"
	"chatstage/internal/orchestrator"
	"chatstage/internal/types"
)

var chatCmd = &cobra.Command{
	Use:   "chat [conversation]",
	Short: "Open the interactive conversation feed",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := ""
		if len(args) > 0 {
			ref = args[0]
		}
		return runChatWith(cmd.Context(), ref)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context) error {
	return runChatWith(ctx, "")
}

func runChatWith(ctx context.Context, ref string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := pickConversation(ctx, a, ref)
	if err != nil {
		return err
	}

	// Hot-reload lorebook edits while the feed is open.
	if a.cfg.LorebookPath != "" {
		if w, werr := lorebook.NewWatcher(a.store, a.cfg.LorebookPath); werr == nil {
			if werr := w.Start(ctx); werr == nil {
				defer w.Stop()
			}
		}
	}

	m := newChatModel(a, conv)
	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

// pickConversation resolves ref, or falls back to the most recently active
// conversation.
func pickConversation(ctx context.Context, a *app, ref string) (types.Conversation, error) {
	if ref != "" {
		return resolveConversation(ctx, a.store, ref)
	}
	all, err := a.store.ListConversations(ctx)
	if err != nil {
		return types.Conversation{}, err
	}
	if len(all) == 0 {
		return types.Conversation{}, fmt.Errorf("no conversations yet; run: chatstage seed")
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastActiveAt.After(all[j].LastActiveAt) })
	return all[0], nil
}

type chatStyles struct {
	header lipgloss.Style
	self   lipgloss.Style
	other  lipgloss.Style
	notice lipgloss.Style
	stamp  lipgloss.Style
}

func defaultChatStyles() chatStyles {
	return chatStyles{
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")).Padding(0, 1),
		self:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		other:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		notice: lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true),
		stamp:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

type chatModel struct {
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    chatStyles

	app  *app
	conv types.Conversation

	messages []types.Message
	notice   string
	busy     bool
	err      error
	width    int
	height   int
	ready    bool
}

// Messages for tea updates
type (
	feedMsg     []types.Message
	turnDoneMsg struct {
		result orchestrator.TurnResult
		err    error
	}
	compactDoneMsg struct {
		digest string
		err    error
	}
	tickMsg time.Time
)

func newChatModel(a *app, conv types.Conversation) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Say something... (/compact to summarize, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 2048

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		textinput: ti,
		spinner:   sp,
		styles:    defaultChatStyles(),
		app:       a,
		conv:      conv,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refreshFeed(), m.tick())
}

func (m chatModel) refreshFeed() tea.Cmd {
	return func() tea.Msg {
		msgs, err := m.app.store.ListMessages(context.Background(), m.conv.ID, 200)
		if err != nil {
			return turnDoneMsg{err: err}
		}
		return feedMsg(msgs)
	}
}

func (m chatModel) tick() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m chatModel) requestReply() tea.Cmd {
	return func() tea.Msg {
		result, err := m.app.orch.RequestGroupReply(context.Background(), m.conv.ID)
		return turnDoneMsg{result: result, err: err}
	}
}

func (m chatModel) requestCompaction() tea.Cmd {
	return func() tea.Msg {
		digest, err := m.app.orch.RequestMemoryCompaction(context.Background(), m.conv.ID, 0)
		return compactDoneMsg{digest: digest, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		headerHeight := 2
		footerHeight := 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.textinput.Width = msg.Width - 4
		m.viewport.SetContent(m.renderFeed())
		m.viewport.GotoBottom()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textinput.Value())
			if input == "" || m.busy {
				break
			}
			m.textinput.Reset()
			m.err = nil
			m.notice = ""
			if input == "/compact" {
				m.busy = true
				m.notice = "compacting memory..."
				cmds = append(cmds, m.spinner.Tick, m.requestCompaction())
				break
			}
			if err := appendSelfMessage(context.Background(), m.app.store, m.conv, input); err != nil {
				m.err = err
				break
			}
			m.busy = true
			cmds = append(cmds, m.spinner.Tick, m.refreshFeed(), m.requestReply())
		}

	case tickMsg:
		cmds = append(cmds, m.tick())
		if m.busy {
			// Pick up messages landing mid-delivery.
			cmds = append(cmds, m.refreshFeed())
		}

	case feedMsg:
		m.messages = msg
		m.viewport.SetContent(m.renderFeed())
		m.viewport.GotoBottom()

	case turnDoneMsg:
		m.busy = false
		switch {
		case errors.Is(msg.err, types.ErrBusy):
			m.notice = "still delivering, hang on"
		case msg.err != nil:
			m.err = msg.err
		case msg.result.ParseEmpty:
			m.notice = "(no one replied)"
		}
		cmds = append(cmds, m.refreshFeed())

	case compactDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.notice = "memory updated"
		}

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.textinput, cmd = m.textinput.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m chatModel) renderFeed() string {
	if len(m.messages) == 0 {
		return m.styles.notice.Render("(no messages yet)")
	}
	var b strings.Builder
	for _, msg := range m.messages {
		style := m.styles.other
		if msg.IsSelf() {
			style = m.styles.self
		}
		content := msg.Content
		if msg.Kind != types.KindText {
			content = types.RenderMarker(msg)
		}
		b.WriteString(m.styles.stamp.Render(msg.CreatedAt.Format("15:04")))
		b.WriteString(" ")
		b.WriteString(style.Render(msg.AuthorName+":"))
		b.WriteString(" ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

func (m chatModel) View() string {
	if !m.ready {
		return "loading..."
	}

	header := m.styles.header.Render(fmt.Sprintf("%s — %s", m.conv.Name, m.conv.Kind))

	status := ""
	switch {
	case m.busy:
		status = m.spinner.View() + " typing..."
	case m.err != nil:
		status = m.styles.notice.Render("error: " + m.err.Error())
	case m.notice != "":
		status = m.styles.notice.Render(m.notice)
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, m.viewport.View(), status, m.textinput.View())
}
