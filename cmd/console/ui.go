package main

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/situation-engine/internal/session"
	"github.com/jwebster45206/situation-engine/pkg/engine"
	"github.com/jwebster45206/situation-engine/pkg/state"
	"github.com/jwebster45206/situation-engine/pkg/storage"
)

const (
	AgentName       = "Narrator"
	PlaceHolderText = "Type an action, e.g. \"talk ranger\"..."
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	streamClient *http.Client
	view         *session.View
	logViewport  viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	notice       string
	loading      bool

	// Rule set selection state
	showRuleSetModal bool
	ruleSets         []storage.RuleSetInfo
	selectedRuleSet  int
	loadingRuleSets  bool

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int

	events chan SSEEvent

	markdown *markdownRenderer
}

type outcomeMsg struct {
	outcome *session.Outcome
	err     error
}

type sessionMsg struct {
	view *session.View
	err  error
}

type ruleSetsLoadedMsg struct {
	ruleSets []storage.RuleSetInfo
	err      error
}

type sessionCreatedMsg struct {
	view *session.View
	err  error
}

type sseEventMsg SSEEvent

type sseClosedMsg struct{ err error }

type progressTickMsg struct{}

var (
	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	factStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")). // light grey
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	trackFullStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203")) // salmon

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(cfg *ConsoleConfig, client, streamClient *http.Client) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 200
	ta.SetWidth(50)
	ta.SetHeight(2)
	ta.ShowLineNumbers = false

	logVp := viewport.New(50, 20)
	logVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:           cfg,
		client:           client,
		streamClient:     streamClient,
		textarea:         ta,
		logViewport:      logVp,
		metaViewport:     metaVp,
		showRuleSetModal: true,
		loadingRuleSets:  true,
		markdown:         &markdownRenderer{},
	}
}

func writeMetadata(v *session.View) string {
	gs := v.State
	var content strings.Builder
	content.WriteString(titleStyle.Render("SITUATION") + "\n\n")
	content.WriteString(v.Situation.Label + "\n")
	if v.Situation.Ending {
		content.WriteString(loadingStyle.Render("(ending)") + "\n")
	}
	content.WriteString("\n")

	fmt.Fprintf(&content, "Turn: %d\n", gs.Turn)
	if gs.Route != "" {
		fmt.Fprintf(&content, "Route: %s\n", gs.Route)
	}
	content.WriteString("\n")

	if len(gs.Tracks) > 0 {
		content.WriteString("Tracks:\n")
		for _, id := range sortedKeys(gs.Tracks) {
			t := gs.Tracks[id]
			content.WriteString(renderTrack(t) + "\n")
		}
		content.WriteString("\n")
	}

	if len(gs.Counters) > 0 {
		content.WriteString("Counters:\n")
		for _, k := range sortedKeys(gs.Counters) {
			fmt.Fprintf(&content, "• %s: %s\n", k, gs.Counters[k])
		}
		content.WriteString("\n")
	}

	content.WriteString("Actions:\n")
	if len(v.AvailableActions) == 0 {
		content.WriteString("None\n")
	}
	for _, a := range v.AvailableActions {
		content.WriteString("• " + a + "\n")
	}
	if len(v.Situation.Targets) > 0 {
		content.WriteString("\nYou notice:\n")
		for _, t := range v.Situation.Targets {
			content.WriteString("• " + t + "\n")
		}
	}

	content.WriteString("\n")
	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Act\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /copy: Copy session ID\n")

	return content.String()
}

// renderTrack draws a track as a small bar, e.g. "Pollution ███░░░ 3/6".
func renderTrack(t state.Track) string {
	width := min(t.Max, 10)
	filled := 0
	if t.Max > 0 {
		filled = t.Value * width / t.Max
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if t.Value >= t.Max {
		bar = trackFullStyle.Render(bar)
	}
	return fmt.Sprintf("%s %s %d/%d", t.Name, bar, t.Value, t.Max)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// writeLogContent renders the session log for the current viewport width
func (m *ConsoleUI) writeLogContent() {
	width := m.logViewport.Width - 6 // Account for left(3) + right(3) padding

	var content strings.Builder
	content.WriteString(titleStyle.Render("SITUATION ENGINE") + "\n\n")
	if m.view != nil {
		if scene := m.view.Situation.Scene; scene != "" && len(m.view.State.Log) == 0 {
			content.WriteString(m.markdown.Render(scene, width) + "\n\n")
		}
		content.WriteString("Type an action and an optional target, e.g. " + userStyle.Render("observe") + " or " + userStyle.Render("talk ranger") + ".\n\n")
	}
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(width-6, 1))) + "\n\n")

	if m.view != nil {
		for _, entry := range m.view.State.Log {
			switch entry.Kind {
			case state.LogAction:
				content.WriteString(userStyle.Render("You: ") + wordwrap.String(entry.Text, width-6) + "\n\n")
			case state.LogProcedural:
				content.WriteString(factStyle.Render(wordwrap.String("› "+entry.Text, width)) + "\n\n")
			case state.LogNarration:
				if hasMarkdown(entry.Text) {
					content.WriteString(narratorStyle.Render(AgentName+":") + "\n" + m.markdown.Render(entry.Text, width) + "\n\n")
					continue
				}
				content.WriteString(formatNarratorResponse(entry.Text, width) + "\n\n")
			}
		}
	}

	if m.notice != "" {
		content.WriteString(loadingStyle.Render(wordwrap.String(m.notice, width)) + "\n\n")
	}
	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}
	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.logViewport.SetContent(content.String())
	m.logViewport.GotoBottom()
}

func (m *ConsoleUI) resize() {
	logWidth := int(float64(m.width)*0.70) - 4
	metaWidth := m.width - logWidth - 6

	m.logViewport.Width = logWidth - 2
	m.logViewport.Height = m.height - 6
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(logWidth - 4)
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadRuleSets()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showRuleSetModal {
		return m.updateRuleSetModal(msg)
	}

	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.logViewport, vpCmd = m.logViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.ready = true
		m.writeLogContent()
		if m.view != nil {
			m.metaViewport.SetContent(writeMetadata(m.view))
		}

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.err = nil
			m.notice = ""

			if strings.HasPrefix(input, "/") && !strings.HasPrefix(strings.ToLower(input), "/fail") {
				return m.handleCommand(input)
			}

			req, err := parseAction(input, m.view.AvailableActions)
			if err != nil {
				m.notice = err.Error()
				m.writeLogContent()
				return m, nil
			}

			m.loading = true
			m.progressTick = 0
			m.writeLogContent()
			return m, tea.Batch(m.act(req), progressTick())
		}

	case outcomeMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.view = &msg.outcome.View
			if t := msg.outcome.Transition; t != nil && m.view.Situation.Ending {
				m.notice = "The story has reached an ending. You may keep exploring or quit."
			}
			m.metaViewport.SetContent(writeMetadata(m.view))
		}
		m.writeLogContent()
		return m, nil

	case sessionMsg:
		if msg.err == nil && msg.view != nil && !m.loading {
			m.view = msg.view
			m.metaViewport.SetContent(writeMetadata(m.view))
			m.writeLogContent()
		}

	case sseEventMsg:
		// Another client may have acted on this session.
		var cmd tea.Cmd
		if msg.Type == "session.deleted" {
			m.notice = "This session was deleted elsewhere."
			m.writeLogContent()
		} else if msg.Type != "connected" {
			cmd = m.refreshSession()
		}
		return m, tea.Batch(cmd, waitForEvent(m.events))

	case sseClosedMsg:
		return m, nil

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeLogContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.logViewport, vpCmd = m.logViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func formatNarratorResponse(response string, width int) string {
	wrapWidth := width - len(AgentName+": ")
	wrapped := wordwrap.String(response, wrapWidth)

	lines := strings.Split(wrapped, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, ":"); idx > 0 && idx <= 20 && len(strings.Fields(line[:idx])) <= 2 {
			lines[i] = speakerStyle.Render(line[:idx+1]) + line[idx+1:]
		}
	}
	return narratorStyle.Render(AgentName+": ") + strings.Join(lines, "\n")
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	cmd := strings.ToLower(strings.TrimSpace(input))

	switch cmd {
	case "/help":
		m.notice = `Commands:
• /help - Show this help
• /actions - List actions available here
• /copy - Copy the session ID to the clipboard
• /fail <action> [target] - Attempt an action that fails
• Ctrl+C - Quit

How to play:
• Type an action, optionally followed by a target
• Rules decide what changes; the narrator describes it`

	case "/actions":
		m.notice = "Available: " + strings.Join(m.view.AvailableActions, ", ")

	case "/copy":
		if err := clipboard.WriteAll(m.view.State.ID.String()); err != nil {
			m.err = fmt.Errorf("could not copy session ID: %w", err)
		} else {
			m.notice = "Session ID copied: " + m.view.State.ID.String()
		}

	default:
		m.notice = fmt.Sprintf("Unknown command %s. Type /help for help.", input)
	}

	m.writeLogContent()
	return m, nil
}

func (m ConsoleUI) act(req engine.ActionRequest) tea.Cmd {
	id := m.view.State.ID
	return func() tea.Msg {
		out, err := sendAction(m.client, m.config.APIBaseURL, id, req)
		return outcomeMsg{out, err}
	}
}

func (m ConsoleUI) refreshSession() tea.Cmd {
	id := m.view.State.ID
	return func() tea.Msg {
		v, err := getSession(m.client, m.config.APIBaseURL, id)
		return sessionMsg{v, err}
	}
}

func (m ConsoleUI) loadRuleSets() tea.Cmd {
	return func() tea.Msg {
		list, err := listRuleSets(m.client, m.config.APIBaseURL)
		return ruleSetsLoadedMsg{list, err}
	}
}

func (m ConsoleUI) createSessionFromRuleSet(file string) tea.Cmd {
	return func() tea.Msg {
		v, err := createSession(m.client, m.config.APIBaseURL, file)
		return sessionCreatedMsg{v, err}
	}
}

// listenEvents streams session events into m.events until the program exits.
func (m ConsoleUI) listenEvents() tea.Cmd {
	id := m.view.State.ID
	ch := m.events
	return func() tea.Msg {
		err := listenToSSE(context.Background(), m.streamClient, m.config.APIBaseURL, id, ch)
		return sseClosedMsg{err}
	}
}

func waitForEvent(ch <-chan SSEEvent) tea.Cmd {
	return func() tea.Msg {
		return sseEventMsg(<-ch)
	}
}

func (m ConsoleUI) updateRuleSetModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case ruleSetsLoadedMsg:
		m.loadingRuleSets = false
		if msg.err != nil {
			m.err = msg.err
		} else if len(msg.ruleSets) == 0 {
			m.err = fmt.Errorf("no rule sets are installed")
		} else {
			m.ruleSets = msg.ruleSets
		}

	case sessionCreatedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.view = msg.view
		m.showRuleSetModal = false
		if m.width > 0 && m.height > 0 {
			m.resize()
		}
		m.ready = true
		m.writeLogContent()
		m.metaViewport.SetContent(writeMetadata(m.view))
		m.textarea.Focus()

		m.events = make(chan SSEEvent, 16)
		return m, tea.Batch(textarea.Blink, m.listenEvents(), waitForEvent(m.events))

	case tea.KeyMsg:
		if m.loadingRuleSets {
			if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			m.showRuleSetModal = false
			return m, nil
		case tea.KeyUp:
			if m.selectedRuleSet > 0 {
				m.selectedRuleSet--
			}
		case tea.KeyDown:
			if m.selectedRuleSet < len(m.ruleSets)-1 {
				m.selectedRuleSet++
			}
		case tea.KeyEnter:
			if len(m.ruleSets) > 0 && !m.loading && m.err == nil {
				m.loading = true
				return m, m.createSessionFromRuleSet(m.ruleSets[m.selectedRuleSet].File)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				if m.view == nil {
					m.showRuleSetModal = true
					return m, nil
				}
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Game?"))
	content.WriteString("\n\n")
	content.WriteString("Are you sure you want to leave this session?")
	if m.view != nil {
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Session: " + m.view.State.ID.String()))
	}
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderRuleSetModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingRuleSets:
		content.WriteString(modalTitleStyle.Render("Loading Rule Sets..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch available stories..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(wordwrap.String(m.err.Error(), 50)))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.loading:
		content.WriteString(modalTitleStyle.Render("Creating Session..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Setting up your story..."))
	default:
		content.WriteString(modalTitleStyle.Render("Select a Story"))
		content.WriteString("\n\n")

		for i, rs := range m.ruleSets {
			label := rs.Title
			if rs.Language != "" {
				label += " [" + rs.Language + "]"
			}
			if i == m.selectedRuleSet {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + label))
			} else {
				content.WriteString(modalItemStyle.Render("  " + label))
			}
			content.WriteString("\n")
		}

		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if m.showRuleSetModal {
		return m.renderRuleSetModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	logWidth := int(float64(m.width)*0.70) - 4
	metaWidth := m.width - logWidth - 6

	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.logViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(logWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, logPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.logViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}
	usable = max(min(usable, 80), 10)

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := range usable {
		switch {
		case i < filled:
			bar.WriteString("█")
		case i == filled && frame%4 < 2:
			bar.WriteString("▓") // Blinking effect at the progress point
		default:
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
