package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/textinput"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"sigga/internal/analysis"
	"sigga/internal/sigga/styles"
	"sigga/internal/signature"
)

type viewMode int

const (
	viewFunctions viewMode = iota
	viewResult
	viewFind
)

type functionItem struct {
	fn         analysis.Func
	filterTerm string
}

func (i functionItem) Title() string {
	return fmt.Sprintf("%x  %s", i.fn.Range.Start, i.fn.Name)
}

func (i functionItem) FilterValue() string { return i.filterTerm }

func (i functionItem) Description() string { return "" }

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(functionItem)
	if !ok {
		return
	}

	indicator := " "
	addrStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	nameStyle := lipgloss.NewStyle()
	if index == m.Index() {
		indicator = ">"
		addrStyle = styles.Selected
		nameStyle = lipgloss.NewStyle().Bold(true)
	}

	fmt.Fprintf(w, " %s  %s  %s  %s",
		indicator,
		addrStyle.Render(fmt.Sprintf("%08x", i.fn.Range.Start)),
		styles.Muted.Render(fmt.Sprintf("%6d", i.fn.Range.Len())),
		nameStyle.Render(i.fn.Name))
}

type model struct {
	ctx      context.Context
	session  *session
	list     list.Model
	result   viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	mode     viewMode
	busy     bool
	status   string
	markdown string
	width    int
	height   int
}

type createdMsg struct {
	result CreateResult
}

type foundMsg struct {
	text  string
	found signature.Found
	err   error
}

func createSignatureCmd(ctx context.Context, s *session, fn analysis.Func) tea.Cmd {
	return func() tea.Msg {
		t := target{label: fn.Name, name: fn.Name}
		created, err := s.engine.CreateFor(ctx, fn.Function)
		return createdMsg{result: newCreateResult(t, created, err)}
	}
}

func findSignatureCmd(s *session, text string) tea.Cmd {
	return func() tea.Msg {
		found, err := s.engine.Find(text)
		return foundMsg{text: text, found: found, err: err}
	}
}

func NewModel(ctx context.Context, s *session) model {
	funcs := s.program.Funcs.Funcs()
	items := make([]list.Item, 0, len(funcs))
	for _, f := range funcs {
		items = append(items, functionItem{
			fn:         f,
			filterTerm: fmt.Sprintf("%x %s %s", f.Range.Start, f.Name, f.Mangled),
		})
	}

	l := list.New(items, itemDelegate{}, 80, 22)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Title = fmt.Sprintf("Functions (%d total)", len(items))
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		MarginLeft(2)
	l.SetShowHelp(true)

	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(22)

	ti := textinput.New()
	ti.Prompt = "signature> "
	ti.Placeholder = "55 48 89 E5 ? ? ? ? ? B8"

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Selected

	return model{
		ctx:     ctx,
		session: s,
		list:    l,
		result:  vp,
		input:   ti,
		spinner: sp,
		mode:    viewFunctions,
		width:   80,
		height:  24,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case createdMsg:
		m.busy = false
		m.markdown = resultMarkdown(m.session, msg.result)
		m.render()
		return m, nil

	case foundMsg:
		m.busy = false
		m.markdown = findMarkdown(msg)
		m.render()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.render()
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetWidth(msg.Width)
		m.list.SetHeight(msg.Height - 2)
		m.result.SetWidth(msg.Width)
		m.result.SetHeight(msg.Height - 2)
		m.render()
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			return m, tea.Quit
		}

		switch m.mode {
		case viewFunctions:
			if m.list.FilterState() == list.Filtering {
				break
			}
			switch key {
			case "q":
				return m, tea.Quit
			case "f":
				m.mode = viewFind
				m.input.Reset()
				return m, m.input.Focus()
			case "enter":
				item, ok := m.list.SelectedItem().(functionItem)
				if !ok || m.busy {
					return m, nil
				}
				m.mode = viewResult
				m.busy = true
				m.status = fmt.Sprintf("Creating signature for %s...", item.fn.Name)
				m.markdown = ""
				m.render()
				return m, tea.Batch(m.spinner.Tick, createSignatureCmd(m.ctx, m.session, item.fn))
			}

		case viewFind:
			switch key {
			case "esc":
				m.input.Blur()
				m.mode = viewFunctions
				return m, nil
			case "enter":
				text := strings.TrimSpace(m.input.Value())
				if text == "" {
					return m, nil
				}
				m.input.Blur()
				m.mode = viewResult
				m.busy = true
				m.status = "Searching..."
				m.markdown = ""
				m.render()
				return m, tea.Batch(m.spinner.Tick, findSignatureCmd(m.session, text))
			}
			m.input, cmd = m.input.Update(msg)
			return m, cmd

		case viewResult:
			switch key {
			case "q":
				return m, tea.Quit
			case "esc", "backspace":
				if !m.busy {
					m.mode = viewFunctions
				}
				return m, nil
			case "f":
				if !m.busy {
					m.mode = viewFind
					m.input.Reset()
					return m, m.input.Focus()
				}
				return m, nil
			}
		}
	}

	switch m.mode {
	case viewFunctions:
		m.list, cmd = m.list.Update(msg)
	case viewResult:
		m.result, cmd = m.result.Update(msg)
	}
	return m, cmd
}

// render refreshes the result pane from the current markdown.
func (m *model) render() {
	content := m.markdown
	if m.busy {
		content = fmt.Sprintf("%s %s", m.spinner.View(), m.status)
		m.result.SetContent(content)
		return
	}
	width := m.width
	if width == 0 {
		width = 80
	}
	rendered, err := styles.GetMarkdownRenderer(width - 2).Render(content)
	if err != nil {
		rendered = content
	}
	m.result.SetContent(strings.TrimSuffix(rendered, "\n"))
	m.result.GotoTop()
}

func (m model) View() string {
	var content, menu string
	switch m.mode {
	case viewFind:
		content = "\n  Find signature\n\n  " + m.input.View() + "\n"
		menu = " Enter: find • Esc: back • Ctrl+C: quit "
	case viewResult:
		content = m.result.View()
		menu = " Esc: functions • F: find • Q: quit "
	default:
		content = m.list.View()
		menu = " Enter: create signature • F: find signature • /: filter • Q: quit "
	}

	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}

func resultMarkdown(s *session, r CreateResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Target)
	if r.Start != "" {
		fmt.Fprintf(&b, "```\n; %s-%s\n; blake3 %s\n```\n\n", r.Start, r.End, s.image.Digest())
	}
	if !r.usable() {
		fmt.Fprintf(&b, "> Failed to create signature: %v\n", r.err)
		return b.String()
	}
	if r.err != nil {
		fmt.Fprintf(&b, "> %v\n\n", r.err)
	}
	fmt.Fprintf(&b, "## Signature\n\n```\n%s\n```\n\n", r.Signature)
	fmt.Fprintf(&b, "Minimized in %d steps from %d bytes.\n", r.Steps, len(strings.Fields(r.Full)))
	return b.String()
}

func findMarkdown(msg foundMsg) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Find\n\n```\n%s\n```\n\n", msg.text)
	switch {
	case msg.err != nil:
		fmt.Fprintf(&b, "> Failed to find signature: %v\n", msg.err)
	case !msg.found.OK:
		b.WriteString("Signature not found\n")
	default:
		if !msg.found.InFunction {
			b.WriteString("> Warning: The address found is not inside a function\n\n")
		}
		fmt.Fprintf(&b, "Found signature at: `0x%x`", msg.found.Address)
		if msg.found.InFunction {
			fmt.Fprintf(&b, " in **%s**", msg.found.Function.Name)
		}
		b.WriteString("\n")
	}
	return b.String()
}
