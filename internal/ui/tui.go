package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bluetali/beacon/internal/search"
)

// Searcher is the engine surface the TUI needs.
type Searcher interface {
	Typeahead(ctx context.Context, term, callerID string) (*search.Result, error)
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

const (
	typeaheadDebounce = 120 * time.Millisecond
	maxVisibleResults = 10
)

type resultMsg struct {
	seq    int64
	result *search.Result
}

type errMsg struct {
	seq int64
	err error
}

type debounceMsg struct {
	seq int64
}

// Model is the interactive typeahead search model.
type Model struct {
	searcher Searcher
	callerID string
	styles   Styles

	input    textinput.Model
	result   *search.Result
	err      error
	selected int
	seq      int64
	pending  bool
	width    int
	height   int
	quitting bool

	// Chosen holds the item picked with enter, if any.
	Chosen *search.Item
}

// NewModel builds the typeahead model.
func NewModel(searcher Searcher, callerID string, styles Styles) Model {
	ti := textinput.New()
	ti.Placeholder = "type to search people, conversations, messages"
	ti.Prompt = "> "
	ti.CharLimit = 256
	ti.Focus()

	return Model{
		searcher: searcher,
		callerID: callerID,
		styles:   styles,
		input:    ti,
		selected: 0,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up":
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case "down":
			if m.selected < len(m.visibleItems())-1 {
				m.selected++
			}
			return m, nil
		case "enter":
			items := m.visibleItems()
			if m.selected < len(items) {
				item := items[m.selected]
				m.Chosen = &item
			}
			m.quitting = true
			return m, tea.Quit
		}

		var cmd tea.Cmd
		before := m.input.Value()
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before {
			m.seq++
			m.selected = 0
			return m, tea.Batch(cmd, debounceCmd(m.seq))
		}
		return m, cmd

	case debounceMsg:
		// Stale debounce from an earlier keystroke.
		if msg.seq != m.seq {
			return m, nil
		}
		term := strings.TrimSpace(m.input.Value())
		if term == "" {
			m.result = nil
			m.err = nil
			m.pending = false
			return m, nil
		}
		m.pending = true
		return m, typeaheadCmd(m.searcher, term, m.callerID, msg.seq)

	case resultMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.pending = false
		m.result = msg.result
		m.err = nil
		if n := len(m.visibleItems()); m.selected >= n {
			m.selected = 0
		}
		return m, nil

	case errMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.pending = false
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Header.Render("beacon search"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(m.styles.Error.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	case m.pending:
		b.WriteString(m.styles.Dim.Render("searching..."))
		b.WriteString("\n")
	case m.result != nil:
		items := m.visibleItems()
		if len(items) == 0 {
			b.WriteString(m.styles.Dim.Render("no results"))
			b.WriteString("\n")
		}
		for i, item := range items {
			line := fmt.Sprintf("%-15s %s", "["+string(item.Category)+"]", stripMarks(item.Title))
			if i == m.selected {
				b.WriteString(m.styles.Selected.Render(line))
			} else {
				b.WriteString(m.styles.Result.Render(line))
			}
			b.WriteString(m.styles.Score.Render(fmt.Sprintf("  %.0f", item.Score)))
			b.WriteString("\n")
		}
		if !m.result.Complete {
			b.WriteString(m.styles.Warning.Render("partial results"))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Footer.Render("up/down select · enter choose · esc quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) visibleItems() []search.Item {
	if m.result == nil {
		return nil
	}
	items := m.result.Combined
	if len(items) > maxVisibleResults {
		items = items[:maxVisibleResults]
	}
	return items
}

func debounceCmd(seq int64) tea.Cmd {
	return tea.Tick(typeaheadDebounce, func(time.Time) tea.Msg {
		return debounceMsg{seq: seq}
	})
}

func typeaheadCmd(s Searcher, term, callerID string, seq int64) tea.Cmd {
	return func() tea.Msg {
		res, err := s.Typeahead(context.Background(), term, callerID)
		if err != nil {
			return errMsg{seq: seq, err: err}
		}
		return resultMsg{seq: seq, result: res}
	}
}

// stripMarks removes the highlight spans for terminal display.
func stripMarks(s string) string {
	s = strings.ReplaceAll(s, "<mark>", "")
	return strings.ReplaceAll(s, "</mark>", "")
}

// Run starts the interactive typeahead program and returns the chosen
// item, or nil if the user quit without selecting.
func Run(searcher Searcher, callerID string) (*search.Item, error) {
	m := NewModel(searcher, callerID, StylesFor(os.Stdout))
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	if fm, ok := final.(Model); ok {
		return fm.Chosen, nil
	}
	return nil, nil
}
