package ui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluetali/beacon/internal/search"
	"github.com/bluetali/beacon/internal/store"
)

type fakeSearcher struct {
	typeaheadResult *search.Result
	typeaheadErr    error
	calls           int
}

func (f *fakeSearcher) Typeahead(_ context.Context, term, _ string) (*search.Result, error) {
	f.calls++
	if f.typeaheadErr != nil {
		return nil, f.typeaheadErr
	}
	return f.typeaheadResult, nil
}

func (f *fakeSearcher) Search(_ context.Context, _ search.Request) (*search.Result, error) {
	return f.typeaheadResult, nil
}

func sampleResult() *search.Result {
	return &search.Result{
		Term:     "ana",
		Complete: true,
		Combined: []search.Item{
			{ID: "u1", Category: store.CategoryPeople, Title: "<mark>Ana</mark> Vasquez", Score: 100},
			{ID: "c1", Category: store.CategoryConversations, Title: "Launch planning", Score: 50},
			{ID: "m1", Category: store.CategoryMessages, Title: "the launch plan", Score: 25},
		},
	}
}

func typeRunes(t *testing.T, m Model, s string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, r := range s {
		var next tea.Model
		next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = next.(Model)
	}
	return m, cmd
}

func TestModel_TypingSchedulesDebounce(t *testing.T) {
	// Given a fresh model
	m := NewModel(&fakeSearcher{}, "u1", NoColorStyles())

	// When the user types
	m, cmd := typeRunes(t, m, "ana")

	// Then a debounce command is pending and the sequence advanced
	require.NotNil(t, cmd)
	assert.Equal(t, int64(3), m.seq)
	assert.Equal(t, 0, m.selected)
}

func TestModel_StaleDebounceIgnored(t *testing.T) {
	fake := &fakeSearcher{typeaheadResult: sampleResult()}
	m := NewModel(fake, "u1", NoColorStyles())
	m, _ = typeRunes(t, m, "an")

	// A debounce from the first keystroke arrives after the second
	next, cmd := m.Update(debounceMsg{seq: 1})
	m = next.(Model)

	assert.Nil(t, cmd)
	assert.False(t, m.pending)
}

func TestModel_DebounceIssuesTypeahead(t *testing.T) {
	fake := &fakeSearcher{typeaheadResult: sampleResult()}
	m := NewModel(fake, "u1", NoColorStyles())
	m, _ = typeRunes(t, m, "ana")

	next, cmd := m.Update(debounceMsg{seq: m.seq})
	m = next.(Model)

	require.NotNil(t, cmd)
	assert.True(t, m.pending)

	// Running the command performs the lookup
	msg := cmd()
	res, ok := msg.(resultMsg)
	require.True(t, ok)
	assert.Equal(t, 1, fake.calls)

	next, _ = m.Update(res)
	m = next.(Model)
	assert.False(t, m.pending)
	require.NotNil(t, m.result)
	assert.Len(t, m.result.Combined, 3)
}

func TestModel_StaleResultDropped(t *testing.T) {
	m := NewModel(&fakeSearcher{}, "u1", NoColorStyles())
	m, _ = typeRunes(t, m, "anab")

	next, _ := m.Update(resultMsg{seq: 2, result: sampleResult()})
	m = next.(Model)

	assert.Nil(t, m.result)
}

func TestModel_SelectionMovesWithinBounds(t *testing.T) {
	m := NewModel(&fakeSearcher{}, "u1", NoColorStyles())
	m.result = sampleResult()

	down := tea.KeyMsg{Type: tea.KeyDown}
	up := tea.KeyMsg{Type: tea.KeyUp}

	for i := 0; i < 5; i++ {
		next, _ := m.Update(down)
		m = next.(Model)
	}
	assert.Equal(t, 2, m.selected)

	for i := 0; i < 5; i++ {
		next, _ := m.Update(up)
		m = next.(Model)
	}
	assert.Equal(t, 0, m.selected)
}

func TestModel_EnterChoosesSelected(t *testing.T) {
	m := NewModel(&fakeSearcher{}, "u1", NoColorStyles())
	m.result = sampleResult()
	m.selected = 1

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)

	require.NotNil(t, cmd)
	require.NotNil(t, m.Chosen)
	assert.Equal(t, "c1", m.Chosen.ID)
	assert.True(t, m.quitting)
}

func TestModel_EscQuitsWithoutChoice(t *testing.T) {
	m := NewModel(&fakeSearcher{}, "u1", NoColorStyles())
	m.result = sampleResult()

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(Model)

	require.NotNil(t, cmd)
	assert.Nil(t, m.Chosen)
	assert.True(t, m.quitting)
	assert.Empty(t, m.View())
}

func TestModel_ViewRendersResults(t *testing.T) {
	m := NewModel(&fakeSearcher{}, "u1", NoColorStyles())
	m.result = sampleResult()

	view := m.View()

	assert.Contains(t, view, "Ana Vasquez")
	assert.NotContains(t, view, "<mark>")
	assert.Contains(t, view, "[people]")
	assert.Contains(t, view, "[conversations]")
}

func TestModel_ViewShowsPartialWarning(t *testing.T) {
	m := NewModel(&fakeSearcher{}, "u1", NoColorStyles())
	res := sampleResult()
	res.Complete = false
	m.result = res

	assert.Contains(t, m.View(), "partial results")
}

func TestModel_ErrorShownAndClearedBySuccess(t *testing.T) {
	fake := &fakeSearcher{typeaheadResult: sampleResult()}
	m := NewModel(fake, "u1", NoColorStyles())
	m, _ = typeRunes(t, m, "ana")

	next, _ := m.Update(errMsg{seq: m.seq, err: assert.AnError})
	m = next.(Model)
	assert.Contains(t, m.View(), "error:")

	next, _ = m.Update(resultMsg{seq: m.seq, result: sampleResult()})
	m = next.(Model)
	assert.NotContains(t, m.View(), "error:")
}

func TestStripMarks(t *testing.T) {
	assert.Equal(t, "Ana Vasquez", stripMarks("<mark>Ana</mark> Vasquez"))
	assert.Equal(t, "plain", stripMarks("plain"))
}
