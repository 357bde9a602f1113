// Package tui provides an interactive terminal browser over the cached
// server catalog. Selecting an entry hands its servername back to the
// connect flow.
package tui

import (
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mbeltran/nmvpn/servers"
)

// ErrNoSelection indicates the browser was closed without choosing a
// server.
var ErrNoSelection = errors.New("no server selected")

var docStyle = lipgloss.NewStyle().Margin(1, 2)

// serverItem adapts a logical server to the list widget.
type serverItem struct {
	server servers.LogicalServer
}

func (i serverItem) Title() string {
	return i.server.Name
}

func (i serverItem) Description() string {
	return fmt.Sprintf(
		"%s · %s · load %d%% · %s",
		i.server.ExitCountry,
		cityOrDash(i.server.City),
		i.server.Load,
		servers.FeatureString(i.server.Features),
	)
}

func (i serverItem) FilterValue() string {
	return i.server.Name + " " + i.server.ExitCountry + " " + i.server.City
}

func cityOrDash(city string) string {
	if city == "" {
		return "-"
	}
	return city
}

type model struct {
	list   list.Model
	choice string
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Ignore keys while the filter input is focused.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(serverItem); ok {
				m.choice = item.server.Name
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) View() string {
	return docStyle.Render(m.list.View())
}

// newModel builds the browser over the catalog, listed by ascending
// score within exit country.
func newModel(catalog servers.Catalog) model {
	sorted := make(servers.Catalog, len(catalog))
	copy(sorted, catalog)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ExitCountry != sorted[j].ExitCountry {
			return sorted[i].ExitCountry < sorted[j].ExitCountry
		}
		return sorted[i].Score < sorted[j].Score
	})

	items := make([]list.Item, 0, len(sorted))
	for _, server := range sorted {
		items = append(items, serverItem{server: server})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "nmvpn servers"
	return model{list: l}
}

// Browse opens the catalog browser and returns the chosen servername.
func Browse(catalog servers.Catalog) (string, error) {
	if len(catalog) == 0 {
		return "", fmt.Errorf("%w: catalog is empty", ErrNoSelection)
	}

	program := tea.NewProgram(newModel(catalog), tea.WithAltScreen())
	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("failed to run server browser: %w", err)
	}

	m, ok := final.(model)
	if !ok || m.choice == "" {
		return "", ErrNoSelection
	}
	return m.choice, nil
}
