package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mootwise/he3vm/moduleio"
)

// The inspector TUI is a read-only module browser, not a debugger: it lists
// classes/methods/fields from an already-loaded moduleio.Image and lets the
// user move a cursor through them, but it never steps bytecode, sets a
// breakpoint, or mutates VM state (there is no running Interpreter in
// scope). Grounded on cmd/run/interactive.go's list-and-select model,
// trimmed to the one state the teacher's "select a function, call it,
// show result" flow has no use-VM-instance equivalent for.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	memberStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type inspectRow struct {
	depth int
	text  string
}

type inspectorModel struct {
	filename string
	rows     []inspectRow
	cursor   int
}

func newInspectorModel(filename string, img *moduleio.Image) *inspectorModel {
	m := &inspectorModel{filename: filename}

	byType := make(map[uint32][]moduleio.MethodEntry)
	for _, meth := range img.Methods {
		byType[meth.OwningTypeID] = append(byType[meth.OwningTypeID], meth)
	}
	byTypeField := make(map[uint32][]moduleio.FieldEntry)
	for _, f := range img.Fields {
		byTypeField[f.OwningTypeID] = append(byTypeField[f.OwningTypeID], f)
	}

	for _, t := range img.Types {
		header := resolveStr(img, t.NameOffset)
		if t.ParentTypeID != 0 {
			header += " : " + typeNameByID(img, t.ParentTypeID)
		}
		m.rows = append(m.rows, inspectRow{depth: 0, text: header})
		for _, f := range byTypeField[t.TypeID] {
			m.rows = append(m.rows, inspectRow{depth: 1, text: "field " + resolveStr(img, f.NameOffset)})
		}
		for _, meth := range byType[t.TypeID] {
			m.rows = append(m.rows, inspectRow{
				depth: 1,
				text: fmt.Sprintf("method %s(%d args) -> %d", resolveStr(img, meth.NameOffset),
					meth.ParamCount, meth.ReturnTypeID),
			})
		}
	}
	return m
}

func typeNameByID(img *moduleio.Image, id uint32) string {
	for _, t := range img.Types {
		if t.TypeID == id {
			return resolveStr(img, t.NameOffset)
		}
	}
	return fmt.Sprintf("type %d", id)
}

func (m *inspectorModel) Init() tea.Cmd { return nil }

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m *inspectorModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("he3vm inspect"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	for i, row := range m.rows {
		line := strings.Repeat("  ", row.depth) + row.text
		style := classStyle
		if row.depth > 0 {
			style = memberStyle
		}
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + style.Render(line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ move • q quit (read-only browser, no call/step/breakpoint)"))
	return b.String()
}

func runInspectorTUI(filename string, img *moduleio.Image) error {
	p := tea.NewProgram(newInspectorModel(filename, img), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
