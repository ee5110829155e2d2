package tui

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"remove-bg-go/internal/controller"
	"remove-bg-go/internal/inspect"
	"remove-bg-go/internal/removal"
)

type view int

const (
	viewMenu view = iota
	viewContent
	viewPicker
	viewSettings
)

var menuItems = []string{"Remove backgrounds", "Settings", "Exit"}

type Model struct {
	ctx    context.Context
	ctrl   *controller.Controller
	events <-chan removal.Event

	view       view
	width      int
	menuCursor int

	candidates []inspect.Info
	pickCursor int
	picked     map[int]bool
	pickErr    string

	fields     [2]string
	fieldFocus int
	formErr    string
	quitting   bool
}

type eventMsg struct{ ev removal.Event }

type batchClosedMsg struct{}

type candidatesMsg struct {
	infos []inspect.Info
	err   error
}

// NewModel returns the root model. It opens on the settings form when no export
// folder is configured yet.
func NewModel(ctx context.Context, ctrl *controller.Controller) Model {
	m := Model{ctx: ctx, ctrl: ctrl, picked: map[int]bool{}}
	if ctrl.NeedsFolderSetup() {
		m.openSettings()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case eventMsg:
		m.ctrl.Handle(msg.ev)
		return m, listenForEvents(m.events)
	case batchClosedMsg:
		m.events = nil
		return m, nil
	case candidatesMsg:
		m.candidates = msg.infos
		m.picked = map[int]bool{}
		m.pickCursor = 0
		m.pickErr = ""
		if msg.err != nil {
			m.pickErr = msg.err.Error()
		}
		m.view = viewPicker
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		switch m.view {
		case viewSettings:
			return m.updateSettings(msg)
		case viewPicker:
			return m.updatePicker(msg)
		case viewContent:
			return m.updateContent(msg)
		default:
			return m.updateMenu(msg)
		}
	}
	return m, nil
}

func (m Model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case "down", "j":
		if m.menuCursor < len(menuItems)-1 {
			m.menuCursor++
		}
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "enter":
		switch m.menuCursor {
		case 0:
			m.view = viewContent
		case 1:
			m.openSettings()
		default:
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m Model) updateContent(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.view = viewMenu
	case "o":
		return m, loadCandidates(m.ctrl)
	case "s":
		m.openSettings()
	case "e":
		// Failures surface as a warning in the state.
		_ = m.ctrl.OpenExportFolder()
	case "x":
		m.ctrl.DismissWarning()
	case "r":
		events, err := m.ctrl.StartRemoval(m.ctx)
		if err != nil {
			// The controller already reflects the refusal in the status or warning.
			return m, nil
		}
		m.events = events
		return m, listenForEvents(events)
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.view = viewContent
	case "up", "k":
		if m.pickCursor > 0 {
			m.pickCursor--
		}
	case "down", "j":
		if m.pickCursor < len(m.candidates)-1 {
			m.pickCursor++
		}
	case " ":
		if len(m.candidates) > 0 {
			m.picked[m.pickCursor] = !m.picked[m.pickCursor]
		}
	case "a":
		all := !allPicked(m.picked, len(m.candidates))
		m.picked = map[int]bool{}
		if all {
			for i := range m.candidates {
				m.picked[i] = true
			}
		}
	case "enter":
		var paths []string
		for i, info := range m.candidates {
			if m.picked[i] {
				paths = append(paths, info.Path)
			}
		}
		if len(paths) == 0 && len(m.candidates) > 0 {
			paths = []string{m.candidates[m.pickCursor].Path}
		}
		m.ctrl.SelectInputs(paths)
		m.view = viewContent
	}
	return m, nil
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.formErr = ""
		m.view = viewMenu
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.fieldFocus = 1 - m.fieldFocus
	case tea.KeyBackspace:
		field := []rune(m.fields[m.fieldFocus])
		if len(field) > 0 {
			m.fields[m.fieldFocus] = string(field[:len(field)-1])
		}
	case tea.KeyEnter:
		if err := m.ctrl.ConfigureFolders(m.fields[0], m.fields[1]); err != nil {
			m.formErr = err.Error()
			return m, nil
		}
		m.formErr = ""
		m.view = viewContent
	case tea.KeySpace:
		m.fields[m.fieldFocus] += " "
	case tea.KeyRunes:
		m.fields[m.fieldFocus] += string(msg.Runes)
	}
	return m, nil
}

func (m *Model) openSettings() {
	st := m.ctrl.Snapshot()
	m.fields = [2]string{st.ImportFolder, st.ExportFolder}
	m.fieldFocus = 0
	m.formErr = ""
	m.view = viewSettings
}

func allPicked(picked map[int]bool, n int) bool {
	for i := 0; i < n; i++ {
		if !picked[i] {
			return false
		}
	}
	return true
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch m.view {
	case viewSettings:
		body = m.settingsView()
	case viewPicker:
		body = m.pickerView()
	case viewContent:
		body = m.contentView()
	default:
		body = m.menuView()
	}
	return titleStyle.Render("remove-bg") + "\n\n" + body + "\n"
}

func (m Model) menuView() string {
	lines := make([]string, 0, len(menuItems)+2)
	for i, item := range menuItems {
		if i == m.menuCursor {
			lines = append(lines, selectedStyle.Render("> "+item))
		} else {
			lines = append(lines, labelStyle.Render("  "+item))
		}
	}
	lines = append(lines, "", dimStyle.Render("enter select • q quit"))
	return strings.Join(lines, "\n")
}

func (m Model) contentView() string {
	st := m.ctrl.Snapshot()

	inputs := []string{valueStyle.Render("Inputs")}
	for _, p := range st.Inputs {
		inputs = append(inputs, labelStyle.Render(filepath.Base(p)))
	}
	outputs := []string{valueStyle.Render("Outputs")}
	for _, p := range st.Processed {
		outputs = append(outputs, labelStyle.Render(filepath.Base(p)))
	}

	lines := []string{
		lipgloss.JoinHorizontal(lipgloss.Top,
			columnStyle.Render(strings.Join(inputs, "\n")),
			columnStyle.Render(strings.Join(outputs, "\n"))),
		"",
	}
	if st.ProgressVisible {
		lines = append(lines, barStyle.Render(renderBar(m.barWidth(), float64(st.Progress)/100))+
			dimStyle.Render(fmt.Sprintf(" %d%%", st.Progress)))
	}
	lines = append(lines, statusStyle(st.Level).Render(st.Status))
	if st.Warning != "" {
		lines = append(lines, warnStyle.Render("! "+st.Warning+" (x to dismiss)"))
	}
	lines = append(lines, "", dimStyle.Render(fmt.Sprintf("export: %s", orNotSet(st.ExportFolder))),
		dimStyle.Render("o select images • r remove backgrounds • e open export folder • s settings • esc menu"))
	return strings.Join(lines, "\n")
}

func (m Model) pickerView() string {
	lines := []string{valueStyle.Render("Select images")}
	if m.pickErr != "" {
		lines = append(lines, warnStyle.Render(m.pickErr))
	}
	if len(m.candidates) == 0 {
		lines = append(lines, dimStyle.Render("No PNG or JPEG images in the import folder."))
	}
	for i, info := range m.candidates {
		mark := "[ ]"
		if m.picked[i] {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %s  %dx%d", mark, info.Name, info.Width, info.Height)
		if i == m.pickCursor {
			lines = append(lines, selectedStyle.Render("> "+line))
		} else {
			lines = append(lines, labelStyle.Render("  "+line))
		}
	}
	lines = append(lines, "", dimStyle.Render("space toggle • a all • enter confirm • esc back"))
	return strings.Join(lines, "\n")
}

func (m Model) settingsView() string {
	labels := [2]string{"Import folder", "Export folder"}
	lines := []string{valueStyle.Render("Folder settings")}
	for i, label := range labels {
		value := m.fields[i]
		if i == m.fieldFocus {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("> %s: %s_", label, value)))
		} else {
			lines = append(lines, labelStyle.Render(fmt.Sprintf("  %s: %s", label, value)))
		}
	}
	if m.formErr != "" {
		lines = append(lines, warnStyle.Render(m.formErr))
	}
	lines = append(lines, "", dimStyle.Render("tab switch field • enter save • esc cancel"))
	return strings.Join(lines, "\n")
}

func (m Model) barWidth() int {
	if m.width <= 0 {
		return 40
	}
	return int(math.Max(20, math.Min(60, float64(m.width-10))))
}

func statusStyle(level controller.Level) lipgloss.Style {
	switch level {
	case controller.LevelSuccess:
		return lipgloss.NewStyle().Foreground(ColorSuccess)
	case controller.LevelError:
		return lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	case controller.LevelWorking:
		return lipgloss.NewStyle().Foreground(ColorAccent)
	default:
		return labelStyle
	}
}

func orNotSet(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

func listenForEvents(events <-chan removal.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return batchClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func loadCandidates(ctrl *controller.Controller) tea.Cmd {
	return func() tea.Msg {
		infos, err := ctrl.Candidates()
		return candidatesMsg{infos: infos, err: err}
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}
