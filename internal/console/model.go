// Package console is the interactive terminal view of one battery: live telemetry with colour
// bands, and a parameter table whose entries can be edited with an explicit confirmation.
package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tetragramaton/seplos-go/internal/fault"
	"github.com/tetragramaton/seplos-go/internal/poller"
	"github.com/tetragramaton/seplos-go/internal/register"
	"github.com/tetragramaton/seplos-go/internal/store"
	"github.com/tetragramaton/seplos-go/internal/write"
)

const (
	tabMonitor = iota
	tabParams
)

const (
	modeBrowse = iota
	modeEdit
	modeConfirm
)

const (
	cellRows = 4
	logLines = 8
)

type Service interface {
	Map() *register.Map
	GetSnapshot() store.Snapshot
	Subscribe(buffer int) (<-chan poller.Event, func())
	RequestWrite(ctx context.Context, name string, value float64, opts ...write.Option) write.Result
}

var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("240")).
	Padding(0, 1)

var titleStyle = lipgloss.NewStyle().Bold(true)

var staleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

var helpStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{
	Light: "#909090",
	Dark:  "#626262",
}).Padding(0, 1)

type eventMsg poller.Event

type closedMsg struct{}

type writeDoneMsg write.Result

type pendingWrite struct {
	desc    register.Descriptor
	value   float64
	current store.Value
	known   bool
}

type Model struct {
	ctx    context.Context
	svc    Service
	events <-chan poller.Event

	snap    store.Snapshot
	lastErr error
	cycles  int

	tab     int
	mode    int
	params  table.Model
	names   []string
	input   textinput.Model
	pending pendingWrite
	busy    bool
	log     []string

	width  int
	height int
}

// New builds the model reading events from events; it does not subscribe itself.
func New(ctx context.Context, svc Service, events <-chan poller.Event) Model {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(true)

	params := table.New(
		table.WithColumns([]table.Column{
			{Title: "Parameter", Width: 44},
			{Title: "Value", Width: 10},
			{Title: "Unit", Width: 6},
			{Title: "Range", Width: 16},
		}),
		table.WithFocused(true),
		table.WithHeight(16),
	)
	params.SetStyles(s)

	input := textinput.New()
	input.Prompt = "New value: "
	input.CharLimit = 16

	m := Model{
		ctx:    ctx,
		svc:    svc,
		events: events,
		snap:   svc.GetSnapshot(),
		params: params,
		names:  svc.Map().Names(register.ReadWrite),
		input:  input,
	}
	m.params.SetRows(m.paramRows())
	return m
}

// Run shows the console until the user quits or ctx is done.
func Run(ctx context.Context, svc Service) error {
	events, cancel := svc.Subscribe(4)
	defer cancel()

	_, err := tea.NewProgram(New(ctx, svc, events), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func waitForEvent(events <-chan poller.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd { return waitForEvent(m.events) }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if h := msg.Height - logLines - 10; h > 4 {
			m.params.SetHeight(h)
		}
		return m, nil

	case eventMsg:
		m.snap = msg.Snapshot
		m.lastErr = msg.Err
		m.cycles++
		m.params.SetRows(m.paramRows())
		return m, waitForEvent(m.events)

	case closedMsg:
		return m, nil

	case writeDoneMsg:
		res := write.Result(msg)
		m.busy = false
		m.addLog(res.String())
		if res.Outcome == write.Rejected && errors.Is(res.Err, fault.ErrUnsafeChange) {
			m.addLog("use f instead of y at the confirmation to bypass the change guard")
		}
		m.snap = m.svc.GetSnapshot()
		m.params.SetRows(m.paramRows())
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeEdit:
			return m.updateEdit(msg)
		case modeConfirm:
			return m.updateConfirm(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "t", "tab":
		if m.tab == tabMonitor {
			m.tab = tabParams
		} else {
			m.tab = tabMonitor
		}
		return m, nil
	case "e", "enter":
		if m.tab != tabParams || m.busy || len(m.names) == 0 {
			return m, nil
		}
		d, err := m.svc.Map().Lookup(m.names[m.params.Cursor()])
		if err != nil {
			m.addLog(err.Error())
			return m, nil
		}
		m.pending = pendingWrite{desc: d}
		m.pending.current, m.pending.known = m.snap[d.Name]
		m.input.SetValue("")
		if m.pending.known {
			m.input.Placeholder = format(m.pending.current.Physical, d.Precision)
		}
		m.mode = modeEdit
		m.params.Blur()
		return m, m.input.Focus()
	}

	if m.tab == tabParams {
		var cmd tea.Cmd
		m.params, cmd = m.params.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.leaveEdit()
		return m, nil
	case "enter":
		v, err := strconv.ParseFloat(strings.TrimSpace(m.input.Value()), 64)
		if err != nil {
			m.addLog(fmt.Sprintf("%q is not a number", m.input.Value()))
			return m, nil
		}
		if _, err := m.pending.desc.Encode(v); err != nil {
			m.addLog(err.Error())
			return m, nil
		}
		m.pending.value = v
		m.input.Blur()
		m.mode = modeConfirm
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var opts []write.Option
	switch msg.String() {
	case "y":
	case "f":
		opts = append(opts, write.Force())
	case "n", "esc":
		m.addLog("edit of " + m.pending.desc.Name + " cancelled")
		m.leaveEdit()
		return m, nil
	default:
		return m, nil
	}

	p := m.pending
	m.leaveEdit()
	m.busy = true
	m.addLog(fmt.Sprintf("writing %s = %s ...", p.desc.Name, format(p.value, -1)))
	return m, func() tea.Msg {
		return writeDoneMsg(m.svc.RequestWrite(m.ctx, p.desc.Name, p.value, opts...))
	}
}

func (m *Model) leaveEdit() {
	m.mode = modeBrowse
	m.input.Blur()
	m.params.Focus()
}

func (m *Model) addLog(line string) {
	m.log = append(m.log, time.Now().Format("15:04:05 ")+line)
	if len(m.log) > logLines {
		m.log = m.log[len(m.log)-logLines:]
	}
}

func format(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}

func (m Model) paramRows() []table.Row {
	rows := make([]table.Row, 0, len(m.names))
	for _, name := range m.names {
		d, err := m.svc.Map().Lookup(name)
		if err != nil {
			continue
		}
		val := "--"
		if v, ok := m.snap[name]; ok && !v.Stale {
			val = format(v.Physical, d.Precision)
		}
		rows = append(rows, table.Row{
			name,
			val,
			d.Unit,
			fmt.Sprintf("%s..%s", format(d.Range.Min, -1), format(d.Range.Max, -1)),
		})
	}
	return rows
}

// reading renders name with its unit, coloured by band when band is non-nil.
func (m Model) reading(name string, precision int, band func(float64) Band) string {
	v, ok := m.snap[name]
	if !ok || v.Stale {
		return staleStyle.Render("--")
	}
	s := format(v.Physical, precision)
	if v.Unit != "" {
		s += " " + v.Unit
	}
	if band == nil {
		return s
	}
	return band(v.Physical).Style().Render(s)
}

func (m Model) View() string {
	var b strings.Builder

	tabs := []string{"Monitor", "Params"}
	for i, t := range tabs {
		if i == m.tab {
			tabs[i] = titleStyle.Render("[" + t + "]")
		} else {
			tabs[i] = " " + t + " "
		}
	}
	status := fmt.Sprintf("cycles %d", m.cycles)
	if m.lastErr != nil {
		status = Warn.Style().Render("last poll incomplete: " + m.lastErr.Error())
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(tabs, " "), "   ", status))
	b.WriteString("\n")

	if m.tab == tabMonitor {
		b.WriteString(m.viewMonitor())
	} else {
		b.WriteString(m.viewParams())
	}

	b.WriteString("\n")
	b.WriteString(baseStyle.Render(strings.Join(m.log, "\n")))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help()))
	return b.String()
}

func (m Model) help() string {
	switch m.mode {
	case modeEdit:
		return "enter - accept • esc - discard"
	case modeConfirm:
		return "y - write • f - write bypassing the change guard • n - cancel"
	}
	if m.tab == tabParams {
		return "↑/↓ - select • e - edit • t - monitor • q - quit"
	}
	return "t - parameters • q - quit"
}

func (m Model) viewMonitor() string {
	head := lipgloss.JoinHorizontal(lipgloss.Top,
		baseStyle.Render(titleStyle.Render("Pack")+"\n"+m.reading("pack_voltage", 2, PackVoltage16s)),
		baseStyle.Render(titleStyle.Render("Current")+"\n"+m.reading("current", 2, Current)),
		baseStyle.Render(titleStyle.Render("SoC")+"\n"+m.reading("soc", 1, StateOfCharge)),
		baseStyle.Render(titleStyle.Render("Power")+"\n"+m.reading("power", 2, nil)),
		baseStyle.Render(m.viewCells()),
	)

	lines := []string{
		fmt.Sprintf("Cell temps:        %s / %s / %s / %s",
			m.reading("cell_temp_1", 1, nil), m.reading("cell_temp_2", 1, nil),
			m.reading("cell_temp_3", 1, nil), m.reading("cell_temp_4", 1, nil)),
		fmt.Sprintf("Capacity left:     %s / %s", m.reading("remaining_capacity", 2, nil), m.reading("total_capacity", 2, nil)),
		fmt.Sprintf("Total discharge:   %s", m.reading("total_discharge_capacity", 0, nil)),
		fmt.Sprintf("SOH / cycles:      %s / %s", m.reading("soh", 1, nil), m.reading("cycles", 0, nil)),
		fmt.Sprintf("Max chg / dis:     %s / %s", m.reading("maxchgcurt", 0, nil), m.reading("maxdiscurt", 0, nil)),
		fmt.Sprintf("Cell delta:        %s", m.reading("cell_delta", 3, nil)),
	}
	return head + "\n" + baseStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) viewCells() string {
	var cells []register.Descriptor
	for _, d := range m.svc.Map().Descriptors() {
		if d.Group == register.GroupCells && d.Unit == "V" {
			cells = append(cells, d)
		}
	}
	if len(cells) == 0 {
		return ""
	}
	avg, haveAvg := m.snap.Physical("average_cell_voltage")

	perRow := (len(cells) + cellRows - 1) / cellRows
	var rows []string
	for start := 0; start < len(cells); start += perRow {
		end := min(start+perRow, len(cells))
		var row []string
		for _, d := range cells[start:end] {
			v, ok := m.snap.Physical(d.Name)
			if !ok {
				row = append(row, staleStyle.Render("_.___"))
				continue
			}
			row = append(row, Cell(v, avg, haveAvg).Style().Render(format(v, 3)))
		}
		rows = append(rows, strings.Join(row, " "))
	}
	return titleStyle.Render("Cells") + "\n" + strings.Join(rows, "\n")
}

func (m Model) viewParams() string {
	out := baseStyle.Render(m.params.View())
	switch m.mode {
	case modeEdit:
		out += "\n" + baseStyle.Render(m.editHeader()+"\n\n"+m.input.View())
	case modeConfirm:
		out += "\n" + baseStyle.Render(m.editHeader()+"\n\n"+
			titleStyle.Render(fmt.Sprintf("Write %s -> %s %s? ", m.pending.desc.Name, format(m.pending.value, -1), m.pending.desc.Unit))+"[y/f/n]")
	}
	return out
}

func (m Model) editHeader() string {
	d := m.pending.desc
	cur := "unknown"
	if m.pending.known {
		cur = format(m.pending.current.Physical, d.Precision) + " " + d.Unit
		if m.pending.current.Stale {
			cur += " (stale)"
		}
	}
	return fmt.Sprintf("%s  address 0x%04X\ncurrent %s, range %s..%s %s",
		titleStyle.Render(d.Title), d.Address, cur, format(d.Range.Min, -1), format(d.Range.Max, -1), d.Unit)
}
