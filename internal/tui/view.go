package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wesm/msgscroll/internal/query"
	"github.com/wesm/msgscroll/internal/scrolltable"
)

// Monochrome theme - adaptive for light and dark terminals
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgAlt    = lipgloss.AdaptiveColor{Light: "#f0f0f0", Dark: "#181818"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	tabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			Background(bgBase)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	separatorStyle = lipgloss.NewStyle().
			Faint(true).
			Background(bgBase)

	// Cursor row: subtle lighter background
	cursorRowStyle = lipgloss.NewStyle().
			Background(bgCursor)

	// Grouped (checked) rows: bold
	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	altRowStyle = lipgloss.NewStyle().
			Background(bgAlt)

	unreadStyle = lipgloss.NewStyle().
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	loadingStyle = lipgloss.NewStyle().
			Italic(true).
			Faint(true).
			Background(bgBase)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}).
			Background(bgBase)
)

const (
	markWidth = 2
	fromWidth = 22
	dateWidth = 10
	sizeWidth = 9
	minSubj   = 10
)

// placeholderText marks a row that has not been fetched yet.
const placeholderText = "… loading"

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(m.renderTitle(width))
	b.WriteByte('\n')
	b.WriteString(m.renderTabs(width))
	b.WriteByte('\n')
	b.WriteString(m.renderList(width))
	b.WriteString(m.renderFooter(width))
	return b.String()
}

func (m Model) renderTitle(width int) string {
	title := "msgscroll"
	if m.version != "" {
		title += " " + m.version
	}
	title += " - " + m.table.View().String()
	return titleBarStyle.Render(padRight(title, width-2))
}

func (m Model) renderTabs(width int) string {
	cur := m.table.View()
	counts := make(map[string]query.ViewCount, len(m.counts))
	for _, c := range m.counts {
		counts[c.View] = c
	}

	parts := make([]string, 0, len(query.Folders)+1)
	for _, name := range query.Folders {
		label := name
		if c, ok := counts[name]; ok {
			label = fmt.Sprintf("%s %s", name, formatCount(c.Total))
			if c.Unread > 0 {
				label += fmt.Sprintf(" (%s)", formatCount(c.Unread))
			}
		}
		if cur.Kind == scrolltable.ByFolder && cur.Value == name {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	if cur.Kind != scrolltable.ByFolder {
		parts = append(parts, activeTabStyle.Render(cur.String()))
	}
	return padRight(strings.Join(parts, tabStyle.Render("  ")), width)
}

// subjectWidth gives the subject column whatever the fixed columns leave.
func subjectWidth(width int) int {
	return max(width-markWidth-fromWidth-dateWidth-sizeWidth-3, minSubj)
}

func (m Model) renderList(width int) string {
	subj := subjectWidth(width)
	var b strings.Builder

	header := strings.Repeat(" ", markWidth) +
		padRight("From", fromWidth) + " " +
		padRight("Subject", subj) + " " +
		padRight("Date", dateWidth) + " " +
		fmt.Sprintf("%*s", sizeWidth, "Size")
	b.WriteString(tableHeaderStyle.Render(padRight(header, width)))
	b.WriteByte('\n')
	b.WriteString(separatorStyle.Render(strings.Repeat("─", width)))
	b.WriteByte('\n')

	total := m.table.Store().TotalRowCount()
	lines := 0
	switch {
	case !m.table.Loaded() && m.loading:
		b.WriteString(loadingStyle.Render(padRight("  Loading "+m.table.View().String()+"...", width)))
		b.WriteByte('\n')
		lines++
	case !m.table.Loaded():
		b.WriteString(normalRowStyle.Render(padRight("  View not loaded (ctrl+r to retry)", width)))
		b.WriteByte('\n')
		lines++
	case total == 0:
		b.WriteString(normalRowStyle.Render(padRight("  No messages", width)))
		b.WriteByte('\n')
		lines++
	default:
		end := min(m.scrollOffset+m.pageSize, total)
		for offset := m.scrollOffset; offset < end; offset++ {
			b.WriteString(m.renderRow(offset, width, subj))
			b.WriteByte('\n')
			lines++
		}
	}
	for ; lines < m.pageSize; lines++ {
		b.WriteString(normalRowStyle.Render(strings.Repeat(" ", width)))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m Model) renderRow(offset, width, subj int) string {
	row, ok := m.table.Store().GetByOffset(offset)
	if !ok {
		line := padRight(strings.Repeat(" ", markWidth)+placeholderText, width)
		if offset == m.cursor {
			return cursorRowStyle.Render(line)
		}
		return loadingStyle.Render(line)
	}

	sel := m.table.Selection()
	mark := "  "
	if sel.InGroup(row.ID) {
		mark = "✓ "
	} else if !row.Bool(scrolltable.ReadColumn) {
		mark = "• "
	}
	from := row.Text("sender_name")
	if from == "" {
		from = row.Text("sender")
	}
	line := mark +
		padRight(truncateRunes(from, fromWidth), fromWidth) + " " +
		padRight(truncateRunes(row.Text("subject"), subj), subj) + " " +
		padRight(formatDate(row.Time("sent_at"), m.now()), dateWidth) + " " +
		fmt.Sprintf("%*s", sizeWidth, formatBytes(int64(row.Number("size"))))
	line = padRight(line, width)

	style := normalRowStyle
	switch {
	case offset == m.cursor:
		style = cursorRowStyle
	case sel.InGroup(row.ID):
		style = selectedRowStyle
	case offset%2 == 1:
		style = altRowStyle
	}
	if !row.Bool(scrolltable.ReadColumn) {
		style = style.Inherit(unreadStyle)
	}
	return style.Render(line)
}

func (m Model) renderFooter(width int) string {
	if m.prompt != promptNone {
		label := "Person: "
		if m.prompt == promptTag {
			label = "Tag: "
		}
		return footerStyle.Render(padRight(label+m.input.View(), width-2))
	}
	if m.err != nil {
		return errorStyle.Render(padRight(" Error: "+m.err.Error(), width))
	}

	total := m.table.Store().TotalRowCount()
	status := fmt.Sprintf("%d/%d", min(m.cursor+1, total), total)
	if n := m.table.Selection().GroupSize(); n > 0 {
		status += fmt.Sprintf("  %d selected", n)
	}
	if m.table.Fetcher().Busy() {
		status += "  fetching"
	}
	if m.flashMessage != "" && m.now().Before(m.flashExpiresAt) {
		status += "  " + flashStyle.Render(m.flashMessage)
	} else {
		status += "  j/k move  space select  a archive  d delete  tab folder  q quit"
	}
	return footerStyle.Render(padRight(status, width-2))
}
