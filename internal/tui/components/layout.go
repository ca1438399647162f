package components

import (
	"strings"

	"mcpguard/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

type LayoutConfig struct {
	Title    string
	Subtitle string
	HelpText string
	MarginX  int
	MarginY  int
	MaxWidth int
}

type LayoutModel struct {
	config LayoutConfig
	width  int
	height int
	err    error
}

func NewLayout(config LayoutConfig) LayoutModel {
	if config.MarginX == 0 {
		config.MarginX = 2
	}
	if config.MarginY == 0 {
		config.MarginY = 1
	}
	if config.MaxWidth == 0 {
		config.MaxWidth = 160
	}

	return LayoutModel{config: config}
}

func (m LayoutModel) Update(msg tea.Msg) (LayoutModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}
	return m, nil
}

func (m LayoutModel) SetSubtitle(subtitle string) LayoutModel {
	m.config.Subtitle = subtitle
	return m
}

func (m LayoutModel) SetHelpText(helpText string) LayoutModel {
	m.config.HelpText = helpText
	return m
}

func (m LayoutModel) SetError(err error) LayoutModel {
	m.err = err
	return m
}

func (m LayoutModel) GetError() error {
	return m.err
}

// Render the complete layout around content. Content is placed as is; it is
// expected to be laid out for ContentWidth already.
func (m LayoutModel) Render(content string) string {
	sections := []string{}
	contentWidth := m.ContentWidth()

	// Title section
	if m.config.Title != "" {
		title := m.wrapText(m.config.Title, contentWidth)
		sections = append(sections, styles.TitleStyle.Render(title))
	}

	// Subtitle section
	if m.config.Subtitle != "" {
		subtitle := m.wrapText(m.config.Subtitle, contentWidth)
		sections = append(sections, styles.SubtitleStyle.Render(subtitle))
	}

	if content != "" {
		sections = append(sections, content)
	}

	// Error section
	if m.err != nil {
		errorText := "Error: " + m.err.Error()
		wrappedError := m.wrapText(errorText, contentWidth)
		sections = append(sections, styles.ErrorStyle.Render(wrappedError))
	}

	// Help text section
	if m.config.HelpText != "" {
		help := m.wrapText(m.config.HelpText, contentWidth)
		sections = append(sections, styles.HelpStyle.Render(help))
	}

	joined := strings.Join(sections, "\n")
	return m.addMargins(joined)
}

// wrapText word-wraps text, then hard-wraps words longer than width such as
// file paths.
func (m LayoutModel) wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = wrap.String(wordwrap.String(strings.TrimRight(line, " "), width), width)
	}
	return strings.Join(lines, "\n")
}

func (m LayoutModel) addMargins(content string) string {
	lines := strings.Split(content, "\n")
	marginLeft := strings.Repeat(" ", m.config.MarginX)

	for i, line := range lines {
		lines[i] = marginLeft + line
	}

	marginTop := strings.Repeat("\n", m.config.MarginY)
	return marginTop + strings.Join(lines, "\n")
}

// Helper methods for responsive design
func (m LayoutModel) ContentWidth() int {
	available := m.width - (m.config.MarginX * 2)
	if available > m.config.MaxWidth {
		return m.config.MaxWidth
	}
	if available < 40 {
		return 40 // Minimum readable width
	}
	return available
}

// ContentHeight is the height left for content after title, subtitle and help.
func (m LayoutModel) ContentHeight() int {
	h := m.height - m.config.MarginY - 7
	if h < 5 {
		return 5
	}
	return h
}
