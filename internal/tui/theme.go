package tui

import "github.com/charmbracelet/lipgloss"

// Catppuccin Mocha, the subset the paint view uses.
const (
	colorPink     lipgloss.Color = "#f5c2e7"
	colorMauve    lipgloss.Color = "#cba6f7"
	colorRed      lipgloss.Color = "#f38ba8"
	colorPeach    lipgloss.Color = "#fab387"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorLavender lipgloss.Color = "#b4befe"

	colorText     lipgloss.Color = "#cdd6f4"
	colorSubtext1 lipgloss.Color = "#bac2de"
	colorSubtext0 lipgloss.Color = "#a6adc8"
	colorOverlay1 lipgloss.Color = "#7f849c"
	colorSurface1 lipgloss.Color = "#45475a"
	colorSurface0 lipgloss.Color = "#313244"
	colorMantle   lipgloss.Color = "#181825"
)

const (
	colorBrand   = colorPink
	colorSuccess = colorGreen
	colorError   = colorRed
	colorWarning = colorYellow
	colorInfo    = colorTeal
)

var (
	headerBarStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorMantle).
			Padding(0, 2)

	headerAppStyle = lipgloss.NewStyle().
			Foreground(colorBrand).
			Bold(true)

	labelStyle = lipgloss.NewStyle().Foreground(colorSubtext0).Width(10)
	valueStyle = lipgloss.NewStyle().Foreground(colorText)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface1).
			Padding(0, 1)

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorWarning).
			Foreground(colorWarning).
			Bold(true).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorSubtext1).
			Background(colorSurface0).
			Padding(0, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorSubtext0).
			Background(colorMantle).
			Padding(0, 2)

	helpKeyStyle  = lipgloss.NewStyle().Foreground(colorBrand).Bold(true)
	helpDescStyle = lipgloss.NewStyle().Foreground(colorSubtext0)

	paintedStyle   = lipgloss.NewStyle().Foreground(colorSuccess)
	rejectedStyle  = lipgloss.NewStyle().Foreground(colorOverlay1)
	transientStyle = lipgloss.NewStyle().Foreground(colorPeach)
	errorStyle     = lipgloss.NewStyle().Foreground(colorError)
	infoStyle      = lipgloss.NewStyle().Foreground(colorInfo)
)
