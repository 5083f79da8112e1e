package console

import "github.com/charmbracelet/lipgloss"

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	waitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("44"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	codeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("25")).
			Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(1, 3)
)

const logo = `
 _   _ _                 ____              _
| | | (_)_ __   ___ _ __| __ )  ___   ___ | |_
| |_| | | '_ \ / _ \ '__|  _ \ / _ \ / _ \| __|
|  _  | | |_) |  __/ |  | |_) | (_) | (_) | |_
|_| |_|_| .__/ \___|_|  |____/ \___/ \___/ \__|
        |_|`
