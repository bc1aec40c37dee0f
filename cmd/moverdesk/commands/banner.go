package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/teranos/moverdesk/am"
	"github.com/teranos/moverdesk/logger"
	"github.com/teranos/moverdesk/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(verbosity int, cfg *am.Config) {
	info := version.Get()

	pterm.DefaultHeader.
		WithBackgroundStyle(pterm.NewStyle(pterm.BgCyan)).
		WithTextStyle(pterm.NewStyle(pterm.FgBlack, pterm.Bold)).
		Println("moverdesk")

	auth := "session tokens required"
	if cfg.Identity.Disabled {
		auth = pterm.Yellow("DISABLED (payload emails trusted)")
	}

	rows := [][]string{
		{"Version", fmt.Sprintf("%s (commit %s)", info.Version, info.Short())},
		{"Built", info.BuildTime},
		{"Verbosity", logger.LevelName(verbosity)},
		{"Port", fmt.Sprintf("%d", cfg.Server.Port)},
		{"Records", cfg.Records.Owner + "/" + cfg.Records.App},
		{"Radius", fmt.Sprintf("%.2f mi", cfg.Timeclock.RadiusMiles)},
		{"Auth", auth},
	}
	_ = pterm.DefaultTable.WithData(rows).Render()

	pterm.Info.Println("Press Ctrl+C to stop")
}
