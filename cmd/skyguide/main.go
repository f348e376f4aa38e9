package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skyguide-inc/skyguide/internal/interfaces/cli/migrate"
	"github.com/skyguide-inc/skyguide/internal/interfaces/cli/server"
	"github.com/skyguide-inc/skyguide/internal/interfaces/cli/sessions"
	"github.com/skyguide-inc/skyguide/internal/shared/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "skyguide",
		Short:   "SkyGuide - session backend for the SkyGuide web app",
		Long:    `SkyGuide serves authentication, single-active-session enforcement and guarded pages, with migration and session maintenance tools.`,
		Version: version.String(),
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
		sessions.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
