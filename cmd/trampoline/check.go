package trampoline

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the project and the docker engine are usable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		p, err := loadProject()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Project %s found at %s\n", p.Config.Name, p.RootDir)
		if _, err := p.Env(); err != nil {
			return err
		}

		api, err := newDockerAPI()
		if err != nil {
			return err
		}
		defer api.Close()
		ping, err := api.Ping(cmd.Context())
		if err != nil {
			return fmt.Errorf("docker engine unreachable: %w", err)
		}
		fmt.Fprintf(w, "Docker engine reachable, API version %s\n", ping.APIVersion)
		return nil
	},
}
