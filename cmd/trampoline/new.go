package trampoline

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/trampoline/internal/docker"
	"github.com/manifest-network/trampoline/internal/project"
)

var newCmd = &cobra.Command{
	Use:     "new [name]",
	Aliases: []string{"n"},
	Short:   "Create a new trampoline project",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, err := os.Getwd()
		if err != nil {
			return err
		}
		if dir := viper.GetString("project"); dir != "." {
			parent = dir
		}

		// Refuse to nest a project inside another one.
		if existing, err := project.Load(parent); err == nil {
			return &project.AlreadyExistsError{Name: existing.Config.Name, Path: existing.RootDir}
		}

		p, err := project.Init(parent, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %s created at %s\n", p.Config.Name, p.RootDir)

		if !viper.GetBool("build-image") {
			return nil
		}
		img := docker.Image{Name: p.Config.Name, Tag: "latest", FilePath: p.RootDir}
		slog.Info("Building project image", "image", img.Ref())
		if err := docker.BuildImage(img, true).Run(cmd.Context()); err != nil {
			return fmt.Errorf("failed to build project image: %w", err)
		}
		return nil
	},
}

func init() {
	newCmd.Flags().Bool("build-image", false, "Build the project docker image")
	if err := viper.BindPFlags(newCmd.Flags()); err != nil {
		slog.Error("Failed to bind newCmd flags", "error", err)
	}
}
