package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"crfs/internal/repo"
)

func init() {
	var initCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize a new crfs working directory",
		Long:  `Creates a .crfs directory holding the object store, metadata snapshots, and config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			if err := repo.Init(path); err != nil {
				return err
			}
			fmt.Println("Initialized crfs working directory at", path)
			return nil
		},
	}
	rootCmd.AddCommand(initCmd)
}
