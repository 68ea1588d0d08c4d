package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the initial empty commit (@0) if it does not already exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()

		spinner, _ := pterm.DefaultSpinner.Start("initializing repository")
		commitID, err := repo.Init()
		if err != nil {
			spinner.Fail(err.Error())
			return err
		}
		spinner.Success(fmt.Sprintf("repository ready at %s", commitID))
		return nil
	},
}
