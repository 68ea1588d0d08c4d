package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var scrubCmd = &cobra.Command{
	Use:   "scrub",
	Short: "Destructively remove object content by hash (§4.8)",
}

func init() {
	scrubCmd.AddCommand(scrubContentCmd)
	scrubCmd.AddCommand(scrubListCmd)
}

var (
	flagScrubReason    string
	flagScrubDeletedBy string
)

var scrubContentCmd = &cobra.Command{
	Use:   "content <hash>",
	Short: "Replace an object's bytes with a tombstone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := repo.ScrubContent(args[0], flagScrubReason, flagScrubDeletedBy); err != nil {
			return err
		}
		pterm.Success.Printf("scrubbed %s\n", args[0])
		return nil
	},
}

func init() {
	scrubContentCmd.Flags().StringVar(&flagScrubReason, "reason", "", "reason recorded in the tombstone")
	scrubContentCmd.Flags().StringVar(&flagScrubDeletedBy, "deleted-by", "", "who requested the scrub")
}

var scrubListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tombstones and the bytes reclaimed",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()

		tombs, reclaimed, err := repo.ListScrubbedContent()
		if err != nil {
			return err
		}
		table := pterm.TableData{{"HASH", "REASON", "DELETED BY", "SIZE"}}
		for _, t := range tombs {
			table = append(table, []string{t.DeletedHash, t.Reason, t.DeletedBy, fmt.Sprintf("%d", t.OriginalSize)})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(table).Render(); err != nil {
			return err
		}
		pterm.Info.Printf("%d bytes reclaimed across %d tombstone(s)\n", reclaimed, len(tombs))
		return nil
	},
}
