package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rybkr/akashica/internal/engine"
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Inspect and move branch pointers",
}

func init() {
	branchCmd.AddCommand(branchListCmd)
	branchCmd.AddCommand(branchHeadCmd)
	branchCmd.AddCommand(branchLogCmd)
	branchCmd.AddCommand(branchResetCmd)
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		names, err := repo.ListBranches()
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var branchHeadCmd = &cobra.Command{
	Use:   "head <name>",
	Short: "Print a branch's current head commit id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		head, err := repo.CurrentCommit(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), head)
		return nil
	},
}

var flagLogLimit int

var branchLogCmd = &cobra.Command{
	Use:   "log <name>",
	Short: "Show a branch's commit history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		head, err := repo.CurrentCommit(args[0])
		if err != nil {
			return err
		}
		commits, err := repo.History(head, flagLogLimit)
		if err != nil {
			return err
		}
		return printCommitLog(commits)
	},
}

func init() {
	branchLogCmd.Flags().IntVar(&flagLogLimit, "limit", 20, "maximum number of commits to show (0 = unbounded)")
}

var (
	flagResetForce bool
)

var branchResetCmd = &cobra.Command{
	Use:   "reset <name> <target-commit>",
	Short: "Move a branch to target, enforcing ancestry unless --force is set",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		if err := repo.ResetBranch(args[0], args[1], flagResetForce); err != nil {
			return err
		}
		pterm.Success.Printf("%s now at %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	branchResetCmd.Flags().BoolVar(&flagResetForce, "force", false, "bypass the ancestry check")
}

// printCommitLog renders commits as a table, truncating the message column
// to the terminal width when stdout is a TTY (falling back to 100 columns
// otherwise, e.g. when piped).
func printCommitLog(commits []engine.Commit) error {
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w
	}
	msgWidth := width - 60
	if msgWidth < 10 {
		msgWidth = 10
	}

	table := pterm.TableData{{"COMMIT", "AUTHOR", "MESSAGE"}}
	for _, c := range commits {
		msg := c.Message
		if len(msg) > msgWidth {
			msg = msg[:msgWidth-1] + "…"
		}
		table = append(table, []string{c.ID, c.Author, msg})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
}
