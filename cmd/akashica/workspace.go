package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/rybkr/akashica/internal/engine"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Create and edit workspaces, the mutable overlay over a base commit",
}

func init() {
	workspaceCmd.AddCommand(workspaceCreateCmd)
	workspaceCmd.AddCommand(workspaceWriteCmd)
	workspaceCmd.AddCommand(workspaceCatCmd)
	workspaceCmd.AddCommand(workspaceLsCmd)
	workspaceCmd.AddCommand(workspaceRmFileCmd)
	workspaceCmd.AddCommand(workspaceMvCmd)
	workspaceCmd.AddCommand(workspaceStatusCmd)
	workspaceCmd.AddCommand(workspaceDiffCmd)
	workspaceCmd.AddCommand(workspacePublishCmd)
	workspaceCmd.AddCommand(workspaceRmCmd)
}

var (
	flagFromCommit string
	flagFromBranch string
	flagCreator    string
)

var workspaceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a workspace rooted on a commit or a branch's current head",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()

		var sess *engine.Session
		if flagFromBranch != "" {
			sess, err = repo.CreateWorkspaceFromBranch(flagFromBranch, flagCreator)
		} else {
			if flagFromCommit == "" {
				flagFromCommit = "@0"
			}
			sess, err = repo.CreateWorkspace(flagFromCommit, flagCreator)
		}
		if err != nil {
			return err
		}
		pterm.Success.Printf("created workspace %s\n", sess.WorkspaceID())
		return nil
	},
}

func init() {
	workspaceCreateCmd.Flags().StringVar(&flagFromCommit, "from", "", "base commit id (default @0)")
	workspaceCreateCmd.Flags().StringVar(&flagFromBranch, "branch", "", "base on this branch's current head instead of --from")
	workspaceCreateCmd.Flags().StringVar(&flagCreator, "creator", "", "creator name recorded in workspace metadata")
}

var workspaceWriteCmd = &cobra.Command{
	Use:   "write <workspace> <path> [file]",
	Short: "Write bytes at path in the workspace, reading from file or stdin",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()

		sess, err := repo.OpenWorkspace(args[0])
		if err != nil {
			return err
		}

		var data []byte
		if len(args) == 3 {
			data, err = os.ReadFile(args[2])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if err := sess.WriteFile(args[1], data); err != nil {
			return err
		}
		pterm.Success.Printf("wrote %d bytes to %s\n", len(data), args[1])
		return nil
	},
}

var workspaceCatCmd = &cobra.Command{
	Use:   "cat <commit-or-workspace> <path>",
	Short: "Print the bytes at path in a commit or workspace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		sess, err := openChangeset(repo, args[0])
		if err != nil {
			return err
		}
		data, err := sess.ReadFile(args[1])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var workspaceLsCmd = &cobra.Command{
	Use:   "ls <commit-or-workspace> [path]",
	Short: "List a directory's entries in a commit or workspace",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		sess, err := openChangeset(repo, args[0])
		if err != nil {
			return err
		}
		path := ""
		if len(args) == 2 {
			path = args[1]
		}
		entries, err := sess.ListDirectory(path)
		if err != nil {
			return err
		}
		table := pterm.TableData{{"NAME", "KIND", "SIZE", "HASH"}}
		for _, e := range entries {
			kind := "file"
			if e.Kind == engine.KindDir {
				kind = "dir"
			}
			table = append(table, []string{e.Name, kind, fmt.Sprintf("%d", e.Size), string(e.Hash)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
	},
}

var workspaceRmFileCmd = &cobra.Command{
	Use:   "rm-file <workspace> <path>",
	Short: "Delete path from the workspace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		sess, err := repo.OpenWorkspace(args[0])
		if err != nil {
			return err
		}
		if err := sess.DeleteFile(args[1]); err != nil {
			return err
		}
		pterm.Success.Printf("deleted %s\n", args[1])
		return nil
	},
}

var workspaceMvCmd = &cobra.Command{
	Use:   "mv <workspace> <from> <to>",
	Short: "Rename a file in the workspace, preserving content identity",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		sess, err := repo.OpenWorkspace(args[0])
		if err != nil {
			return err
		}
		if err := sess.MoveFile(args[1], args[2]); err != nil {
			return err
		}
		pterm.Success.Printf("moved %s -> %s\n", args[1], args[2])
		return nil
	},
}

var workspaceStatusCmd = &cobra.Command{
	Use:   "status <workspace>",
	Short: "Show added/modified/deleted paths relative to the workspace's base commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		sess, err := repo.OpenWorkspace(args[0])
		if err != nil {
			return err
		}
		entries, err := sess.Status()
		if err != nil {
			return err
		}
		return printChanges(entries)
	},
}

var flagDiffAgainst string

var workspaceDiffCmd = &cobra.Command{
	Use:   "diff <workspace>",
	Short: "Show added/modified/deleted paths relative to an arbitrary commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		sess, err := repo.OpenWorkspace(args[0])
		if err != nil {
			return err
		}
		if flagDiffAgainst == "" {
			return fmt.Errorf("--against is required")
		}
		entries, err := sess.Diff(flagDiffAgainst)
		if err != nil {
			return err
		}
		return printChanges(entries)
	},
}

func init() {
	workspaceDiffCmd.Flags().StringVar(&flagDiffAgainst, "against", "", "commit id to diff the workspace against")
}

var (
	flagPublishBranch  string
	flagPublishMessage string
	flagPublishAuthor  string
)

var workspacePublishCmd = &cobra.Command{
	Use:   "publish <workspace>",
	Short: "Materialize a workspace into a new commit and advance a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()

		spinner, _ := pterm.DefaultSpinner.Start("publishing workspace")
		commitID, err := repo.Publish(args[0], flagPublishBranch, flagPublishMessage, flagPublishAuthor)
		if err != nil {
			spinner.Fail(err.Error())
			return err
		}
		spinner.Success(fmt.Sprintf("published %s to %s", commitID, flagPublishBranch))
		return nil
	},
}

func init() {
	workspacePublishCmd.Flags().StringVar(&flagPublishBranch, "branch", "main", "branch to advance")
	workspacePublishCmd.Flags().StringVar(&flagPublishMessage, "message", "", "commit message")
	workspacePublishCmd.Flags().StringVar(&flagPublishAuthor, "author", "", "commit author")
}

var workspaceRmCmd = &cobra.Command{
	Use:   "rm <workspace>",
	Short: "Discard a workspace without publishing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, cleanup, err := openRepository()
		if err != nil {
			return err
		}
		defer cleanup()
		if err := repo.DeleteWorkspace(args[0]); err != nil {
			return err
		}
		pterm.Success.Printf("deleted workspace %s\n", args[0])
		return nil
	},
}

func printChanges(entries []engine.StatusEntry) error {
	if len(entries) == 0 {
		pterm.Info.Println("no changes")
		return nil
	}
	table := pterm.TableData{{"CHANGE", "PATH"}}
	for _, e := range entries {
		table = append(table, []string{e.Change, e.Path})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(table).Render()
}
