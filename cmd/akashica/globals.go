package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rybkr/akashica/internal/engine"
	"github.com/rybkr/akashica/internal/storage"
	"github.com/rybkr/akashica/internal/storage/boltstore"
	"github.com/rybkr/akashica/internal/storage/localfs"
	"github.com/rybkr/akashica/internal/storage/memstore"
)

// Global flags, shared across the whole command tree (mirroring
// gitvista's own cmd/gitcli/globals.go pattern of a small flags struct
// parsed once at the root).
var (
	flagRepoDir string
	flagBackend string
)

var rootCmd = &cobra.Command{
	Use:           "akashica",
	Short:         "Content-addressed repository engine with Git-like semantics",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRepoDir, "repo-dir", defaultRepoDir(), "repository storage location (localfs directory, or bbolt file when --backend=bolt)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "localfs", "storage backend: localfs, bolt, or memory")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(scrubCmd)
	rootCmd.AddCommand(serveCmd)
}

func defaultRepoDir() string {
	if v := os.Getenv("AKASHICA_REPO_DIR"); v != "" {
		return v
	}
	return ".akashica"
}

// openAdapter constructs the storage.Adapter named by --backend. "memory"
// exists for quick experimentation/tests of the CLI itself; it does not
// persist across invocations.
func openAdapter() (storage.Adapter, func(), error) {
	switch flagBackend {
	case "localfs":
		fs, err := localfs.New(flagRepoDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open localfs store: %w", err)
		}
		return fs, func() {}, nil
	case "bolt":
		store, err := boltstore.Open(flagRepoDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "memory":
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown --backend %q (want localfs, bolt, or memory)", flagBackend)
	}
}

// openRepository wires a Repository to the configured adapter. Callers must
// invoke the returned cleanup func once done.
func openRepository() (*engine.Repository, func(), error) {
	adapter, cleanup, err := openAdapter()
	if err != nil {
		return nil, nil, err
	}
	repo := engine.NewRepository(adapter, engine.Config{Logger: slog.Default()})
	return repo, cleanup, nil
}

// openChangeset resolves id to a read path, dispatching on the workspace
// id's "$" separator (§3) the same way internal/httpapi does.
func openChangeset(repo *engine.Repository, id string) (*engine.Session, error) {
	if strings.Contains(id, "$") {
		return repo.OpenWorkspace(id)
	}
	return repo.OpenCommit(id)
}
