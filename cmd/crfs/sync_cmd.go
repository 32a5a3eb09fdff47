package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"crfs/internal/config"
	"crfs/internal/coordauth"
	"crfs/internal/coordclient"
	"crfs/internal/filetree"
	"crfs/internal/ignore"
	"crfs/internal/objectstore"
	"crfs/internal/repo"
	syncdriver "crfs/internal/sync"
)

var syncDir string

func init() {
	var syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Exchange operations with the configured coordinator",
		Long: `Records local changes, exchanges operation-hash sets with the
coordinator this working directory was set up against, applies anything
newly pulled, and rewrites the affected files to their canonical form.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rp, err := repo.FindRoot(syncDir)
			if err != nil {
				return fmt.Errorf("sync: not a crfs working directory: %w", err)
			}

			identity, err := config.LoadIdentity(rp)
			if err != nil {
				return err
			}

			creds, err := coordauth.Load()
			if err != nil {
				return fmt.Errorf("sync: loading cached coordinator credentials (run \"crfs setup\" first): %w", err)
			}

			ig, err := ignore.LoadIgnoreFile(rp)
			if err != nil {
				return err
			}

			store := objectstore.New(filepath.Join(rp, repo.CrfsDir))
			mgr, err := filetree.Load(store, rp, ig, identity.ReplicaID)
			if err != nil {
				return err
			}

			client := coordclient.New(creds.ServerAddr)
			driver := syncdriver.New(client, store, creds.UserID, creds.FSID)

			result, err := syncdriver.Run(mgr, store, driver)
			if err != nil {
				return err
			}

			fmt.Printf("Sync complete: %d operation(s) pulled, %d unapplied\n", len(result.Pulled), result.Unapplied)
			return nil
		},
	}
	syncCmd.Flags().StringVarP(&syncDir, "dir", "d", ".", "Working directory")
	rootCmd.AddCommand(syncCmd)
}
