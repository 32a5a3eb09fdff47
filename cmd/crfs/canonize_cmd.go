package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"crfs/internal/cmrdt"
	"crfs/internal/config"
	"crfs/internal/filetree"
	"crfs/internal/ignore"
	"crfs/internal/objectstore"
	"crfs/internal/repo"
)

var canonizeDir string

func init() {
	var canonizeCmd = &cobra.Command{
		Use:   "canonize",
		Short: "Record local changes and rewrite tracked files to canonical form",
		Long: `Scans the working directory for new, changed, and deleted files,
folds them into the local CRDT state, and rewrites every tracked file from
its CRDT state rather than leaving disk content as last edited. Does not
talk to a coordinator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rp, err := repo.FindRoot(canonizeDir)
			if err != nil {
				return fmt.Errorf("canonize: not a crfs working directory: %w", err)
			}

			identity, err := config.LoadIdentity(rp)
			if err != nil {
				return err
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

			var emitted int
			var emitErr error
			if err := mgr.Update(func(op cmrdt.Op) {
				emitted++
				if emitErr == nil {
					emitErr = store.WriteOp(op)
				}
			}); err != nil {
				return err
			}
			if emitErr != nil {
				return fmt.Errorf("canonize: persisting local op: %w", emitErr)
			}

			for _, id := range mgr.ActiveDrivers() {
				if err := mgr.WriteCanonical(id); err != nil {
					return err
				}
			}

			if err := mgr.WriteOut(store); err != nil {
				return err
			}

			fmt.Printf("Canonized: %d operation(s) recorded\n", emitted)
			return nil
		},
	}
	canonizeCmd.Flags().StringVarP(&canonizeDir, "dir", "d", ".", "Working directory")
	rootCmd.AddCommand(canonizeCmd)
}
