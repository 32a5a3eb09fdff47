package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"crfs/internal/config"
	"crfs/internal/coordauth"
	"crfs/internal/coordclient"
	"crfs/internal/repo"
)

var (
	setupServer   string
	setupUserID   string
	setupFSID     string
	setupUserName string
	setupFSName   string
	setupDir      string
)

func parseOrGenerateUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}

func init() {
	var setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Register this replica with a coordinator",
		Long: `Registers (or re-registers) the working directory's replica with a
coordinator server: checks or creates the user and filesystem accounts,
enrols this replica, and caches the resulting identity behind a passphrase.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if setupServer == "" {
				return fmt.Errorf("--server is required")
			}
			rp, err := repo.FindRoot(setupDir)
			if err != nil {
				return fmt.Errorf("setup: not a crfs working directory: %w", err)
			}

			userID, err := parseOrGenerateUUID(setupUserID)
			if err != nil {
				return fmt.Errorf("setup: malformed --user-id: %w", err)
			}
			fsID, err := parseOrGenerateUUID(setupFSID)
			if err != nil {
				return fmt.Errorf("setup: malformed --fs-id: %w", err)
			}

			identity, err := config.LoadIdentity(rp)
			if err != nil {
				return err
			}
			identity.ServerAddr = setupServer
			identity.UserID = userID
			identity.FSID = fsID
			identity.UserName = setupUserName
			identity.FSName = setupFSName
			if err := config.SaveIdentity(rp, identity); err != nil {
				return err
			}

			client := coordclient.New(setupServer)
			if err := client.Ping(); err != nil {
				return fmt.Errorf("setup: coordinator unreachable: %w", err)
			}

			hasUser, err := client.CheckUser(userID)
			if err != nil {
				return err
			}
			if !hasUser {
				if err := client.RegisterUser(userID, identity.UserName); err != nil {
					return err
				}
			}

			hasFS, err := client.CheckFS(userID, fsID)
			if err != nil {
				return err
			}
			if !hasFS {
				if err := client.RegisterFS(userID, fsID, identity.FSName); err != nil {
					return err
				}
			}

			if err := client.Enrol(userID, fsID, identity.ReplicaID); err != nil {
				return err
			}

			if err := coordauth.Save(coordauth.Credentials{
				ServerAddr: setupServer,
				UserID:     userID,
				FSID:       fsID,
			}); err != nil {
				return fmt.Errorf("setup: caching credentials: %w", err)
			}

			fmt.Printf("Enrolled replica %s as user %s on filesystem %s via %s\n",
				identity.ReplicaID, userID, fsID, setupServer)
			return nil
		},
	}

	setupCmd.Flags().StringVar(&setupServer, "server", "", "Coordinator address, host:port")
	setupCmd.Flags().StringVar(&setupUserID, "user-id", "", "Existing user UUID (generated if omitted)")
	setupCmd.Flags().StringVar(&setupFSID, "fs-id", "", "Existing filesystem UUID (generated if omitted)")
	setupCmd.Flags().StringVar(&setupUserName, "user-name", "", "Display name for a newly registered user")
	setupCmd.Flags().StringVar(&setupFSName, "fs-name", "", "Display name for a newly registered filesystem")
	setupCmd.Flags().StringVarP(&setupDir, "dir", "d", ".", "Working directory")
	rootCmd.AddCommand(setupCmd)
}
