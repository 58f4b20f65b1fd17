package main

import (
	"github.com/spf13/cobra"

	"supplyledger/internal/archive"
	"supplyledger/internal/deploy"
	"supplyledger/internal/infra/persistence/memory"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Archive component state to blob storage and read it back",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "export NAME",
			Short: "Archive the current state of deployment NAME",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, a *app, args []string) error {
				snap, h, err := a.deployer.Snapshot(args[0])
				if err != nil {
					return err
				}
				arch, err := a.archiver(cmd.Context())
				if err != nil {
					return err
				}
				entry, err := arch.Save(cmd.Context(), h.Namespace(), snap)
				if err != nil {
					return err
				}
				a.log.Info().Str("name", h.Name).Str("key", entry.Key).Msg("snapshot archived")
				return a.print(entry)
			}),
		},
		&cobra.Command{
			Use:   "show NAME",
			Short: "Print the newest archived snapshot of deployment NAME",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, a *app, args []string) error {
				h, err := a.deployer.Lookup(args[0])
				if err != nil {
					return err
				}
				arch, err := a.archiver(cmd.Context())
				if err != nil {
					return err
				}
				snap, entry, err := arch.Latest(cmd.Context(), h.Namespace())
				if err != nil {
					return err
				}
				return a.print(struct {
					Deployment deploy.Handle   `json:"deployment"`
					Archive    archive.Entry   `json:"archive"`
					State      memory.Snapshot `json:"state"`
				}{h, entry, snap})
			}),
		},
		&cobra.Command{
			Use:   "list NAME",
			Short: "List archived snapshots of deployment NAME, oldest first",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, a *app, args []string) error {
				h, err := a.deployer.Lookup(args[0])
				if err != nil {
					return err
				}
				arch, err := a.archiver(cmd.Context())
				if err != nil {
					return err
				}
				entries, err := arch.List(cmd.Context(), h.Namespace())
				if err != nil {
					return err
				}
				return a.print(entries)
			}),
		},
	)
	return cmd
}
