package main

import (
	"github.com/spf13/cobra"

	"supplyledger/internal/core"
	"supplyledger/internal/deploy"
	"supplyledger/pkg/domain"
)

func newChainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Manage roles and move items through the supply chain",
	}
	cmd.PersistentFlags().String("chain", deploy.DefaultSupplyChainName, "supply chain deployment name")
	cmd.PersistentFlags().String("from", "", "acting address (default deploy.deployer)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Show the registry admin, role grants and deployment",
			Args:  cobra.NoArgs,
			RunE: withRegistry(func(cmd *cobra.Command, a *app, r *core.Registry, h deploy.Handle, _ []string) error {
				meta, err := r.Metadata(cmd.Context())
				if err != nil {
					return err
				}
				roles, err := r.Roles(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(struct {
					Deployment deploy.Handle           `json:"deployment"`
					Registry   domain.RegistryMetadata `json:"registry"`
					Roles      []domain.RoleGrant      `json:"roles"`
				}{h, meta, roles})
			}),
		},
		&cobra.Command{
			Use:   "grant-role ACCOUNT ROLE",
			Short: "Grant ROLE (admin|producer|buyer|shipper) to ACCOUNT",
			Args:  cobra.ExactArgs(2),
			RunE: withRegistry(func(cmd *cobra.Command, a *app, r *core.Registry, _ deploy.Handle, args []string) error {
				admin, account, role, err := roleArgs(cmd, a, args)
				if err != nil {
					return err
				}
				grant, _, err := r.GrantRole(cmd.Context(), admin, account, role)
				if err != nil {
					return err
				}
				return a.print(grant)
			}),
		},
		&cobra.Command{
			Use:   "revoke-role ACCOUNT ROLE",
			Short: "Revoke ROLE from ACCOUNT",
			Args:  cobra.ExactArgs(2),
			RunE: withRegistry(func(cmd *cobra.Command, a *app, r *core.Registry, _ deploy.Handle, args []string) error {
				admin, account, role, err := roleArgs(cmd, a, args)
				if err != nil {
					return err
				}
				if _, err := r.RevokeRole(cmd.Context(), admin, account, role); err != nil {
					return err
				}
				return a.print(domain.RoleGrant{Account: account, Role: role})
			}),
		},
		&cobra.Command{
			Use:   "create-item NAME PRICE",
			Short: "Register a new item in the created stage",
			Args:  cobra.ExactArgs(2),
			RunE: withRegistry(func(cmd *cobra.Command, a *app, r *core.Registry, _ deploy.Handle, args []string) error {
				producer, err := a.actor(cmd)
				if err != nil {
					return err
				}
				price, err := domain.ParseAmount(args[1])
				if err != nil {
					return err
				}
				item, _, err := r.CreateItem(cmd.Context(), producer, args[0], price)
				if err != nil {
					return err
				}
				return a.print(item)
			}),
		},
		&cobra.Command{
			Use:   "advance ITEM_ID",
			Short: "Move an item to its next stage",
			Args:  cobra.ExactArgs(1),
			RunE: withRegistry(func(cmd *cobra.Command, a *app, r *core.Registry, _ deploy.Handle, args []string) error {
				actor, err := a.actor(cmd)
				if err != nil {
					return err
				}
				item, _, err := r.Advance(cmd.Context(), args[0], actor)
				if err != nil {
					return err
				}
				return a.print(item)
			}),
		},
		&cobra.Command{
			Use:   "item ITEM_ID",
			Short: "Show one item with its stage history",
			Args:  cobra.ExactArgs(1),
			RunE: withRegistry(func(cmd *cobra.Command, a *app, r *core.Registry, _ deploy.Handle, args []string) error {
				item, err := r.GetItem(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.print(item)
			}),
		},
		&cobra.Command{
			Use:   "items",
			Short: "List items in creation order",
			Args:  cobra.NoArgs,
			RunE: withRegistry(func(cmd *cobra.Command, a *app, r *core.Registry, _ deploy.Handle, _ []string) error {
				items, err := r.ListItems(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(items)
			}),
		},
		&cobra.Command{
			Use:   "events",
			Short: "Print the registry event journal",
			Args:  cobra.NoArgs,
			RunE: withRegistry(func(cmd *cobra.Command, a *app, r *core.Registry, _ deploy.Handle, _ []string) error {
				events, err := r.Events(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(events)
			}),
		},
	)
	return cmd
}

func withRegistry(fn func(*cobra.Command, *app, *core.Registry, deploy.Handle, []string) error) func(*cobra.Command, []string) error {
	return run(func(cmd *cobra.Command, a *app, args []string) error {
		registry, h, err := a.deployer.Registry(flagString(cmd, "chain"))
		if err != nil {
			return err
		}
		return fn(cmd, a, registry, h, args)
	})
}

func roleArgs(cmd *cobra.Command, a *app, args []string) (domain.Address, domain.Address, domain.Role, error) {
	admin, err := a.actor(cmd)
	if err != nil {
		return "", "", "", err
	}
	account, err := domain.ParseAddress(args[0])
	if err != nil {
		return "", "", "", err
	}
	role, err := domain.ParseRole(args[1])
	if err != nil {
		return "", "", "", err
	}
	return admin, account, role, nil
}
