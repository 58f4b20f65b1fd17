package main

import (
	"github.com/spf13/cobra"

	"supplyledger/internal/core"
	"supplyledger/internal/deploy"
	"supplyledger/pkg/domain"
)

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the token and the supply chain with the migration defaults",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, a *app, _ []string) error {
			deployer, err := a.actor(cmd)
			if err != nil {
				return err
			}
			params, err := tokenParams(cmd, a.cfg.Token)
			if err != nil {
				return err
			}
			only, _ := cmd.Flags().GetString("only")
			var handles []deploy.Handle
			switch only {
			case "":
				handles, err = a.deployer.DeployDefaults(cmd.Context(), deployer, params)
			case string(deploy.ComponentToken):
				var h deploy.Handle
				h, err = a.deployer.DeployToken(cmd.Context(), deployer, params, deploy.WithName(flagString(cmd, "name")))
				handles = append(handles, h)
			case string(deploy.ComponentSupplyChain):
				var h deploy.Handle
				h, err = a.deployer.DeploySupplyChain(cmd.Context(), deployer, deploy.WithName(flagString(cmd, "name")))
				handles = append(handles, h)
			default:
				return usageErr("--only must be %s or %s", deploy.ComponentToken, deploy.ComponentSupplyChain)
			}
			if err != nil {
				return err
			}
			for _, h := range handles {
				a.log.Info().Str("name", h.Name).Str("address", h.Address.String()).Str("component", string(h.Component)).Msg("deployed")
			}
			return a.print(handles)
		}),
	}
	flags := cmd.Flags()
	flags.String("from", "", "deployer address (default deploy.deployer)")
	flags.String("only", "", "deploy a single component: token|supply_chain")
	flags.String("name", "", "deployment name when --only is set")
	flags.String("total-supply", "", "token total supply")
	flags.String("token-name", "", "token name")
	flags.Uint8("decimals", 0, "token decimals")
	flags.String("symbol", "", "token symbol")
	return cmd
}

// tokenParams applies explicitly set flags on top of the configured params.
func tokenParams(cmd *cobra.Command, base core.TokenParams) (core.TokenParams, error) {
	flags := cmd.Flags()
	if flags.Changed("total-supply") {
		supply, err := domain.ParseAmount(flagString(cmd, "total-supply"))
		if err != nil {
			return core.TokenParams{}, err
		}
		base.TotalSupply = supply
	}
	if flags.Changed("token-name") {
		base.Name = flagString(cmd, "token-name")
	}
	if flags.Changed("decimals") {
		base.Decimals, _ = flags.GetUint8("decimals")
	}
	if flags.Changed("symbol") {
		base.Symbol = flagString(cmd, "symbol")
	}
	return base, nil
}

func newDeploymentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deployments [name]",
		Short: "List recorded deployments or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: run(func(_ *cobra.Command, a *app, args []string) error {
			if len(args) == 1 {
				h, err := a.deployer.Lookup(args[0])
				if err != nil {
					return err
				}
				return a.print(h)
			}
			return a.print(a.deployer.Manifest().Deployments)
		}),
	}
}
