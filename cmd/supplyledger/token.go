package main

import (
	"context"

	"github.com/spf13/cobra"

	"supplyledger/internal/core"
	"supplyledger/internal/deploy"
	"supplyledger/pkg/domain"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Query and operate the token ledger",
	}
	cmd.PersistentFlags().String("token", deploy.DefaultTokenName, "token deployment name")
	cmd.PersistentFlags().String("from", "", "acting address (default deploy.deployer)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Show token metadata and where it is deployed",
			Args:  cobra.NoArgs,
			RunE: withLedger(func(cmd *cobra.Command, a *app, l *core.Ledger, h deploy.Handle, _ []string) error {
				meta, err := l.Metadata(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(struct {
					Deployment deploy.Handle        `json:"deployment"`
					Token      domain.TokenMetadata `json:"token"`
				}{h, meta})
			}),
		},
		&cobra.Command{
			Use:   "balance ADDRESS",
			Short: "Show the balance of an address",
			Args:  cobra.ExactArgs(1),
			RunE: withLedger(func(cmd *cobra.Command, a *app, l *core.Ledger, _ deploy.Handle, args []string) error {
				addrs, err := parseAddresses(args[0])
				if err != nil {
					return err
				}
				bal, err := l.BalanceOf(cmd.Context(), addrs[0])
				if err != nil {
					return err
				}
				return a.print(domain.Account{Address: addrs[0], Balance: bal})
			}),
		},
		&cobra.Command{
			Use:   "accounts",
			Short: "List every account with a balance record",
			Args:  cobra.NoArgs,
			RunE: withLedger(func(cmd *cobra.Command, a *app, l *core.Ledger, _ deploy.Handle, _ []string) error {
				accounts, err := l.Accounts(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(accounts)
			}),
		},
		&cobra.Command{
			Use:   "allowance OWNER SPENDER",
			Short: "Show how much SPENDER may still move on behalf of OWNER",
			Args:  cobra.ExactArgs(2),
			RunE: withLedger(func(cmd *cobra.Command, a *app, l *core.Ledger, _ deploy.Handle, args []string) error {
				addrs, err := parseAddresses(args...)
				if err != nil {
					return err
				}
				remaining, err := l.Allowance(cmd.Context(), addrs[0], addrs[1])
				if err != nil {
					return err
				}
				return a.print(domain.Allowance{Owner: addrs[0], Spender: addrs[1], Amount: remaining})
			}),
		},
		&cobra.Command{
			Use:   "transfer TO AMOUNT",
			Short: "Move AMOUNT from --from to TO",
			Args:  cobra.ExactArgs(2),
			RunE: withLedger(func(cmd *cobra.Command, a *app, l *core.Ledger, _ deploy.Handle, args []string) error {
				from, err := a.actor(cmd)
				if err != nil {
					return err
				}
				to, amount, err := addressAndAmount(args[0], args[1])
				if err != nil {
					return err
				}
				event, _, err := l.Transfer(cmd.Context(), from, to, amount)
				if err != nil {
					return err
				}
				return a.print(event)
			}),
		},
		allowanceCmd("approve", "Set the allowance of SPENDER to exactly AMOUNT", (*core.Ledger).Approve),
		allowanceCmd("increase-allowance", "Raise the allowance of SPENDER by AMOUNT", (*core.Ledger).IncreaseAllowance),
		allowanceCmd("decrease-allowance", "Lower the allowance of SPENDER by AMOUNT", (*core.Ledger).DecreaseAllowance),
		&cobra.Command{
			Use:   "transfer-from OWNER TO AMOUNT",
			Short: "Spend AMOUNT of OWNER's allowance granted to --from, sending it to TO",
			Args:  cobra.ExactArgs(3),
			RunE: withLedger(func(cmd *cobra.Command, a *app, l *core.Ledger, _ deploy.Handle, args []string) error {
				spender, err := a.actor(cmd)
				if err != nil {
					return err
				}
				addrs, err := parseAddresses(args[0], args[1])
				if err != nil {
					return err
				}
				amount, err := domain.ParseAmount(args[2])
				if err != nil {
					return err
				}
				event, _, err := l.TransferFrom(cmd.Context(), spender, addrs[0], addrs[1], amount)
				if err != nil {
					return err
				}
				return a.print(event)
			}),
		},
		&cobra.Command{
			Use:   "events",
			Short: "Print the token event journal",
			Args:  cobra.NoArgs,
			RunE: withLedger(func(cmd *cobra.Command, a *app, l *core.Ledger, _ deploy.Handle, _ []string) error {
				events, err := l.Events(cmd.Context())
				if err != nil {
					return err
				}
				return a.print(events)
			}),
		},
	)
	return cmd
}

type allowanceOp func(*core.Ledger, context.Context, domain.Address, domain.Address, domain.Amount) (domain.Allowance, domain.Result, error)

func allowanceCmd(use, short string, op allowanceOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SPENDER AMOUNT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: withLedger(func(cmd *cobra.Command, a *app, l *core.Ledger, _ deploy.Handle, args []string) error {
			owner, err := a.actor(cmd)
			if err != nil {
				return err
			}
			spender, amount, err := addressAndAmount(args[0], args[1])
			if err != nil {
				return err
			}
			allowance, _, err := op(l, cmd.Context(), owner, spender, amount)
			if err != nil {
				return err
			}
			return a.print(allowance)
		}),
	}
}

func withLedger(fn func(*cobra.Command, *app, *core.Ledger, deploy.Handle, []string) error) func(*cobra.Command, []string) error {
	return run(func(cmd *cobra.Command, a *app, args []string) error {
		ledger, h, err := a.deployer.Ledger(flagString(cmd, "token"))
		if err != nil {
			return err
		}
		return fn(cmd, a, ledger, h, args)
	})
}

func addressAndAmount(addr, amount string) (domain.Address, domain.Amount, error) {
	a, err := domain.ParseAddress(addr)
	if err != nil {
		return "", domain.Amount{}, err
	}
	n, err := domain.ParseAmount(amount)
	if err != nil {
		return "", domain.Amount{}, err
	}
	return a, n, nil
}
