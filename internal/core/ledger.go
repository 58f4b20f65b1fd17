package core

import (
	"context"
	"fmt"

	"supplyledger/internal/infra/persistence/memory"
	"supplyledger/pkg/domain"
)

const (
	opInitializeToken   = "initialize_token"
	opTransfer          = "transfer"
	opApprove           = "approve"
	opTransferFrom      = "transfer_from"
	opIncreaseAllowance = "increase_allowance"
	opDecreaseAllowance = "decrease_allowance"
)

// TokenParams are the token constructor arguments.
type TokenParams struct {
	TotalSupply domain.Amount
	Name        string
	Decimals    uint8
	Symbol      string
}

// DefaultTokenParams returns the parameters of the reference deployment.
func DefaultTokenParams() TokenParams {
	return TokenParams{
		TotalSupply: domain.NewAmount(10000),
		Name:        "TotalSem Token",
		Decimals:    18,
		Symbol:      "TotalSem",
	}
}

// Ledger is a fixed-supply fungible token. All balances and allowances live
// in a single store; every mutation commits atomically or not at all.
type Ledger struct {
	service
}

// NewLedger constructs a ledger backed by store.
func NewLedger(store domain.PersistentStore, opts ...ServiceOption) *Ledger {
	return &Ledger{service: newService(store, opts)}
}

// NewInMemoryLedger creates a ledger over a fresh in-memory store.
func NewInMemoryLedger(engine *domain.RulesEngine, opts ...ServiceOption) *Ledger {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewLedger(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (l *Ledger) Store() domain.PersistentStore { return l.store }

// RulesEngine returns the engine evaluated by the store, if it exposes one.
func (l *Ledger) RulesEngine() *domain.RulesEngine { return extractRulesEngine(l.store) }

// Initialize mints the entire supply to deployer. It succeeds exactly once.
func (l *Ledger) Initialize(ctx context.Context, deployer domain.Address, params TokenParams) (domain.TokenMetadata, domain.Result, error) {
	var meta domain.TokenMetadata
	entityID := params.Symbol
	res, err := l.run(ctx, opInitializeToken, deployer, &entityID, func(tx domain.Transaction) error {
		if _, ok := tx.Token(); ok {
			return fmt.Errorf("token %s: %w", params.Symbol, domain.ErrAlreadyInitialized)
		}
		if deployer.IsZero() {
			return fmt.Errorf("%w: cannot mint to the null address", domain.ErrInvalidRecipient)
		}
		var err error
		meta, err = tx.InitializeToken(domain.TokenMetadata{
			Name:        params.Name,
			Symbol:      params.Symbol,
			Decimals:    params.Decimals,
			TotalSupply: params.TotalSupply,
			Owner:       deployer,
		})
		if err != nil {
			return err
		}
		if _, err := tx.UpdateAccount(deployer, func(a *domain.Account) error {
			a.Balance = params.TotalSupply
			return nil
		}); err != nil {
			return err
		}
		supply := params.TotalSupply
		tx.Emit(domain.Event{Kind: domain.EventInitialized, To: deployer, Amount: &supply})
		tx.Emit(domain.TransferEvent(domain.ZeroAddress, deployer, params.TotalSupply))
		return nil
	})
	if err != nil {
		return domain.TokenMetadata{}, res, err
	}
	return meta, res, nil
}

// Transfer moves amount from sender to recipient.
func (l *Ledger) Transfer(ctx context.Context, from, to domain.Address, amount domain.Amount) (domain.Event, domain.Result, error) {
	var event domain.Event
	entityID := string(to)
	res, err := l.run(ctx, opTransfer, from, &entityID, func(tx domain.Transaction) error {
		if err := requireToken(tx); err != nil {
			return err
		}
		if from.IsZero() {
			return fmt.Errorf("%w: sender is the null address", domain.ErrInvalidArgument)
		}
		if to.IsZero() {
			return fmt.Errorf("%w: recipient is the null address", domain.ErrInvalidRecipient)
		}
		if err := checkBalance(tx, from, amount); err != nil {
			return err
		}
		if err := move(tx, from, to, amount); err != nil {
			return err
		}
		event = tx.Emit(domain.TransferEvent(from, to, amount))
		return nil
	})
	if err != nil {
		return domain.Event{}, res, err
	}
	return event, res, nil
}

// Approve sets the allowance of spender over owner's balance, replacing any prior value.
func (l *Ledger) Approve(ctx context.Context, owner, spender domain.Address, amount domain.Amount) (domain.Allowance, domain.Result, error) {
	return l.adjustAllowance(ctx, opApprove, owner, spender, func(domain.Amount) (domain.Amount, error) {
		return amount, nil
	})
}

// IncreaseAllowance raises the allowance of spender by delta.
func (l *Ledger) IncreaseAllowance(ctx context.Context, owner, spender domain.Address, delta domain.Amount) (domain.Allowance, domain.Result, error) {
	return l.adjustAllowance(ctx, opIncreaseAllowance, owner, spender, func(current domain.Amount) (domain.Amount, error) {
		next, overflow := current.Add(delta)
		if overflow {
			return domain.Amount{}, fmt.Errorf("%w: allowance overflow", domain.ErrInvalidArgument)
		}
		return next, nil
	})
}

// DecreaseAllowance lowers the allowance of spender by delta. It never goes below zero.
func (l *Ledger) DecreaseAllowance(ctx context.Context, owner, spender domain.Address, delta domain.Amount) (domain.Allowance, domain.Result, error) {
	return l.adjustAllowance(ctx, opDecreaseAllowance, owner, spender, func(current domain.Amount) (domain.Amount, error) {
		next, underflow := current.Sub(delta)
		if underflow {
			return domain.Amount{}, fmt.Errorf("%w: allowance %s below decrease %s", domain.ErrInsufficientAllowance, current, delta)
		}
		return next, nil
	})
}

func (l *Ledger) adjustAllowance(ctx context.Context, op string, owner, spender domain.Address, next func(domain.Amount) (domain.Amount, error)) (domain.Allowance, domain.Result, error) {
	var updated domain.Allowance
	entityID := domain.AllowanceKey(owner, spender)
	res, err := l.run(ctx, op, owner, &entityID, func(tx domain.Transaction) error {
		if err := requireToken(tx); err != nil {
			return err
		}
		if owner.IsZero() {
			return fmt.Errorf("%w: owner is the null address", domain.ErrInvalidArgument)
		}
		if spender.IsZero() {
			return fmt.Errorf("%w: spender is the null address", domain.ErrInvalidRecipient)
		}
		var err error
		updated, err = tx.UpdateAllowance(owner, spender, func(a *domain.Allowance) error {
			amount, err := next(a.Amount)
			if err != nil {
				return err
			}
			a.Amount = amount
			return nil
		})
		if err != nil {
			return err
		}
		tx.Emit(domain.ApprovalEvent(owner, spender, updated.Amount))
		return nil
	})
	if err != nil {
		return domain.Allowance{}, res, err
	}
	return updated, res, nil
}

// TransferFrom lets spender move amount from owner to recipient, consuming
// the allowance. Checks run in order: recipient, allowance, balance.
func (l *Ledger) TransferFrom(ctx context.Context, spender, owner, to domain.Address, amount domain.Amount) (domain.Event, domain.Result, error) {
	var event domain.Event
	entityID := string(to)
	res, err := l.run(ctx, opTransferFrom, spender, &entityID, func(tx domain.Transaction) error {
		if err := requireToken(tx); err != nil {
			return err
		}
		if to.IsZero() {
			return fmt.Errorf("%w: recipient is the null address", domain.ErrInvalidRecipient)
		}
		allowance, _ := tx.FindAllowance(owner, spender)
		if allowance.Amount.Lt(amount) {
			return fmt.Errorf("%w: %s may spend %s of %s, requested %s", domain.ErrInsufficientAllowance, spender, allowance.Amount, owner, amount)
		}
		if err := checkBalance(tx, owner, amount); err != nil {
			return err
		}
		remaining, err := tx.UpdateAllowance(owner, spender, func(a *domain.Allowance) error {
			a.Amount, _ = a.Amount.Sub(amount)
			return nil
		})
		if err != nil {
			return err
		}
		if err := move(tx, owner, to, amount); err != nil {
			return err
		}
		event = tx.Emit(domain.TransferEvent(owner, to, amount))
		tx.Emit(domain.ApprovalEvent(owner, spender, remaining.Amount))
		return nil
	})
	if err != nil {
		return domain.Event{}, res, err
	}
	return event, res, nil
}

// Metadata returns the constructor parameters recorded at initialization.
func (l *Ledger) Metadata(ctx context.Context) (domain.TokenMetadata, error) {
	var meta domain.TokenMetadata
	err := l.view(ctx, func(v domain.TransactionView) error {
		var ok bool
		meta, ok = v.Token()
		if !ok {
			return fmt.Errorf("token: %w", domain.ErrNotInitialized)
		}
		return nil
	})
	return meta, err
}

// TotalSupply returns the fixed supply minted at initialization.
func (l *Ledger) TotalSupply(ctx context.Context) (domain.Amount, error) {
	meta, err := l.Metadata(ctx)
	if err != nil {
		return domain.Amount{}, err
	}
	return meta.TotalSupply, nil
}

// BalanceOf returns the balance of addr. Unknown accounts hold zero.
func (l *Ledger) BalanceOf(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	var balance domain.Amount
	err := l.view(ctx, func(v domain.TransactionView) error {
		if _, ok := v.Token(); !ok {
			return fmt.Errorf("token: %w", domain.ErrNotInitialized)
		}
		if acct, ok := v.FindAccount(addr); ok {
			balance = acct.Balance
		}
		return nil
	})
	return balance, err
}

// Allowance returns how much spender may still move from owner.
func (l *Ledger) Allowance(ctx context.Context, owner, spender domain.Address) (domain.Amount, error) {
	var amount domain.Amount
	err := l.view(ctx, func(v domain.TransactionView) error {
		if _, ok := v.Token(); !ok {
			return fmt.Errorf("token: %w", domain.ErrNotInitialized)
		}
		if a, ok := v.FindAllowance(owner, spender); ok {
			amount = a.Amount
		}
		return nil
	})
	return amount, err
}

// Accounts lists every account record ordered by address.
func (l *Ledger) Accounts(ctx context.Context) ([]domain.Account, error) {
	var out []domain.Account
	err := l.view(ctx, func(v domain.TransactionView) error {
		if _, ok := v.Token(); !ok {
			return fmt.Errorf("token: %w", domain.ErrNotInitialized)
		}
		out = v.ListAccounts()
		return nil
	})
	return out, err
}

// Events returns the journal in emission order.
func (l *Ledger) Events(ctx context.Context) ([]domain.Event, error) {
	var out []domain.Event
	err := l.view(ctx, func(v domain.TransactionView) error {
		out = v.ListEvents()
		return nil
	})
	return out, err
}

func requireToken(tx domain.Transaction) error {
	if _, ok := tx.Token(); !ok {
		return fmt.Errorf("token: %w", domain.ErrNotInitialized)
	}
	return nil
}

func checkBalance(tx domain.Transaction, holder domain.Address, amount domain.Amount) error {
	acct, _ := tx.FindAccount(holder)
	if acct.Balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", domain.ErrInsufficientBalance, holder, acct.Balance, amount)
	}
	return nil
}

// move debits from and credits to. Callers check the balance first.
func move(tx domain.Transaction, from, to domain.Address, amount domain.Amount) error {
	if _, err := tx.UpdateAccount(from, func(a *domain.Account) error {
		next, underflow := a.Balance.Sub(amount)
		if underflow {
			return fmt.Errorf("%w: %s holds %s, needs %s", domain.ErrInsufficientBalance, from, a.Balance, amount)
		}
		a.Balance = next
		return nil
	}); err != nil {
		return err
	}
	_, err := tx.UpdateAccount(to, func(a *domain.Account) error {
		next, overflow := a.Balance.Add(amount)
		if overflow {
			return fmt.Errorf("%w: balance overflow for %s", domain.ErrInvalidArgument, to)
		}
		a.Balance = next
		return nil
	})
	return err
}
