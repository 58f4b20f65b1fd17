package core

import (
	"context"
	"fmt"
	"strings"

	"supplyledger/internal/infra/persistence/memory"
	"supplyledger/pkg/domain"
)

const (
	opInitializeRegistry = "initialize_registry"
	opGrantRole          = "grant_role"
	opRevokeRole         = "revoke_role"
	opCreateItem         = "create_item"
	opAdvanceItem        = "advance_item"
)

// Registry tracks supply-chain items through Created, Paid, Shipped and
// Delivered. Each transition is gated by the role table.
type Registry struct {
	service
}

// NewRegistry constructs a registry backed by store.
func NewRegistry(store domain.PersistentStore, opts ...ServiceOption) *Registry {
	return &Registry{service: newService(store, opts)}
}

// NewInMemoryRegistry creates a registry over a fresh in-memory store.
func NewInMemoryRegistry(engine *domain.RulesEngine, opts ...ServiceOption) *Registry {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewRegistry(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (r *Registry) Store() domain.PersistentStore { return r.store }

// RulesEngine returns the engine evaluated by the store, if it exposes one.
func (r *Registry) RulesEngine() *domain.RulesEngine { return extractRulesEngine(r.store) }

// Initialize records deployer as the registry admin.
func (r *Registry) Initialize(ctx context.Context, deployer domain.Address) (domain.RegistryMetadata, domain.Result, error) {
	var meta domain.RegistryMetadata
	entityID := string(deployer)
	res, err := r.run(ctx, opInitializeRegistry, deployer, &entityID, func(tx domain.Transaction) error {
		if _, ok := tx.Registry(); ok {
			return fmt.Errorf("registry: %w", domain.ErrAlreadyInitialized)
		}
		if deployer.IsZero() {
			return fmt.Errorf("%w: admin cannot be the null address", domain.ErrInvalidRecipient)
		}
		var err error
		meta, err = tx.InitializeRegistry(domain.RegistryMetadata{Admin: deployer})
		if err != nil {
			return err
		}
		if _, err := tx.GrantRole(domain.RoleGrant{Account: deployer, Role: domain.RoleAdmin, GrantedBy: deployer}); err != nil {
			return err
		}
		tx.Emit(domain.Event{Kind: domain.EventRegistryInitialized, To: deployer})
		tx.Emit(domain.Event{Kind: domain.EventRoleGranted, From: deployer, To: deployer, Role: domain.RoleAdmin})
		return nil
	})
	if err != nil {
		return domain.RegistryMetadata{}, res, err
	}
	return meta, res, nil
}

// GrantRole gives account the role. Only admins may grant; granting a role
// the account already holds changes nothing.
func (r *Registry) GrantRole(ctx context.Context, admin, account domain.Address, role domain.Role) (domain.RoleGrant, domain.Result, error) {
	var grant domain.RoleGrant
	entityID := domain.RoleKey(account, role)
	res, err := r.run(ctx, opGrantRole, admin, &entityID, func(tx domain.Transaction) error {
		if err := r.checkRoleChange(tx, admin, account, role); err != nil {
			return err
		}
		held := tx.HasRole(account, role)
		var err error
		grant, err = tx.GrantRole(domain.RoleGrant{Account: account, Role: role, GrantedBy: admin})
		if err != nil {
			return err
		}
		if !held {
			tx.Emit(domain.Event{Kind: domain.EventRoleGranted, From: admin, To: account, Role: role})
		}
		return nil
	})
	if err != nil {
		return domain.RoleGrant{}, res, err
	}
	return grant, res, nil
}

// RevokeRole removes role from account. The registry admin keeps its admin role.
func (r *Registry) RevokeRole(ctx context.Context, admin, account domain.Address, role domain.Role) (domain.Result, error) {
	entityID := domain.RoleKey(account, role)
	return r.run(ctx, opRevokeRole, admin, &entityID, func(tx domain.Transaction) error {
		if err := r.checkRoleChange(tx, admin, account, role); err != nil {
			return err
		}
		if meta, _ := tx.Registry(); role == domain.RoleAdmin && meta.Admin == account {
			return fmt.Errorf("%w: cannot revoke admin from the registry owner", domain.ErrInvalidArgument)
		}
		if err := tx.RevokeRole(account, role); err != nil {
			return err
		}
		tx.Emit(domain.Event{Kind: domain.EventRoleRevoked, From: admin, To: account, Role: role})
		return nil
	})
}

func (r *Registry) checkRoleChange(tx domain.Transaction, admin, account domain.Address, role domain.Role) error {
	if err := requireRegistry(tx); err != nil {
		return err
	}
	if err := domain.CheckCapability(tx, admin, domain.RoleAdmin); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidArgument, role)
	}
	if account.IsZero() {
		return fmt.Errorf("%w: cannot assign roles to the null address", domain.ErrInvalidRecipient)
	}
	return nil
}

// CreateItem registers a new item in the Created stage on behalf of producer.
func (r *Registry) CreateItem(ctx context.Context, producer domain.Address, name string, price domain.Amount) (domain.Item, domain.Result, error) {
	var created domain.Item
	var entityID string
	res, err := r.run(ctx, opCreateItem, producer, &entityID, func(tx domain.Transaction) error {
		if err := requireRegistry(tx); err != nil {
			return err
		}
		if err := domain.CheckCapability(tx, producer, domain.RoleProducer); err != nil {
			return err
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("%w: item name is required", domain.ErrInvalidArgument)
		}
		var err error
		created, err = tx.CreateItem(domain.Item{
			Name:     name,
			Price:    price,
			Stage:    domain.StageCreated,
			Producer: producer,
			History:  []domain.StageTransition{{Stage: domain.StageCreated, Actor: producer, At: tx.Now()}},
		})
		if err != nil {
			return err
		}
		entityID = created.ID
		tx.Emit(domain.Event{Kind: domain.EventItemCreated, From: producer, ItemID: created.ID, Stage: domain.StageCreated, Amount: &price})
		return nil
	})
	if err != nil {
		return domain.Item{}, res, err
	}
	return created, res, nil
}

// Advance moves the item one stage forward. Checks run in order: existence,
// terminal stage, capability.
func (r *Registry) Advance(ctx context.Context, itemID string, actor domain.Address) (domain.Item, domain.Result, error) {
	var updated domain.Item
	entityID := itemID
	res, err := r.run(ctx, opAdvanceItem, actor, &entityID, func(tx domain.Transaction) error {
		if err := requireRegistry(tx); err != nil {
			return err
		}
		item, ok := tx.FindItem(itemID)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityItem, ID: itemID}
		}
		next, ok := item.Stage.Next()
		if !ok {
			return fmt.Errorf("%w: item %s is %s", domain.ErrInvalidTransition, itemID, item.Stage)
		}
		required, _ := domain.RequiredRole(item.Stage)
		if err := domain.CheckCapability(tx, actor, required); err != nil {
			return err
		}
		if item.Stage == domain.StageShipped && actor != item.Buyer {
			return fmt.Errorf("%w: only buyer %s may confirm delivery", domain.ErrUnauthorized, item.Buyer)
		}
		var err error
		updated, err = tx.UpdateItem(itemID, func(i *domain.Item) error {
			i.Stage = next
			i.History = append(i.History, domain.StageTransition{Stage: next, Actor: actor, At: tx.Now()})
			switch next {
			case domain.StagePaid:
				i.Buyer = actor
			case domain.StageShipped:
				i.Shipper = actor
			}
			return nil
		})
		if err != nil {
			return err
		}
		tx.Emit(domain.Event{Kind: domain.EventStageAdvanced, From: actor, ItemID: itemID, Stage: next})
		return nil
	})
	if err != nil {
		return domain.Item{}, res, err
	}
	return updated, res, nil
}

// GetItem returns the item with id.
func (r *Registry) GetItem(ctx context.Context, id string) (domain.Item, error) {
	var item domain.Item
	err := r.view(ctx, func(v domain.TransactionView) error {
		var ok bool
		item, ok = v.FindItem(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityItem, ID: id}
		}
		return nil
	})
	return item, err
}

// ListItems returns all items ordered by creation time, then id.
func (r *Registry) ListItems(ctx context.Context) ([]domain.Item, error) {
	var out []domain.Item
	err := r.view(ctx, func(v domain.TransactionView) error {
		out = v.ListItems()
		return nil
	})
	return out, err
}

// Metadata returns the admin recorded at initialization.
func (r *Registry) Metadata(ctx context.Context) (domain.RegistryMetadata, error) {
	var meta domain.RegistryMetadata
	err := r.view(ctx, func(v domain.TransactionView) error {
		var ok bool
		meta, ok = v.Registry()
		if !ok {
			return fmt.Errorf("registry: %w", domain.ErrNotInitialized)
		}
		return nil
	})
	return meta, err
}

// HasRole reports whether account currently holds role.
func (r *Registry) HasRole(ctx context.Context, account domain.Address, role domain.Role) (bool, error) {
	var held bool
	err := r.view(ctx, func(v domain.TransactionView) error {
		held = v.HasRole(account, role)
		return nil
	})
	return held, err
}

// Roles lists every role grant.
func (r *Registry) Roles(ctx context.Context) ([]domain.RoleGrant, error) {
	var out []domain.RoleGrant
	err := r.view(ctx, func(v domain.TransactionView) error {
		out = v.ListRoleGrants()
		return nil
	})
	return out, err
}

// Events returns the journal in emission order.
func (r *Registry) Events(ctx context.Context) ([]domain.Event, error) {
	var out []domain.Event
	err := r.view(ctx, func(v domain.TransactionView) error {
		out = v.ListEvents()
		return nil
	})
	return out, err
}

func requireRegistry(tx domain.Transaction) error {
	if _, ok := tx.Registry(); !ok {
		return fmt.Errorf("registry: %w", domain.ErrNotInitialized)
	}
	return nil
}
