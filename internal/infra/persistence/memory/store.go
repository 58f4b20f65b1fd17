// Package memory provides an in-memory implementation of the persistence
// store used for tests, ephemeral environments, and as the transactional core
// of the durable drivers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"supplyledger/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Address aliases domain.Address.
	Address = domain.Address
	// Account aliases domain.Account.
	Account = domain.Account
	// Allowance aliases domain.Allowance.
	Allowance = domain.Allowance
	// Item aliases domain.Item.
	Item = domain.Item
	// RoleGrant aliases domain.RoleGrant.
	RoleGrant = domain.RoleGrant
	// Event aliases domain.Event.
	Event = domain.Event
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	token      *domain.TokenMetadata
	registry   *domain.RegistryMetadata
	accounts   map[Address]Account
	allowances map[string]Allowance
	roles      map[string]RoleGrant
	items      map[string]Item
	events     []Event
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Token      *domain.TokenMetadata    `json:"token,omitempty"`
	Registry   *domain.RegistryMetadata `json:"registry,omitempty"`
	Accounts   map[Address]Account      `json:"accounts"`
	Allowances map[string]Allowance     `json:"allowances"`
	Roles      map[string]RoleGrant     `json:"roles"`
	Items      map[string]Item          `json:"items"`
	Events     []Event                  `json:"events"`
}

func newMemoryState() memoryState {
	return memoryState{
		accounts:   make(map[Address]Account),
		allowances: make(map[string]Allowance),
		roles:      make(map[string]RoleGrant),
		items:      make(map[string]Item),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	if s.token != nil {
		token := *s.token
		cloned.token = &token
	}
	if s.registry != nil {
		registry := *s.registry
		cloned.registry = &registry
	}
	for k, v := range s.accounts {
		cloned.accounts[k] = v
	}
	for k, v := range s.allowances {
		cloned.allowances[k] = v
	}
	for k, v := range s.roles {
		cloned.roles[k] = v
	}
	for k, v := range s.items {
		cloned.items[k] = cloneItem(v)
	}
	if len(s.events) > 0 {
		cloned.events = make([]Event, len(s.events))
		for i, e := range s.events {
			cloned.events[i] = cloneEvent(e)
		}
	}
	return cloned
}

func cloneItem(i Item) Item {
	cp := i
	cp.History = append([]domain.StageTransition(nil), i.History...)
	return cp
}

func cloneEvent(e Event) Event {
	cp := e
	if e.Amount != nil {
		amount := *e.Amount
		cp.Amount = &amount
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		Token:      cloned.token,
		Registry:   cloned.registry,
		Accounts:   cloned.accounts,
		Allowances: cloned.allowances,
		Roles:      cloned.roles,
		Items:      cloned.items,
		Events:     cloned.events,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		token:      s.Token,
		registry:   s.Registry,
		accounts:   s.Accounts,
		allowances: s.Allowances,
		roles:      s.Roles,
		items:      s.Items,
		events:     s.Events,
	}
	return state.clone()
}

// migrateSnapshot normalizes snapshots written by older builds or by hand:
// missing buckets become empty, records are re-keyed from their own fields,
// items gain a creation history entry, and events are ordered by sequence.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Accounts == nil {
		snapshot.Accounts = map[Address]Account{}
	}
	if snapshot.Allowances == nil {
		snapshot.Allowances = map[string]Allowance{}
	}
	if snapshot.Roles == nil {
		snapshot.Roles = map[string]RoleGrant{}
	}
	if snapshot.Items == nil {
		snapshot.Items = map[string]Item{}
	}

	for key, account := range snapshot.Accounts {
		if account.Address == "" {
			account.Address = key
		}
		if account.Address != key {
			delete(snapshot.Accounts, key)
		}
		snapshot.Accounts[account.Address] = account
	}
	for key, allowance := range snapshot.Allowances {
		canonical := domain.AllowanceKey(allowance.Owner, allowance.Spender)
		if canonical != key {
			delete(snapshot.Allowances, key)
		}
		snapshot.Allowances[canonical] = allowance
	}
	for key, grant := range snapshot.Roles {
		canonical := domain.RoleKey(grant.Account, grant.Role)
		if canonical != key {
			delete(snapshot.Roles, key)
		}
		snapshot.Roles[canonical] = grant
	}
	for key, item := range snapshot.Items {
		if item.ID == "" {
			item.ID = key
		}
		if item.Stage == "" {
			item.Stage = domain.StageCreated
		}
		if len(item.History) == 0 {
			item.History = []domain.StageTransition{{Stage: domain.StageCreated, Actor: item.Producer, At: item.CreatedAt}}
		}
		if item.ID != key {
			delete(snapshot.Items, key)
		}
		snapshot.Items[item.ID] = item
	}
	sort.SliceStable(snapshot.Events, func(i, j int) bool { return snapshot.Events[i].Seq < snapshot.Events[j].Seq })
	return snapshot
}

// Store provides an in-memory transactional store for one component.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState returns a deep copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the committed state with snapshot after migration.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the engine evaluated on every commit.
func (s *Store) RulesEngine() *RulesEngine {
	return s.engine
}

// NowFunc returns the clock used to stamp records.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc swaps the clock used to stamp records. Nil restores the wall clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = func() time.Time { return time.Now().UTC() }
	}
	s.nowFn = fn
}

// RunInTransaction applies fn to a private copy of the state. The copy is
// committed only when fn succeeds and the rules engine reports no blocking
// violation; otherwise the committed state is left untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransactionWithCommit(ctx, fn, nil)
}

// RunInTransactionWithCommit is RunInTransaction with a hook that receives the
// candidate state after the rules pass and before it replaces the committed
// state. A commit error aborts the transaction and leaves state untouched.
// The hook runs under the store lock, so commits are serialized.
func (s *Store) RunInTransactionWithCommit(ctx context.Context, fn func(tx Transaction) error, commit func(Snapshot) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if commit != nil {
		if err := commit(snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}
	s.state = tx.state
	return result, nil
}

// View runs fn against the committed state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) Token() (domain.TokenMetadata, bool) {
	if tx.state.token == nil {
		return domain.TokenMetadata{}, false
	}
	return *tx.state.token, true
}

func (tx *transaction) InitializeToken(meta domain.TokenMetadata) (domain.TokenMetadata, error) {
	if tx.state.token != nil {
		return domain.TokenMetadata{}, fmt.Errorf("token: %w", domain.ErrAlreadyInitialized)
	}
	if meta.InitializedAt.IsZero() {
		meta.InitializedAt = tx.now
	}
	tx.state.token = &meta
	tx.recordChange(Change{Entity: domain.EntityToken, Action: domain.ActionCreate, EntityID: meta.Symbol, After: domain.PayloadOf(meta)})
	return meta, nil
}

func (tx *transaction) FindAccount(addr Address) (Account, bool) {
	a, ok := tx.state.accounts[addr]
	return a, ok
}

func (tx *transaction) UpdateAccount(addr Address, mutator func(*Account) error) (Account, error) {
	current, exists := tx.state.accounts[addr]
	if !exists {
		current = Account{Address: addr, CreatedAt: tx.now}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Account{}, err
	}
	current.Address = addr
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.accounts[addr] = current

	change := Change{Entity: domain.EntityAccount, Action: domain.ActionCreate, EntityID: string(addr), After: domain.PayloadOf(current)}
	if exists {
		change.Action = domain.ActionUpdate
		change.Before = domain.PayloadOf(before)
	}
	tx.recordChange(change)
	return current, nil
}

func (tx *transaction) FindAllowance(owner, spender Address) (Allowance, bool) {
	a, ok := tx.state.allowances[domain.AllowanceKey(owner, spender)]
	return a, ok
}

func (tx *transaction) UpdateAllowance(owner, spender Address, mutator func(*Allowance) error) (Allowance, error) {
	key := domain.AllowanceKey(owner, spender)
	current, exists := tx.state.allowances[key]
	if !exists {
		current = Allowance{Owner: owner, Spender: spender}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Allowance{}, err
	}
	current.Owner = owner
	current.Spender = spender
	current.UpdatedAt = tx.now
	tx.state.allowances[key] = current

	change := Change{Entity: domain.EntityAllowance, Action: domain.ActionCreate, EntityID: key, After: domain.PayloadOf(current)}
	if exists {
		change.Action = domain.ActionUpdate
		change.Before = domain.PayloadOf(before)
	}
	tx.recordChange(change)
	return current, nil
}

func (tx *transaction) Registry() (domain.RegistryMetadata, bool) {
	if tx.state.registry == nil {
		return domain.RegistryMetadata{}, false
	}
	return *tx.state.registry, true
}

func (tx *transaction) InitializeRegistry(meta domain.RegistryMetadata) (domain.RegistryMetadata, error) {
	if tx.state.registry != nil {
		return domain.RegistryMetadata{}, fmt.Errorf("registry: %w", domain.ErrAlreadyInitialized)
	}
	if meta.InitializedAt.IsZero() {
		meta.InitializedAt = tx.now
	}
	tx.state.registry = &meta
	tx.recordChange(Change{Entity: domain.EntityRegistry, Action: domain.ActionCreate, EntityID: string(meta.Admin), After: domain.PayloadOf(meta)})
	return meta, nil
}

func (tx *transaction) HasRole(account Address, role domain.Role) bool {
	_, ok := tx.state.roles[domain.RoleKey(account, role)]
	return ok
}

func (tx *transaction) GrantRole(grant RoleGrant) (RoleGrant, error) {
	key := domain.RoleKey(grant.Account, grant.Role)
	if existing, ok := tx.state.roles[key]; ok {
		return existing, nil
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = tx.now
	}
	tx.state.roles[key] = grant
	tx.recordChange(Change{Entity: domain.EntityRole, Action: domain.ActionCreate, EntityID: key, After: domain.PayloadOf(grant)})
	return grant, nil
}

func (tx *transaction) RevokeRole(account Address, role domain.Role) error {
	key := domain.RoleKey(account, role)
	existing, ok := tx.state.roles[key]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityRole, ID: key}
	}
	delete(tx.state.roles, key)
	tx.recordChange(Change{Entity: domain.EntityRole, Action: domain.ActionDelete, EntityID: key, Before: domain.PayloadOf(existing)})
	return nil
}

func (tx *transaction) FindItem(id string) (Item, bool) {
	item, ok := tx.state.items[id]
	if !ok {
		return Item{}, false
	}
	return cloneItem(item), true
}

func (tx *transaction) CreateItem(item Item) (Item, error) {
	if item.ID == "" {
		item.ID = tx.store.newID()
	}
	if _, exists := tx.state.items[item.ID]; exists {
		return Item{}, fmt.Errorf("item %s already exists", item.ID)
	}
	item.CreatedAt = tx.now
	item.UpdatedAt = tx.now
	item = cloneItem(item)
	tx.state.items[item.ID] = item
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionCreate, EntityID: item.ID, After: domain.PayloadOf(item)})
	return cloneItem(item), nil
}

func (tx *transaction) UpdateItem(id string, mutator func(*Item) error) (Item, error) {
	current, ok := tx.state.items[id]
	if !ok {
		return Item{}, domain.NotFoundError{Entity: domain.EntityItem, ID: id}
	}
	before := cloneItem(current)
	updated := cloneItem(current)
	if err := mutator(&updated); err != nil {
		return Item{}, err
	}
	updated.ID = id
	updated.CreatedAt = before.CreatedAt
	updated.UpdatedAt = tx.now
	tx.state.items[id] = updated
	tx.recordChange(Change{Entity: domain.EntityItem, Action: domain.ActionUpdate, EntityID: id, Before: domain.PayloadOf(before), After: domain.PayloadOf(updated)})
	return cloneItem(updated), nil
}

func (tx *transaction) Emit(event Event) Event {
	event.ID = tx.store.newID()
	event.Seq = uint64(len(tx.state.events)) + 1
	if event.At.IsZero() {
		event.At = tx.now
	}
	event = cloneEvent(event)
	tx.state.events = append(tx.state.events, event)
	return cloneEvent(event)
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) Token() (domain.TokenMetadata, bool) {
	if v.state.token == nil {
		return domain.TokenMetadata{}, false
	}
	return *v.state.token, true
}

func (v transactionView) ListAccounts() []Account {
	out := make([]Account, 0, len(v.state.accounts))
	for _, a := range v.state.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (v transactionView) FindAccount(addr Address) (Account, bool) {
	a, ok := v.state.accounts[addr]
	return a, ok
}

func (v transactionView) ListAllowances() []Allowance {
	out := make([]Allowance, 0, len(v.state.allowances))
	for _, a := range v.state.allowances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return domain.AllowanceKey(out[i].Owner, out[i].Spender) < domain.AllowanceKey(out[j].Owner, out[j].Spender)
	})
	return out
}

func (v transactionView) FindAllowance(owner, spender Address) (Allowance, bool) {
	a, ok := v.state.allowances[domain.AllowanceKey(owner, spender)]
	return a, ok
}

func (v transactionView) Registry() (domain.RegistryMetadata, bool) {
	if v.state.registry == nil {
		return domain.RegistryMetadata{}, false
	}
	return *v.state.registry, true
}

func (v transactionView) ListRoleGrants() []RoleGrant {
	out := make([]RoleGrant, 0, len(v.state.roles))
	for _, g := range v.state.roles {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return domain.RoleKey(out[i].Account, out[i].Role) < domain.RoleKey(out[j].Account, out[j].Role)
	})
	return out
}

func (v transactionView) HasRole(account Address, role domain.Role) bool {
	_, ok := v.state.roles[domain.RoleKey(account, role)]
	return ok
}

func (v transactionView) ListItems() []Item {
	out := make([]Item, 0, len(v.state.items))
	for _, item := range v.state.items {
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v transactionView) FindItem(id string) (Item, bool) {
	item, ok := v.state.items[id]
	if !ok {
		return Item{}, false
	}
	return cloneItem(item), true
}

func (v transactionView) ListEvents() []Event {
	out := make([]Event, len(v.state.events))
	for i, e := range v.state.events {
		out[i] = cloneEvent(e)
	}
	return out
}
