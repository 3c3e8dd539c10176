package memstore

import (
	"context"
	"sort"
	"time"

	"ledgerbot/domain"
	"ledgerbot/domain/entities"

	"github.com/google/uuid"
)

type accountRepository struct {
	st  *state
	now func() time.Time
}

func (r *accountRepository) GetByID(_ context.Context, id entities.AccountID) (*entities.Account, error) {
	a, ok := r.st.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *accountRepository) GetForUpdate(ctx context.Context, id entities.AccountID) (*entities.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *accountRepository) EnsureAccount(ctx context.Context, id entities.AccountID) (*entities.Account, error) {
	if _, ok := r.st.accounts[id]; !ok {
		now := r.now().UTC()
		r.st.accounts[id] = &entities.Account{ID: id, CreatedAt: now, UpdatedAt: now}
	}
	return r.GetByID(ctx, id)
}

func (r *accountRepository) UpdateBalance(_ context.Context, id entities.AccountID, newBalance entities.Amount) error {
	a, ok := r.st.accounts[id]
	if !ok {
		return domain.ErrAccountUnresolved
	}
	a.Balance = newBalance
	a.UpdatedAt = r.now().UTC()
	return nil
}

func (r *accountRepository) SumBalances(_ context.Context, exclude []entities.AccountID) (entities.Amount, error) {
	skip := make(map[entities.AccountID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var total entities.Amount
	for id, a := range r.st.accounts {
		if !skip[id] {
			total += a.Balance
		}
	}
	return total, nil
}

func (r *accountRepository) GetAll(_ context.Context) ([]*entities.Account, error) {
	out := make([]*entities.Account, 0, len(r.st.accounts))
	for _, a := range r.st.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type ledgerEntryRepository struct {
	st  *state
	now func() time.Time
}

func (r *ledgerEntryRepository) Create(_ context.Context, entry *entities.LedgerEntry) error {
	r.st.nextEntryID++
	entry.ID = r.st.nextEntryID
	entry.CreatedAt = r.now().UTC()
	cp := *entry
	r.st.entries = append(r.st.entries, &cp)
	return nil
}

func (r *ledgerEntryRepository) GetByGroup(_ context.Context, groupID uuid.UUID) ([]*entities.LedgerEntry, error) {
	var out []*entities.LedgerEntry
	for _, e := range r.st.entries {
		if e.GroupID == groupID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *ledgerEntryRepository) Settle(_ context.Context, id int64, status entities.EntryStatus, txHash *string) error {
	for _, e := range r.st.entries {
		if e.ID != id {
			continue
		}
		if e.Status != entities.EntryStatusPending {
			return domain.ErrEntryNotPending
		}
		e.Status = status
		if txHash != nil {
			hash := *txHash
			e.ExternalTxHash = &hash
		}
		return nil
	}
	return domain.ErrEntryNotPending
}

func (r *ledgerEntryRepository) ListByAccount(_ context.Context, accountID entities.AccountID, limit int) ([]*entities.LedgerEntry, error) {
	var out []*entities.LedgerEntry
	for i := len(r.st.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e := r.st.entries[i]; e.AccountID == accountID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *ledgerEntryRepository) FoldBalances(_ context.Context) (map[entities.AccountID]entities.Amount, error) {
	folded := make(map[entities.AccountID]entities.Amount)
	for _, e := range r.st.entries {
		folded[e.AccountID] += e.SignedAmount()
	}
	return folded, nil
}

type depositRepository struct {
	st  *state
	now func() time.Time
}

func (r *depositRepository) InsertIfAbsent(_ context.Context, deposit *entities.ProcessedDeposit) (*entities.ProcessedDeposit, bool, error) {
	if existing, ok := r.st.deposits[deposit.TxHash]; ok {
		cp := *existing
		return &cp, false, nil
	}

	r.st.nextDepositID++
	stored := *deposit
	stored.ID = r.st.nextDepositID
	stored.Processed = false
	stored.ProcessedAt = nil
	stored.Error = nil
	stored.EntryGroupID = nil
	stored.BalanceAfter = nil
	stored.CreatedAt = r.now().UTC()
	r.st.deposits[deposit.TxHash] = &stored

	cp := stored
	return &cp, true, nil
}

func (r *depositRepository) GetByTxHash(_ context.Context, txHash string) (*entities.ProcessedDeposit, error) {
	d, ok := r.st.deposits[txHash]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *depositRepository) MarkProcessed(_ context.Context, txHash string, userID entities.AccountID, groupID uuid.UUID, balanceAfter entities.Amount, at time.Time) (bool, error) {
	d, ok := r.st.deposits[txHash]
	if !ok || d.Processed {
		return false, nil
	}
	processedAt := at
	group := groupID
	d.Processed = true
	d.ProcessedAt = &processedAt
	d.UserID = userID
	d.EntryGroupID = &group
	d.BalanceAfter = &balanceAfter
	d.Error = nil
	return true, nil
}

func (r *depositRepository) RecordError(_ context.Context, txHash string, reason string) error {
	d, ok := r.st.deposits[txHash]
	if !ok || d.Processed {
		return nil
	}
	msg := reason
	d.Error = &msg
	return nil
}

func (r *depositRepository) ListFailed(_ context.Context, limit int) ([]*entities.ProcessedDeposit, error) {
	var out []*entities.ProcessedDeposit
	for _, d := range r.st.deposits {
		if !d.Processed && d.Error != nil {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type gatewayFailureRepository struct {
	st  *state
	now func() time.Time
}

func (r *gatewayFailureRepository) Create(_ context.Context, failure *entities.GatewayFailure) error {
	r.st.nextFailureID++
	failure.ID = r.st.nextFailureID
	failure.CreatedAt = r.now().UTC()
	cp := *failure
	r.st.failures = append(r.st.failures, &cp)
	return nil
}

func (r *gatewayFailureRepository) GetByID(_ context.Context, id int64) (*entities.GatewayFailure, error) {
	for _, f := range r.st.failures {
		if f.ID == id {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *gatewayFailureRepository) List(_ context.Context, unresolvedOnly bool, limit int) ([]*entities.GatewayFailure, error) {
	var out []*entities.GatewayFailure
	for i := len(r.st.failures) - 1; i >= 0; i-- {
		f := r.st.failures[i]
		if unresolvedOnly && f.IsResolved() {
			continue
		}
		cp := *f
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *gatewayFailureRepository) Resolve(_ context.Context, id int64, note string, at time.Time) error {
	for _, f := range r.st.failures {
		if f.ID == id && !f.IsResolved() {
			resolvedAt := at
			n := note
			f.ResolvedAt = &resolvedAt
			f.ResolutionNote = &n
			return nil
		}
	}
	return domain.ErrFailureNotFound
}
