package services

import (
	"context"

	"paylog/internal/core"
	"paylog/internal/storage"
)

// ChatService builds the merged chat inbox: the user's notebook followed by
// the debtor threads.
type ChatService struct {
	store *storage.Store
	clock Clock
}

func NewChatService(store *storage.Store, clock Clock) *ChatService {
	return &ChatService{store: store, clock: clock}
}

// List returns the notebook chat, created on first access, followed by the
// debtor chats with the most recently updated first. Each debtor entry
// carries the live balance of the transactions with the debtor's phone.
func (s *ChatService) List(ctx context.Context, ownerID int64) ([]core.ChatEntry, error) {
	q := s.store.Queries()

	paynote, err := q.EnsurePayNoteChat(ctx, ownerID, s.clock.now())
	if err != nil {
		return nil, err
	}
	debtors, err := q.ListDebtorChats(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	entries := make([]core.ChatEntry, 0, len(debtors)+1)
	entries = append(entries, core.PayNoteEntry{Chat: paynote})
	for _, d := range debtors {
		phone := d.Phone
		agg, err := q.AggregateDebtorTransactions(ctx, storage.DebtorScope{UserID: ownerID, Phone: &phone})
		if err != nil {
			return nil, err
		}
		entries = append(entries, core.DebtorEntry{Chat: d, Balance: agg.Balance})
	}
	return entries, nil
}

// Get resolves chat id within the owner's chats. kind may be empty; then an
// id that matches both a notebook and a debtor chat is ambiguous.
func (s *ChatService) Get(ctx context.Context, ownerID, id int64, kind core.ChatKind) (core.ChatDetail, error) {
	q := s.store.Queries()

	var (
		paynote    core.PayNoteChat
		debtor     core.DebtorChat
		hasPayNote bool
		hasDebtor  bool
		err        error
	)
	if kind == "" || kind == core.ChatPayNote {
		if paynote, hasPayNote, err = q.FindPayNoteChat(ctx, ownerID, id); err != nil {
			return core.ChatDetail{}, err
		}
	}
	if kind == "" || kind == core.ChatDebtor {
		if debtor, hasDebtor, err = q.FindDebtorChat(ctx, ownerID, id); err != nil {
			return core.ChatDetail{}, err
		}
	}

	switch {
	case hasPayNote && hasDebtor:
		return core.ChatDetail{}, core.NewValidationError("Chat type is required for this id.")
	case hasPayNote:
		return core.ChatDetail{PayNote: &paynote}, nil
	case !hasDebtor:
		return core.ChatDetail{}, core.NotFound("Chat not found.")
	}

	detail, err := s.debtorDetail(ctx, q, debtor)
	if err != nil {
		return core.ChatDetail{}, err
	}
	return core.ChatDetail{Debtor: &detail}, nil
}

// debtorDetail loads the thread's transactions and aggregates them in
// memory.
func (s *ChatService) debtorDetail(ctx context.Context, q *storage.Queries, chat core.DebtorChat) (core.DebtorDetail, error) {
	phone := chat.Phone
	txs, err := q.ListDebtorTransactions(ctx, storage.DebtorScope{UserID: chat.OwnerID, Phone: &phone}, storage.Page{})
	if err != nil {
		return core.DebtorDetail{}, err
	}
	entries := core.EntriesOf(txs)
	return core.DebtorDetail{
		Chat:         chat,
		Transactions: txs,
		Totals:       core.SplitTotals(entries),
		Balance:      core.Aggregate(entries),
	}, nil
}

// CreateDebtor opens a debtor thread. A second thread for the same phone is
// a conflict.
func (s *ChatService) CreateDebtor(ctx context.Context, ownerID int64, in core.NewDebtorChat) (core.DebtorEntry, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return core.DebtorEntry{}, err
	}

	var entry core.DebtorEntry
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		chat, err := q.CreateDebtorChat(ctx, ownerID, in, s.clock.now())
		if err != nil {
			return err
		}
		phone := chat.Phone
		agg, err := q.AggregateDebtorTransactions(ctx, storage.DebtorScope{UserID: ownerID, Phone: &phone})
		if err != nil {
			return err
		}
		entry = core.DebtorEntry{Chat: chat, Balance: agg.Balance}
		return nil
	})
	if err != nil {
		return entry, err
	}
	return entry, nil
}
