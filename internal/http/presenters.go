package http

import (
	"net/http"
	"time"

	"paylog/internal/core"
	"paylog/internal/services"
)

type categoryJSON struct {
	ID        int64     `json:"id"`
	NameUz    string    `json:"name_uz"`
	NameRu    string    `json:"name_ru"`
	NameEn    string    `json:"name_en"`
	IconURL   *string   `json:"icon_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func presentCategory(c core.Category) categoryJSON {
	return categoryJSON{
		ID:        c.ID,
		NameUz:    c.NameUz,
		NameRu:    c.NameRu,
		NameEn:    c.NameEn,
		IconURL:   c.IconURL,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func presentCategories(cs []core.Category) []categoryJSON {
	out := make([]categoryJSON, 0, len(cs))
	for _, c := range cs {
		out = append(out, presentCategory(c))
	}
	return out
}

type currencyJSON struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func presentCurrency(c core.Currency) currencyJSON {
	return currencyJSON{
		ID:        c.ID,
		Code:      c.Code,
		Name:      c.Name,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func presentCurrencies(cs []core.Currency) []currencyJSON {
	out := make([]currencyJSON, 0, len(cs))
	for _, c := range cs {
		out = append(out, presentCurrency(c))
	}
	return out
}

type currencyCodeJSON struct {
	Code string `json:"code"`
}

type categoryNamesJSON struct {
	NameUz  string  `json:"name_uz"`
	NameRu  string  `json:"name_ru"`
	NameEn  string  `json:"name_en"`
	IconURL *string `json:"icon_url"`
}

// transactionJSON is the read shape used by listings and detail.
type transactionJSON struct {
	ID       int64             `json:"id"`
	Type     core.Direction    `json:"type"`
	Amount   string            `json:"amount"`
	Currency currencyCodeJSON  `json:"currency"`
	Category categoryNamesJSON `json:"category"`
	Note     *string           `json:"note"`
	Date     core.Date         `json:"date"`
}

func presentTransaction(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:       t.ID,
		Type:     t.Direction,
		Amount:   core.FormatAmount(t.Amount),
		Currency: currencyCodeJSON{Code: t.Currency.Code},
		Category: categoryNamesJSON{
			NameUz:  t.Category.NameUz,
			NameRu:  t.Category.NameRu,
			NameEn:  t.Category.NameEn,
			IconURL: t.Category.IconURL,
		},
		Note: t.Note,
		Date: t.Date,
	}
}

// transactionWriteJSON answers create and update with references as ids.
type transactionWriteJSON struct {
	ID        int64          `json:"id"`
	User      int64          `json:"user"`
	Type      core.Direction `json:"type"`
	Amount    string         `json:"amount"`
	Currency  int64          `json:"currency"`
	Category  int64          `json:"category"`
	Note      *string        `json:"note"`
	Date      core.Date      `json:"date"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func presentTransactionWrite(t core.Transaction) transactionWriteJSON {
	return transactionWriteJSON{
		ID:        t.ID,
		User:      t.UserID,
		Type:      t.Direction,
		Amount:    core.FormatAmount(t.Amount),
		Currency:  t.CurrencyID,
		Category:  t.CategoryID,
		Note:      t.Note,
		Date:      t.Date,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

type debtorTransactionJSON struct {
	ID       int64          `json:"id"`
	Type     core.Direction `json:"type"`
	Amount   string         `json:"amount"`
	Currency int64          `json:"currency"`
	Phone    *string        `json:"phone"`
	Note     *string        `json:"note"`
	Date     core.Date      `json:"date"`
}

func presentDebtorTransaction(t core.DebtorTransaction) debtorTransactionJSON {
	return debtorTransactionJSON{
		ID:       t.ID,
		Type:     t.Direction,
		Amount:   core.FormatAmount(t.Amount),
		Currency: t.CurrencyID,
		Phone:    t.Phone,
		Note:     t.Note,
		Date:     t.Date,
	}
}

func presentDebtorTransactions(ts []core.DebtorTransaction) []debtorTransactionJSON {
	out := make([]debtorTransactionJSON, 0, len(ts))
	for _, t := range ts {
		out = append(out, presentDebtorTransaction(t))
	}
	return out
}

type profileJSON struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	// Avatar uploads are not supported; the key stays for client compatibility.
	Avatar          *string           `json:"avatar"`
	IsPremium       bool              `json:"is_premium"`
	DefaultCurrency *currencyCodeJSON `json:"default_currency"`
}

func presentProfile(u core.User) profileJSON {
	p := profileJSON{
		Phone:     u.Phone,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsPremium: u.IsPremium,
	}
	if u.DefaultCurrency != nil {
		p.DefaultCurrency = &currencyCodeJSON{Code: u.DefaultCurrency.Code}
	}
	return p
}

type payNoteChatJSON struct {
	ID        int64         `json:"id"`
	Type      core.ChatKind `json:"type"`
	Message   *string       `json:"message"`
	PhotoURL  *string       `json:"photo_url"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func presentPayNote(c core.PayNoteChat) payNoteChatJSON {
	return payNoteChatJSON{
		ID:        c.ID,
		Type:      core.ChatPayNote,
		Message:   c.Message,
		PhotoURL:  c.PhotoURL,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type debtorChatJSON struct {
	ID           int64         `json:"id"`
	Type         core.ChatKind `json:"type"`
	FullName     string        `json:"full_name"`
	Phone        string        `json:"phone"`
	PhotoURL     *string       `json:"photo_url"`
	Message      *string       `json:"message"`
	TotalBalance core.Balance  `json:"total_balance"`
	CreatedAt    time.Time     `json:"created_at"`
}

func presentDebtorEntry(e core.DebtorEntry) debtorChatJSON {
	return debtorChatJSON{
		ID:           e.Chat.ID,
		Type:         core.ChatDebtor,
		FullName:     e.Chat.FullName,
		Phone:        e.Chat.Phone,
		PhotoURL:     e.Chat.PhotoURL,
		Message:      e.Chat.Message,
		TotalBalance: e.Balance,
		CreatedAt:    e.Chat.CreatedAt,
	}
}

func presentChatEntries(entries []core.ChatEntry) []any {
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		switch v := e.(type) {
		case core.PayNoteEntry:
			out = append(out, presentPayNote(v.Chat))
		case core.DebtorEntry:
			out = append(out, presentDebtorEntry(v))
		}
	}
	return out
}

type debtorDetailJSON struct {
	Transactions []debtorTransactionJSON `json:"transactions"`
	Totals       core.Totals             `json:"totals"`
	Balance      core.Balance            `json:"balance"`
}

func presentDebtorDetail(d core.DebtorDetail) debtorDetailJSON {
	return debtorDetailJSON{
		Transactions: presentDebtorTransactions(d.Transactions),
		Totals:       d.Totals,
		Balance:      d.Balance,
	}
}

// pageJSON is a paginated listing with totals over the whole filtered set.
type pageJSON struct {
	Count    int64       `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  any         `json:"results"`
	Totals   core.Totals `json:"totals"`
}

func presentPage(r *http.Request, info services.PageInfo, results any, totals core.Totals) pageJSON {
	p := pageJSON{Count: info.Count, Results: results, Totals: totals}
	if info.HasNext {
		p.Next = pageURL(r, info.Page+1)
	}
	if info.HasPrev {
		p.Previous = pageURL(r, info.Page-1)
	}
	return p
}
