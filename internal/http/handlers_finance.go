package http

import (
	"net/http"

	"paylog/internal/core"
	"paylog/internal/log"
	"paylog/internal/services"
)

var categoryRequired = map[string]string{
	"name_uz": "Category name (uz) is required.",
	"name_ru": "Category name (ru) is required.",
	"name_en": "Category name (en) is required.",
}

const (
	msgInvalidCurrencyID = "Invalid currency id."
	msgInvalidCategoryID = "Invalid category id."
)

func (s *Server) handleCategoryList(w http.ResponseWriter, r *http.Request, _ core.User) {
	cs, err := s.listCategories(r.Context())
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(presentCategories(cs)).Write(w)
}

func (s *Server) handleCategoryGet(w http.ResponseWriter, r *http.Request, _ core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	c, err := s.svc.Catalog.GetCategory(r.Context(), id)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(presentCategory(c)).Write(w)
}

func (s *Server) handleCategoryCreate(w http.ResponseWriter, r *http.Request, _ core.User) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	b := newBinder(p, false)
	b.requiredMessages = categoryRequired
	nameUz := b.text("name_uz", 100)
	nameRu := b.text("name_ru", 100)
	nameEn := b.text("name_en", 100)
	icon, _ := b.optionalText("icon_url", 200)
	if err := b.err(); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}

	c, err := s.svc.Catalog.CreateCategory(r.Context(), core.Category{
		NameUz:  *nameUz,
		NameRu:  *nameRu,
		NameEn:  *nameEn,
		IconURL: icon,
	})
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	s.invalidateCategories()
	log.FromContext(r.Context()).InfoContext(r.Context(), "Category created",
		log.FieldComponent, log.ComponentCatalog,
		log.FieldOperation, log.OpCreate,
		log.FieldEntityID, c.ID)
	NewJSONResponse().Status(http.StatusCreated).Body(presentCategory(c)).Write(w)
}

func (s *Server) handleCategoryUpdate(w http.ResponseWriter, r *http.Request, _ core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	b := newBinder(p, true)
	b.requiredMessages = categoryRequired
	patch := services.CategoryPatch{
		NameUz: b.text("name_uz", 100),
		NameRu: b.text("name_ru", 100),
		NameEn: b.text("name_en", 100),
	}
	patch.IconURL, patch.ClearIcon = b.optionalText("icon_url", 200)
	if err := b.err(); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}

	c, err := s.svc.Catalog.UpdateCategory(r.Context(), id, patch)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	s.invalidateCategories()
	NewJSONResponse().Body(presentCategory(c)).Write(w)
}

func (s *Server) handleCategoryDelete(w http.ResponseWriter, r *http.Request, _ core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	if err := s.svc.Catalog.DeleteCategory(r.Context(), id); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	s.invalidateCategories()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCurrencyList(w http.ResponseWriter, r *http.Request, _ core.User) {
	cs, err := s.listActiveCurrencies(r.Context())
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(presentCurrencies(cs)).Write(w)
}

func (s *Server) handleCurrencyGet(w http.ResponseWriter, r *http.Request, _ core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	c, err := s.svc.Catalog.GetActiveCurrency(r.Context(), id)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(presentCurrency(c)).Write(w)
}

func (s *Server) handleTransactionList(w http.ResponseWriter, r *http.Request, u core.User) {
	page, err := pageRequest(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	q := r.URL.Query()
	params := core.FilterParams{
		Period:     q.Get("period"),
		From:       q.Get("from"),
		To:         q.Get("to"),
		Type:       q.Get("type"),
		CategoryID: q.Get("categoryId"),
		CurrencyID: q.Get("currency"),
	}

	list, err := s.svc.Ledger.List(r.Context(), u.ID, params, page)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	results := make([]transactionJSON, 0, len(list.Items))
	for _, t := range list.Items {
		results = append(results, presentTransaction(t))
	}
	NewJSONResponse().Body(presentPage(r, list.Page, results, list.Totals)).Write(w)
}

func (s *Server) handleTransactionGet(w http.ResponseWriter, r *http.Request, u core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	t, err := s.svc.Ledger.Get(r.Context(), u.ID, id)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(presentTransaction(t)).Write(w)
}

func (s *Server) handleTransactionCreate(w http.ResponseWriter, r *http.Request, u core.User) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	b := newBinder(p, false)
	b.requiredMessages = map[string]string{"date": "Date is required."}
	dir := b.direction("type")
	amount := b.amount("amount")
	currencyID := b.id("currency", msgInvalidCurrencyID)
	categoryID := b.id("category", msgInvalidCategoryID)
	date := b.date("date")
	note, _ := b.optionalText("note", 0)
	if err := b.err(); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}

	t, err := s.svc.Ledger.Create(r.Context(), u.ID, core.Transaction{
		Direction:  *dir,
		Amount:     *amount,
		CurrencyID: *currencyID,
		CategoryID: *categoryID,
		Date:       *date,
		Note:       note,
	})
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Transaction created",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpCreate,
		log.FieldEntityID, t.ID,
		log.FieldDirection, t.Direction,
		log.FieldAmount, core.FormatAmount(t.Amount))
	NewJSONResponse().Status(http.StatusCreated).Body(presentTransactionWrite(t)).Write(w)
}

func (s *Server) handleTransactionUpdate(w http.ResponseWriter, r *http.Request, u core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	b := newBinder(p, true)
	patch := services.TransactionPatch{
		Direction:  b.direction("type"),
		Amount:     b.amount("amount"),
		CurrencyID: b.id("currency", msgInvalidCurrencyID),
		CategoryID: b.id("category", msgInvalidCategoryID),
		Date:       b.date("date"),
	}
	patch.Note, patch.ClearNote = b.optionalText("note", 0)
	if err := b.err(); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}

	t, err := s.svc.Ledger.Update(r.Context(), u.ID, id, patch)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(presentTransactionWrite(t)).Write(w)
}

func (s *Server) handleTransactionDelete(w http.ResponseWriter, r *http.Request, u core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	if err := s.svc.Ledger.Delete(r.Context(), u.ID, id); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDebtorList(w http.ResponseWriter, r *http.Request, u core.User) {
	page, err := pageRequest(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	list, err := s.svc.Debtors.List(r.Context(), u.ID, page)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(presentPage(r, list.Page, presentDebtorTransactions(list.Items), list.Totals)).Write(w)
}

func (s *Server) handleDebtorGet(w http.ResponseWriter, r *http.Request, u core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	t, err := s.svc.Debtors.Get(r.Context(), u.ID, id)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(presentDebtorTransaction(t)).Write(w)
}

func (s *Server) handleDebtorCreate(w http.ResponseWriter, r *http.Request, u core.User) {
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	b := newBinder(p, false)
	dir := b.direction("type")
	amount := b.amount("amount")
	currencyID := b.id("currency", msgInvalidCurrencyID)
	phone, _ := b.optionalText("phone", 20)
	note, _ := b.optionalText("note", 0)
	if err := b.err(); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}

	t, err := s.svc.Debtors.Create(r.Context(), u.ID, core.DebtorTransaction{
		Direction:  *dir,
		Amount:     *amount,
		CurrencyID: *currencyID,
		Phone:      phone,
		Note:       note,
	})
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Debtor transaction created",
		log.FieldComponent, log.ComponentDebtor,
		log.FieldOperation, log.OpCreate,
		log.FieldEntityID, t.ID,
		log.FieldDirection, t.Direction,
		log.FieldAmount, core.FormatAmount(t.Amount))
	NewJSONResponse().Status(http.StatusCreated).Body(presentDebtorTransaction(t)).Write(w)
}

func (s *Server) handleDebtorUpdate(w http.ResponseWriter, r *http.Request, u core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	p, err := parseBody(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	b := newBinder(p, true)
	patch := services.DebtorTransactionPatch{
		Direction:  b.direction("type"),
		Amount:     b.amount("amount"),
		CurrencyID: b.id("currency", msgInvalidCurrencyID),
	}
	patch.Phone, patch.ClearPhone = b.optionalText("phone", 20)
	patch.Note, patch.ClearNote = b.optionalText("note", 0)
	if err := b.err(); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}

	t, err := s.svc.Debtors.Update(r.Context(), u.ID, id, patch)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(presentDebtorTransaction(t)).Write(w)
}

func (s *Server) handleDebtorDelete(w http.ResponseWriter, r *http.Request, u core.User) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	if err := s.svc.Debtors.Delete(r.Context(), u.ID, id); err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleDebtorBalance(w http.ResponseWriter, r *http.Request, u core.User) {
	b, err := s.svc.Debtors.Balance(r.Context(), u.ID)
	if err != nil {
		s.fail(w, r, styleDetail, err)
		return
	}
	NewJSONResponse().Body(b).Write(w)
}
