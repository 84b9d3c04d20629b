package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"paylog/internal/core"
	"paylog/internal/log"
)

func idOf(t *testing.T, m map[string]any) int64 {
	t.Helper()
	id, ok := m["id"].(float64)
	if !ok {
		t.Fatalf("missing id in %v", m)
	}
	return int64(id)
}

func decodeList(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode list %q: %v", body, err)
	}
	return out
}

func (f fixture) uzs(t *testing.T) int64 {
	t.Helper()
	c, err := f.store.Queries().GetCurrencyByCode(context.Background(), "UZS")
	if err != nil {
		t.Fatal(err)
	}
	return c.ID
}

func (f fixture) category(t *testing.T, token, en string) int64 {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/api/v1/finance/categories", token, map[string]any{
		"name_uz": en + " uz", "name_ru": en + " ru", "name_en": en,
	})
	expectStatus(t, rr, http.StatusCreated)
	return idOf(t, decode(t, rr))
}

func TestCategoryEndpoints(t *testing.T) {
	f := newFixture(t, Config{})
	_, token := f.login(t, userPhone)

	rr := f.do(t, http.MethodPost, "/api/v1/finance/categories", token, map[string]any{"name_en": "", "icon_url": nil})
	expectStatus(t, rr, http.StatusBadRequest)
	fields := decode(t, rr)
	for _, lang := range []string{"uz", "ru", "en"} {
		msgs, _ := fields["name_"+lang].([]any)
		want := fmt.Sprintf("Category name (%s) is required.", lang)
		if len(msgs) != 1 || msgs[0] != want {
			t.Errorf("name_%s = %v, want %q", lang, fields["name_"+lang], want)
		}
	}

	rr = f.do(t, http.MethodPost, "/api/v1/finance/categories/", token, map[string]any{
		"name_uz": "Oziq-ovqat", "name_ru": "Еда", "name_en": "Food", "icon_url": "https://cdn.example.com/food.png",
	})
	expectStatus(t, rr, http.StatusCreated)
	created := decode(t, rr)
	id := idOf(t, created)
	if created["icon_url"] != "https://cdn.example.com/food.png" {
		t.Errorf("icon_url = %v", created["icon_url"])
	}

	rr = f.do(t, http.MethodPost, "/api/v1/finance/categories", token, map[string]any{
		"name_uz": "Boshqa", "name_ru": "Другое", "name_en": "Food",
	})
	expectStatus(t, rr, http.StatusBadRequest)
	if msgs, _ := decode(t, rr)["name_en"].([]any); len(msgs) != 1 || msgs[0] != "Category with this name already exists." {
		t.Errorf("duplicate name body = %s", rr.Body.String())
	}

	path := fmt.Sprintf("/api/v1/finance/categories/%d", id)
	rr = f.do(t, http.MethodPatch, path, token, map[string]any{"name_en": "Groceries", "icon_url": nil})
	expectStatus(t, rr, http.StatusOK)
	updated := decode(t, rr)
	if updated["name_en"] != "Groceries" || updated["name_ru"] != "Еда" || updated["icon_url"] != nil {
		t.Errorf("updated = %v", updated)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/finance/categories", token, nil)
	expectStatus(t, rr, http.StatusOK)
	if list := decodeList(t, rr.Body.Bytes()); len(list) != 1 || list[0]["name_en"] != "Groceries" {
		t.Errorf("list = %v", list)
	}

	expectStatus(t, f.do(t, http.MethodDelete, path, token, nil), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodGet, path, token, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/finance/categories/abc", token, nil), http.StatusNotFound)
}

func TestCategoryListIsCached(t *testing.T) {
	f := newFixture(t, Config{CatalogCacheTTL: time.Minute})
	_, token := f.login(t, userPhone)

	count := func() int {
		rr := f.do(t, http.MethodGet, "/api/v1/finance/categories", token, nil)
		expectStatus(t, rr, http.StatusOK)
		return len(decodeList(t, rr.Body.Bytes()))
	}
	if n := count(); n != 0 {
		t.Fatalf("initial count = %d", n)
	}

	// written behind the server's back: the cached listing stays
	c := core.Category{NameUz: "a", NameRu: "b", NameEn: "c"}
	c.SyncName()
	if _, err := f.store.Queries().CreateCategory(context.Background(), c, testNow); err != nil {
		t.Fatal(err)
	}
	if n := count(); n != 0 {
		t.Errorf("cached count = %d", n)
	}

	// writes through the API invalidate it
	f.category(t, token, "Transport")
	if n := count(); n != 2 {
		t.Errorf("count after create = %d", n)
	}
}

func TestCategoryDeleteInUse(t *testing.T) {
	f := newFixture(t, Config{})
	_, token := f.login(t, userPhone)
	cat := f.category(t, token, "Food")

	rr := f.do(t, http.MethodPost, "/api/v1/finance/transactions", token, map[string]any{
		"type": "EXPENSE", "amount": "10.00", "currency": f.uzs(t), "category": cat, "date": "2025-03-14",
	})
	expectStatus(t, rr, http.StatusCreated)

	rr = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/finance/categories/%d", cat), token, nil)
	expectStatus(t, rr, http.StatusConflict)
	if got := decode(t, rr)["detail"]; got != "Cannot delete category because it is used by transactions." {
		t.Errorf("detail = %v", got)
	}
}

func TestCurrencyEndpoints(t *testing.T) {
	f := newFixture(t, Config{})
	_, token := f.login(t, userPhone)
	inactive, err := f.store.Queries().CreateCurrency(context.Background(), "EUR", "Euro", false, testNow)
	if err != nil {
		t.Fatal(err)
	}

	rr := f.do(t, http.MethodGet, "/api/v1/finance/currencies", token, nil)
	expectStatus(t, rr, http.StatusOK)
	list := decodeList(t, rr.Body.Bytes())
	if len(list) != 1 || list[0]["code"] != "UZS" || list[0]["is_active"] != true {
		t.Errorf("currencies = %v", list)
	}

	expectStatus(t, f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/finance/currencies/%d", f.uzs(t)), token, nil), http.StatusOK)
	expectStatus(t, f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/finance/currencies/%d", inactive.ID), token, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/finance/currencies", token, map[string]any{"code": "USD"}), http.StatusMethodNotAllowed)
}

func TestCurrencyListReflectsDeactivation(t *testing.T) {
	f := newFixture(t, Config{CatalogCacheTTL: time.Minute})
	_, token := f.login(t, userPhone)
	ctx := context.Background()
	if _, err := f.srv.svc.Catalog.AddCurrency(ctx, "USD", "US Dollar", true); err != nil {
		t.Fatal(err)
	}

	rr := f.do(t, http.MethodGet, "/api/v1/finance/currencies", token, nil)
	expectStatus(t, rr, http.StatusOK)
	if list := decodeList(t, rr.Body.Bytes()); len(list) != 2 {
		t.Fatalf("currencies = %v", list)
	}

	usd, err := f.srv.svc.Catalog.SetCurrencyActive(ctx, "USD", false)
	if err != nil {
		t.Fatal(err)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/finance/currencies", token, nil)
	expectStatus(t, rr, http.StatusOK)
	list := decodeList(t, rr.Body.Bytes())
	if len(list) != 1 || list[0]["code"] != "UZS" {
		t.Errorf("currencies after deactivate = %v", list)
	}
	expectStatus(t, f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/finance/currencies/%d", usd.ID), token, nil), http.StatusNotFound)
}

func TestTransactionEndpoints(t *testing.T) {
	f := newFixture(t, Config{})
	uid, token := f.login(t, userPhone)
	_, other := f.login(t, "+998907654321")
	cur := f.uzs(t)
	cat := f.category(t, token, "Food")

	rows := []map[string]any{
		{"type": "INCOME", "amount": "100.50", "date": "2025-03-10", "note": "salary"},
		{"type": "EXPENSE", "amount": 20, "date": "2025-03-12"},
		{"type": "EXPENSE", "amount": "30.25", "date": "2025-03-14"},
	}
	var ids []int64
	for _, row := range rows {
		row["currency"] = cur
		row["category"] = cat
		rr := f.do(t, http.MethodPost, "/api/v1/finance/transactions", token, row)
		expectStatus(t, rr, http.StatusCreated)
		out := decode(t, rr)
		if out["user"] != float64(uid) || out["currency"] != float64(cur) || out["category"] != float64(cat) {
			t.Errorf("write shape = %v", out)
		}
		ids = append(ids, idOf(t, out))
	}

	rr := f.do(t, http.MethodGet, "/api/v1/finance/transactions?page_size=2", token, nil)
	expectStatus(t, rr, http.StatusOK)
	page := decode(t, rr)
	if page["count"] != float64(3) || page["previous"] != nil {
		t.Errorf("page 1 = %v", page)
	}
	if page["next"] != "http://example.com/api/v1/finance/transactions?page=2&page_size=2" {
		t.Errorf("next = %v", page["next"])
	}
	totals := page["totals"].(map[string]any)
	if totals["income_total"] != "100.50" || totals["expense_total"] != "50.25" {
		t.Errorf("totals = %v", totals)
	}
	results := page["results"].([]any)
	first := results[0].(map[string]any)
	if len(results) != 2 || first["date"] != "2025-03-14" || first["amount"] != "30.25" {
		t.Errorf("results = %v", results)
	}
	if first["currency"].(map[string]any)["code"] != "UZS" || first["category"].(map[string]any)["name_en"] != "Food" {
		t.Errorf("read shape = %v", first)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/finance/transactions?page=2&page_size=2", token, nil)
	expectStatus(t, rr, http.StatusOK)
	page = decode(t, rr)
	if page["previous"] != "http://example.com/api/v1/finance/transactions?page_size=2" || page["next"] != nil {
		t.Errorf("page 2 links = %v / %v", page["previous"], page["next"])
	}

	for _, q := range []string{"page=3&page_size=2", "page=abc", "page=0"} {
		rr = f.do(t, http.MethodGet, "/api/v1/finance/transactions?"+q, token, nil)
		expectStatus(t, rr, http.StatusNotFound)
		if got := decode(t, rr)["detail"]; got != "Invalid page." {
			t.Errorf("%s: detail = %v", q, got)
		}
	}

	rr = f.do(t, http.MethodGet, "/api/v1/finance/transactions?type=INCOME", token, nil)
	expectStatus(t, rr, http.StatusOK)
	if page = decode(t, rr); page["count"] != float64(1) {
		t.Errorf("filtered count = %v", page["count"])
	}

	for q, field := range map[string]string{
		"type=BAD":                    "type",
		"categoryId=x":                "categoryId",
		"period=weekly&from=2025-03-01": "period",
	} {
		rr = f.do(t, http.MethodGet, "/api/v1/finance/transactions?"+q, token, nil)
		expectStatus(t, rr, http.StatusBadRequest)
		if _, ok := decode(t, rr)[field]; !ok {
			t.Errorf("%s: body = %s", q, rr.Body.String())
		}
	}

	path := fmt.Sprintf("/api/v1/finance/transactions/%d", ids[0])
	rr = f.do(t, http.MethodPatch, path, token, map[string]any{"amount": "99.99", "note": nil})
	expectStatus(t, rr, http.StatusOK)
	out := decode(t, rr)
	if out["amount"] != "99.99" || out["type"] != "INCOME" || out["note"] != nil || out["date"] != "2025-03-10" {
		t.Errorf("patched = %v", out)
	}

	expectStatus(t, f.do(t, http.MethodGet, path, other, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodDelete, path, other, nil), http.StatusNotFound)
	expectStatus(t, f.do(t, http.MethodDelete, path, token, nil), http.StatusNoContent)
	expectStatus(t, f.do(t, http.MethodGet, path, token, nil), http.StatusNotFound)
}

func TestTransactionValidation(t *testing.T) {
	f := newFixture(t, Config{})
	_, token := f.login(t, userPhone)
	cat := f.category(t, token, "Food")

	rr := f.do(t, http.MethodPost, "/api/v1/finance/transactions", token, map[string]any{
		"type": "GIFT", "amount": "0", "currency": "x", "category": cat,
	})
	expectStatus(t, rr, http.StatusBadRequest)
	fields := decode(t, rr)
	for _, key := range []string{"type", "amount", "currency", "date"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing %s in %v", key, fields)
		}
	}
	if msgs := fields["date"].([]any); msgs[0] != "Date is required." {
		t.Errorf("date = %v", msgs)
	}

	rr = f.do(t, http.MethodPost, "/api/v1/finance/transactions", token, map[string]any{
		"type": "INCOME", "amount": "1.005", "currency": f.uzs(t), "category": cat, "date": "2025-02-30",
	})
	expectStatus(t, rr, http.StatusBadRequest)
	fields = decode(t, rr)
	if _, ok := fields["amount"]; !ok {
		t.Errorf("amount precision not reported: %v", fields)
	}
	if _, ok := fields["date"]; !ok {
		t.Errorf("bad date not reported: %v", fields)
	}
}

func TestDebtorTransactionEndpoints(t *testing.T) {
	f := newFixture(t, Config{})
	_, token := f.login(t, userPhone)
	cur := f.uzs(t)

	balance := func() map[string]any {
		rr := f.do(t, http.MethodGet, "/api/v1/finance/debtor-transactions/balance/", token, nil)
		expectStatus(t, rr, http.StatusOK)
		return decode(t, rr)
	}
	if b := balance(); b["balance"] != "0.00" || b["currency"] != nil {
		t.Errorf("empty balance = %v", b)
	}

	rr := f.do(t, http.MethodPost, "/api/v1/finance/debtor-transactions", token, map[string]any{
		"type": "INCOME", "amount": "100", "currency": cur, "phone": "+998901111111",
	})
	expectStatus(t, rr, http.StatusCreated)
	lent := decode(t, rr)
	if lent["date"] != "2025-03-14" || lent["amount"] != "100.00" || lent["currency"] != float64(cur) {
		t.Errorf("created = %v", lent)
	}

	rr = f.do(t, http.MethodPost, "/api/v1/finance/debtor-transactions", token, map[string]any{
		"type": "EXPENSE", "amount": "30", "currency": cur,
	})
	expectStatus(t, rr, http.StatusCreated)
	repaid := decode(t, rr)
	if repaid["phone"] != nil {
		t.Errorf("phone = %v", repaid["phone"])
	}

	if b := balance(); b["balance"] != "70.00" || b["currency"] != "UZS" {
		t.Errorf("balance = %v", b)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/finance/debtor-transactions", token, nil)
	expectStatus(t, rr, http.StatusOK)
	page := decode(t, rr)
	totals := page["totals"].(map[string]any)
	if page["count"] != float64(2) || totals["income_total"] != "100.00" || totals["expense_total"] != "30.00" {
		t.Errorf("list = %v", page)
	}

	rr = f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/finance/debtor-transactions/%d", idOf(t, repaid)), token,
		map[string]any{"amount": "40", "note": "partial"})
	expectStatus(t, rr, http.StatusOK)
	if out := decode(t, rr); out["note"] != "partial" || out["type"] != "EXPENSE" {
		t.Errorf("patched = %v", out)
	}
	if b := balance(); b["balance"] != "60.00" {
		t.Errorf("balance after update = %v", b)
	}

	rr = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/finance/debtor-transactions/%d", idOf(t, lent)), token, nil)
	expectStatus(t, rr, http.StatusNoContent)
	if b := balance(); b["balance"] != "-40.00" {
		t.Errorf("balance after delete = %v", b)
	}

	rr = f.do(t, http.MethodPost, "/api/v1/finance/debtor-transactions", token, map[string]any{
		"type": "INCOME", "amount": "5", "currency": cur, "phone": "not a phone",
	})
	expectStatus(t, rr, http.StatusBadRequest)
	if _, ok := decode(t, rr)["phone"]; !ok {
		t.Errorf("body = %s", rr.Body.String())
	}
}

// lockedBuffer is shared by the request logger and the default slog logger.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCreateIsLoggedOnce(t *testing.T) {
	out := &lockedBuffer{}
	logger := log.New(log.Config{Level: slog.LevelInfo, Output: out})
	prev := slog.Default()
	log.SetDefault(logger)
	t.Cleanup(func() { slog.SetDefault(prev) })

	f := newLoggedFixture(t, Config{}, logger)
	_, token := f.login(t, userPhone)
	cat := f.category(t, token, "Food")

	rr := f.do(t, http.MethodPost, "/api/v1/finance/transactions", token, map[string]any{
		"type": "EXPENSE", "amount": "12.00", "currency": f.uzs(t), "category": cat, "date": "2025-03-14",
	})
	expectStatus(t, rr, http.StatusCreated)
	rr = f.do(t, http.MethodPost, "/api/v1/finance/debtor-transactions", token, map[string]any{
		"type": "INCOME", "amount": "5.00", "currency": f.uzs(t),
	})
	expectStatus(t, rr, http.StatusCreated)
	rr = f.do(t, http.MethodPost, "/api/v1/debtors", token, map[string]any{"full_name": "Ali", "phone": "+998901111111"})
	expectStatus(t, rr, http.StatusCreated)

	logs := out.String()
	for _, msg := range []string{`"Category created"`, `"Transaction created"`, `"Debtor transaction created"`, `"Debtor chat created"`} {
		if n := strings.Count(logs, msg); n != 1 {
			t.Errorf("%s logged %d times, want 1", msg, n)
		}
	}
}
