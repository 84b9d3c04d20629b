package services

import (
	"context"
	"testing"

	"paylog/internal/core"
)

func TestCatalogCategories(t *testing.T) {
	s := openTestStore(t)
	clk := &testClock{t: testNow}
	svc := NewCatalogService(s, clk.clock())
	ctx := context.Background()

	c, err := svc.CreateCategory(ctx, core.Category{NameUz: "Oziq", NameRu: "Еда", NameEn: "Food"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Name != "Food" {
		t.Errorf("primary name = %q, want the English name", c.Name)
	}

	_, err = svc.CreateCategory(ctx, core.Category{NameUz: "Boshqa", NameRu: "Другое", NameEn: "Food"})
	expectKind(t, err, core.ErrValidation)

	_, err = svc.CreateCategory(ctx, core.Category{NameUz: "x", NameRu: "y"})
	expectKind(t, err, core.ErrValidation)

	icon := "https://cdn.example.com/food.png"
	updated, err := svc.UpdateCategory(ctx, c.ID, CategoryPatch{IconURL: &icon})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IconURL == nil || *updated.IconURL != icon {
		t.Errorf("icon = %v", updated.IconURL)
	}
	bad := "ftp://nope"
	_, err = svc.UpdateCategory(ctx, c.ID, CategoryPatch{IconURL: &bad})
	expectKind(t, err, core.ErrValidation)

	cleared, err := svc.UpdateCategory(ctx, c.ID, CategoryPatch{ClearIcon: true})
	if err != nil {
		t.Fatal(err)
	}
	if cleared.IconURL != nil {
		t.Error("icon should be cleared")
	}
}

func TestCatalogDeleteCategoryInUse(t *testing.T) {
	s := openTestStore(t)
	clk := &testClock{t: testNow}
	catalog := NewCatalogService(s, clk.clock())
	ledger := NewLedgerService(s, clk.clock())
	ctx := context.Background()

	user := mustUser(t, s, "+998901112233")
	food := mustCategory(t, s, "Food")
	unused := mustCategory(t, s, "Unused")
	uzs, _ := s.Queries().GetCurrencyByCode(ctx, "UZS")

	if _, err := ledger.Create(ctx, user, ledgerTx(core.Expense, "1.00", uzs, food, "2025-03-01")); err != nil {
		t.Fatal(err)
	}

	expectKind(t, catalog.DeleteCategory(ctx, food.ID), core.ErrConflict)
	if err := catalog.DeleteCategory(ctx, unused.ID); err != nil {
		t.Errorf("delete unused: %v", err)
	}
	expectKind(t, catalog.DeleteCategory(ctx, unused.ID), core.ErrNotFound)
}

func TestCatalogCurrencies(t *testing.T) {
	s := openTestStore(t)
	clk := &testClock{t: testNow}
	svc := NewCatalogService(s, clk.clock())
	ctx := context.Background()

	usd, err := svc.AddCurrency(ctx, " usd ", "US Dollar", true)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if usd.Code != "USD" {
		t.Errorf("code = %q, want upper case", usd.Code)
	}
	_, err = svc.AddCurrency(ctx, "USD", "Again", true)
	expectKind(t, err, core.ErrConflict)
	_, err = svc.AddCurrency(ctx, "TOOLONGCODE1", "x", true)
	expectKind(t, err, core.ErrValidation)

	if _, err := svc.SetCurrencyActive(ctx, "usd", false); err != nil {
		t.Fatal(err)
	}
	_, err = svc.GetActiveCurrency(ctx, usd.ID)
	expectKind(t, err, core.ErrNotFound)

	active, err := svc.ListCurrencies(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range active {
		if c.Code == "USD" {
			t.Error("inactive currency listed")
		}
	}
	all, err := svc.ListCurrencies(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(active)+1 {
		t.Errorf("admin listing has %d currencies, active has %d", len(all), len(active))
	}

	if err := svc.DeleteCurrency(ctx, "USD"); err != nil {
		t.Errorf("delete unused currency: %v", err)
	}
	expectKind(t, svc.DeleteCurrency(ctx, "USD"), core.ErrNotFound)
}
