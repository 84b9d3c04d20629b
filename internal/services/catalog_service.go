package services

import (
	"context"
	"log/slog"
	"strings"

	"paylog/internal/core"
	"paylog/internal/storage"
)

// CatalogService manages the global reference data: categories and
// currencies.
type CatalogService struct {
	store *storage.Store
	clock Clock
}

func NewCatalogService(store *storage.Store, clock Clock) *CatalogService {
	return &CatalogService{store: store, clock: clock}
}

// CategoryPatch lists the fields a category update changes.
type CategoryPatch struct {
	NameUz    *string
	NameRu    *string
	NameEn    *string
	IconURL   *string
	ClearIcon bool
}

func (p CategoryPatch) apply(c core.Category) core.Category {
	if p.NameUz != nil {
		c.NameUz = *p.NameUz
	}
	if p.NameRu != nil {
		c.NameRu = *p.NameRu
	}
	if p.NameEn != nil {
		c.NameEn = *p.NameEn
	}
	switch {
	case p.ClearIcon:
		c.IconURL = nil
	case p.IconURL != nil:
		c.IconURL = p.IconURL
	}
	return c
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.store.Queries().ListCategories(ctx)
}

func (s *CatalogService) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	return s.store.Queries().GetCategory(ctx, id)
}

// CreateCategory validates c, checks each localized name for uniqueness and
// stores it with the primary name derived from the localized ones.
func (s *CatalogService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}
	c.SyncName()

	var out core.Category
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.CheckCategoryNames(ctx, c, 0); err != nil {
			return err
		}
		var err error
		out, err = q.CreateCategory(ctx, c, s.clock.now())
		return err
	})
	if err != nil {
		return out, err
	}
	return out, nil
}

func (s *CatalogService) UpdateCategory(ctx context.Context, id int64, patch CategoryPatch) (core.Category, error) {
	var out core.Category
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		prev, err := q.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		next := patch.apply(prev)
		if err := next.Validate(); err != nil {
			return err
		}
		next.SyncName()
		if err := q.CheckCategoryNames(ctx, next, id); err != nil {
			return err
		}
		out, err = q.UpdateCategory(ctx, next, s.clock.now())
		return err
	})
	if err != nil {
		return out, err
	}
	slog.InfoContext(ctx, "Category updated", "id", id)
	return out, nil
}

// DeleteCategory removes a category that no transaction uses. The reference
// check and the delete run in one transaction.
func (s *CatalogService) DeleteCategory(ctx context.Context, id int64) error {
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		return q.DeleteCategory(ctx, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Category deleted", "id", id)
	return nil
}

// ListCurrencies returns the active currencies, or every currency for
// administration.
func (s *CatalogService) ListCurrencies(ctx context.Context, includeInactive bool) ([]core.Currency, error) {
	return s.store.Queries().ListCurrencies(ctx, includeInactive)
}

// GetActiveCurrency hides inactive currencies the same way the listing does.
func (s *CatalogService) GetActiveCurrency(ctx context.Context, id int64) (core.Currency, error) {
	c, err := s.store.Queries().GetCurrency(ctx, id)
	if err != nil {
		return c, err
	}
	if !c.IsActive {
		return core.Currency{}, core.NotFound("Currency does not exist.")
	}
	return c, nil
}

// AddCurrency registers a currency code. Codes are stored upper case.
func (s *CatalogService) AddCurrency(ctx context.Context, code, name string, active bool) (core.Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	v := &core.ValidationError{}
	if code == "" || len(code) > 10 {
		v.Add("code", "Enter a currency code of at most 10 characters.")
	}
	if name == "" || len(name) > 64 {
		v.Add("name", "Enter a currency name of at most 64 characters.")
	}
	if err := v.OrNil(); err != nil {
		return core.Currency{}, err
	}

	c, err := s.store.Queries().CreateCurrency(ctx, code, name, active, s.clock.now())
	if err != nil {
		return c, err
	}
	slog.InfoContext(ctx, "Currency added", "code", c.Code, "active", c.IsActive)
	return c, nil
}

// SetCurrencyActive toggles a currency by code. Inactive currencies remain
// valid for existing rows.
func (s *CatalogService) SetCurrencyActive(ctx context.Context, code string, active bool) (core.Currency, error) {
	q := s.store.Queries()
	c, err := q.GetCurrencyByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return c, err
	}
	if err := q.SetCurrencyActive(ctx, c.ID, active, s.clock.now()); err != nil {
		return c, err
	}
	c.IsActive = active
	slog.InfoContext(ctx, "Currency updated", "code", c.Code, "active", active)
	return c, nil
}

// DeleteCurrency removes a currency nothing references.
func (s *CatalogService) DeleteCurrency(ctx context.Context, code string) error {
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		c, err := q.GetCurrencyByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
		if err != nil {
			return err
		}
		return q.DeleteCurrency(ctx, c.ID)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Currency deleted", "code", code)
	return nil
}
