package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paylog/internal/core"
)

const categoryColumns = `id, name, name_uz, name_ru, name_en, icon_url, created_at, updated_at`

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var (
		c    core.Category
		icon sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &c.NameUz, &c.NameRu, &c.NameEn, &icon, scanTime(&c.CreatedAt), scanTime(&c.UpdatedAt))
	c.IconURL = stringPtr(icon)
	return c, err
}

const getCategory = `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`

func (q *Queries) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := scanCategory(q.db.QueryRowContext(ctx, getCategory, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, core.NotFound("Category does not exist.")
	}
	if err != nil {
		return c, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

const listCategories = `SELECT ` + categoryColumns + ` FROM categories ORDER BY name, id`

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// categoryNameTaken lists the localized columns whose value is already used
// by another category.
const categoryNameTaken = `SELECT
  COALESCE(SUM(CASE WHEN name_uz = $1 THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN name_ru = $2 THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN name_en = $3 THEN 1 ELSE 0 END), 0)
FROM categories WHERE id <> $4`

// CheckCategoryNames returns a field error for every localized name that
// another category already uses. excludeID is 0 on create.
func (q *Queries) CheckCategoryNames(ctx context.Context, c core.Category, excludeID int64) error {
	var uz, ru, en int64
	if err := q.db.QueryRowContext(ctx, categoryNameTaken, c.NameUz, c.NameRu, c.NameEn, excludeID).Scan(&uz, &ru, &en); err != nil {
		return fmt.Errorf("check category names: %w", err)
	}
	v := &core.ValidationError{}
	const msg = "Category with this name already exists."
	if uz > 0 {
		v.Add("name_uz", msg)
	}
	if ru > 0 {
		v.Add("name_ru", msg)
	}
	if en > 0 {
		v.Add("name_en", msg)
	}
	return v.OrNil()
}

const createCategory = `INSERT INTO categories (name, name_uz, name_ru, name_en, icon_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING ` + categoryColumns

func (q *Queries) CreateCategory(ctx context.Context, c core.Category, now time.Time) (core.Category, error) {
	out, err := scanCategory(q.db.QueryRowContext(ctx, createCategory,
		c.Name, c.NameUz, c.NameRu, c.NameEn, nullString(c.IconURL), utc(now)))
	if IsUniqueViolation(err) {
		return out, core.Conflict("Category with this name already exists.")
	}
	if err != nil {
		return out, fmt.Errorf("create category: %w", err)
	}
	return out, nil
}

const updateCategory = `UPDATE categories
SET name = $2, name_uz = $3, name_ru = $4, name_en = $5, icon_url = $6, updated_at = $7
WHERE id = $1
RETURNING ` + categoryColumns

func (q *Queries) UpdateCategory(ctx context.Context, c core.Category, now time.Time) (core.Category, error) {
	out, err := scanCategory(q.db.QueryRowContext(ctx, updateCategory,
		c.ID, c.Name, c.NameUz, c.NameRu, c.NameEn, nullString(c.IconURL), utc(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return out, core.NotFound("Category does not exist.")
	}
	if IsUniqueViolation(err) {
		return out, core.Conflict("Category with this name already exists.")
	}
	if err != nil {
		return out, fmt.Errorf("update category %d: %w", c.ID, err)
	}
	return out, nil
}

const countCategoryReferences = `SELECT COUNT(*) FROM transactions WHERE category_id = $1`

const deleteCategory = `DELETE FROM categories WHERE id = $1`

// DeleteCategory locks the category, refuses while any transaction uses it
// and deletes it. Call it inside a transaction.
func (q *Queries) DeleteCategory(ctx context.Context, id int64) error {
	if err := q.lockRow(ctx, "categories", id, "Category does not exist."); err != nil {
		return err
	}
	var refs int64
	if err := q.db.QueryRowContext(ctx, countCategoryReferences, id).Scan(&refs); err != nil {
		return fmt.Errorf("count category references: %w", err)
	}
	if refs > 0 {
		return core.Conflict("Cannot delete category because it is used by transactions.")
	}
	if _, err := q.db.ExecContext(ctx, deleteCategory, id); err != nil {
		if IsForeignKeyViolation(err) {
			return core.Conflict("Cannot delete category because it is used by transactions.")
		}
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	return nil
}
