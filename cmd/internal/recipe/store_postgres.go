package recipe

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"apseq/cmd/internal/pagination"
)

// PostgresStore persists the recipe graph in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by the store (default: "apseq").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "apseq"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("recipe: nil pool")
	}
	return st, nil
}

// CreateTag inserts a tag.
func (s *PostgresStore) CreateTag(ctx context.Context, t Tag) (Tag, error) {
	if err := ctx.Err(); err != nil {
		return Tag{}, err
	}
	if t.ID == "" || t.ProjectID == "" || t.Name == "" {
		return Tag{}, ErrInvalidInput
	}

	tags := pgIdent(s.schema, "tags")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+tags+` (id, project_id, name, default_value, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.ProjectID, t.Name, t.DefaultValue, t.CreatedAt,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Tag{}, ErrNameTaken
		}
		return Tag{}, err
	}
	return t, nil
}

// GetTags returns the named tags of one project. Any missing ID fails the
// whole lookup.
func (s *PostgresStore) GetTags(ctx context.Context, projectID string, ids []string) ([]Tag, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tags := pgIdent(s.schema, "tags")

	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, name, default_value, created_at
		   FROM `+tags+`
		  WHERE project_id = $1 AND id = ANY($2)`,
		projectID, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]Tag, len(ids))
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.DefaultValue, &t.CreatedAt); err != nil {
			return nil, err
		}
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Tag, 0, len(ids))
	for _, id := range ids {
		t, ok := byID[id]
		if !ok {
			return nil, ErrNotFound
		}
		out = append(out, t)
	}
	return out, nil
}

// ListTags pages a project's tags ordered by (created_at DESC, id DESC).
func (s *PostgresStore) ListTags(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Tag], error) {
	tags := pgIdent(s.schema, "tags")
	return listPage(ctx, s.pool, req,
		`SELECT id, project_id, name, default_value, created_at FROM `+tags+` WHERE project_id = $1`,
		projectID,
		func(row pgx.Row) (Tag, error) {
			var t Tag
			err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.DefaultValue, &t.CreatedAt)
			return t, err
		},
		func(t Tag) (time.Time, string) { return t.CreatedAt, t.ID },
	)
}

// CreateCombination inserts a combination and its tag values in one
// transaction.
func (s *PostgresStore) CreateCombination(ctx context.Context, c Combination, values []CombinationTag) (Combination, error) {
	if err := ctx.Err(); err != nil {
		return Combination{}, err
	}
	if c.ID == "" || c.ProjectID == "" || c.Name == "" {
		return Combination{}, ErrInvalidInput
	}

	combinations := pgIdent(s.schema, "combinations")
	combinationTags := pgIdent(s.schema, "combination_tags")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Combination{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO `+combinations+` (id, project_id, name, created_at)
		 VALUES ($1, $2, $3, $4)`,
		c.ID, c.ProjectID, c.Name, c.CreatedAt,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Combination{}, ErrNameTaken
		}
		return Combination{}, err
	}

	for _, v := range values {
		_, err = tx.Exec(ctx,
			`INSERT INTO `+combinationTags+` (combination_id, tag_id, value)
			 VALUES ($1, $2, $3)`,
			v.CombinationID, v.TagID, v.Value,
		)
		if err != nil {
			return Combination{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Combination{}, err
	}
	return c, nil
}

// GetCombination returns a combination and its tag values.
func (s *PostgresStore) GetCombination(ctx context.Context, id string) (Combination, []CombinationTag, error) {
	if err := ctx.Err(); err != nil {
		return Combination{}, nil, err
	}

	combinations := pgIdent(s.schema, "combinations")
	combinationTags := pgIdent(s.schema, "combination_tags")

	var c Combination
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, name, created_at FROM `+combinations+` WHERE id = $1`, id,
	).Scan(&c.ID, &c.ProjectID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Combination{}, nil, ErrNotFound
	}
	if err != nil {
		return Combination{}, nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT combination_id, tag_id, value FROM `+combinationTags+` WHERE combination_id = $1`, id)
	if err != nil {
		return Combination{}, nil, err
	}
	defer rows.Close()

	var values []CombinationTag
	for rows.Next() {
		var v CombinationTag
		if err := rows.Scan(&v.CombinationID, &v.TagID, &v.Value); err != nil {
			return Combination{}, nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return Combination{}, nil, err
	}
	return c, values, nil
}

// ListCombinations pages a project's combinations ordered by
// (created_at DESC, id DESC).
func (s *PostgresStore) ListCombinations(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Combination], error) {
	combinations := pgIdent(s.schema, "combinations")
	return listPage(ctx, s.pool, req,
		`SELECT id, project_id, name, created_at FROM `+combinations+` WHERE project_id = $1`,
		projectID,
		func(row pgx.Row) (Combination, error) {
			var c Combination
			err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.CreatedAt)
			return c, err
		},
		func(c Combination) (time.Time, string) { return c.CreatedAt, c.ID },
	)
}

// CreateRecipe inserts a recipe with its composition in one transaction.
func (s *PostgresStore) CreateRecipe(ctx context.Context, r Recipe, uses []RecipeCombination, overrides []TagOverride) (Recipe, error) {
	if err := ctx.Err(); err != nil {
		return Recipe{}, err
	}
	if r.ID == "" || r.ProjectID == "" || r.Name == "" {
		return Recipe{}, ErrInvalidInput
	}

	recipes := pgIdent(s.schema, "recipes")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Recipe{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO `+recipes+` (id, project_id, name, version, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ProjectID, r.Name, r.Version, r.Archived, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Recipe{}, ErrNameTaken
		}
		return Recipe{}, err
	}

	if err := s.insertComposition(ctx, tx, uses, overrides); err != nil {
		return Recipe{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Recipe{}, err
	}
	return r, nil
}

func (s *PostgresStore) insertComposition(ctx context.Context, tx pgx.Tx, uses []RecipeCombination, overrides []TagOverride) error {
	recipeCombinations := pgIdent(s.schema, "recipe_combinations")
	tagOverrides := pgIdent(s.schema, "recipe_tag_overrides")

	for _, use := range uses {
		_, err := tx.Exec(ctx,
			`INSERT INTO `+recipeCombinations+` (id, recipe_id, combination_id, position)
			 VALUES ($1, $2, $3, $4)`,
			use.ID, use.RecipeID, use.CombinationID, use.Position,
		)
		if err != nil {
			return err
		}
	}
	for _, o := range overrides {
		_, err := tx.Exec(ctx,
			`INSERT INTO `+tagOverrides+` (recipe_combination_id, tag_id, value)
			 VALUES ($1, $2, $3)`,
			o.RecipeCombinationID, o.TagID, o.Value,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetRecipe returns a recipe row.
func (s *PostgresStore) GetRecipe(ctx context.Context, id string) (Recipe, error) {
	if err := ctx.Err(); err != nil {
		return Recipe{}, err
	}

	recipes := pgIdent(s.schema, "recipes")

	var r Recipe
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, name, version, archived, created_at, updated_at
		   FROM `+recipes+` WHERE id = $1`, id,
	).Scan(&r.ID, &r.ProjectID, &r.Name, &r.Version, &r.Archived, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recipe{}, ErrNotFound
	}
	if err != nil {
		return Recipe{}, err
	}
	return r, nil
}

// GetRecipeParts returns the recipe's uses ordered by position, plus its
// overrides.
func (s *PostgresStore) GetRecipeParts(ctx context.Context, recipeID string) ([]RecipeCombination, []TagOverride, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	recipeCombinations := pgIdent(s.schema, "recipe_combinations")
	tagOverrides := pgIdent(s.schema, "recipe_tag_overrides")

	rows, err := s.pool.Query(ctx,
		`SELECT id, recipe_id, combination_id, position
		   FROM `+recipeCombinations+`
		  WHERE recipe_id = $1
		  ORDER BY position`, recipeID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var uses []RecipeCombination
	for rows.Next() {
		var use RecipeCombination
		if err := rows.Scan(&use.ID, &use.RecipeID, &use.CombinationID, &use.Position); err != nil {
			return nil, nil, err
		}
		uses = append(uses, use)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	oRows, err := s.pool.Query(ctx,
		`SELECT o.recipe_combination_id, o.tag_id, o.value
		   FROM `+tagOverrides+` o
		   JOIN `+recipeCombinations+` rc ON rc.id = o.recipe_combination_id
		  WHERE rc.recipe_id = $1`, recipeID)
	if err != nil {
		return nil, nil, err
	}
	defer oRows.Close()

	var overrides []TagOverride
	for oRows.Next() {
		var o TagOverride
		if err := oRows.Scan(&o.RecipeCombinationID, &o.TagID, &o.Value); err != nil {
			return nil, nil, err
		}
		overrides = append(overrides, o)
	}
	if err := oRows.Err(); err != nil {
		return nil, nil, err
	}
	return uses, overrides, nil
}

// ListRecipes pages a project's recipes ordered by (created_at DESC, id
// DESC).
func (s *PostgresStore) ListRecipes(ctx context.Context, projectID string, req pagination.Request) (pagination.Page[Recipe], error) {
	recipes := pgIdent(s.schema, "recipes")
	return listPage(ctx, s.pool, req,
		`SELECT id, project_id, name, version, archived, created_at, updated_at
		   FROM `+recipes+` WHERE project_id = $1`,
		projectID,
		func(row pgx.Row) (Recipe, error) {
			var r Recipe
			err := row.Scan(&r.ID, &r.ProjectID, &r.Name, &r.Version, &r.Archived, &r.CreatedAt, &r.UpdatedAt)
			return r, err
		},
		func(r Recipe) (time.Time, string) { return r.CreatedAt, r.ID },
	)
}

// ReplaceRecipe swaps a recipe's composition in one transaction.
func (s *PostgresStore) ReplaceRecipe(ctx context.Context, r Recipe, uses []RecipeCombination, overrides []TagOverride) (Recipe, error) {
	if err := ctx.Err(); err != nil {
		return Recipe{}, err
	}

	recipes := pgIdent(s.schema, "recipes")
	recipeCombinations := pgIdent(s.schema, "recipe_combinations")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Recipe{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE `+recipes+`
		    SET name = $2, version = $3, updated_at = $4
		  WHERE id = $1`,
		r.ID, r.Name, r.Version, r.UpdatedAt,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return Recipe{}, ErrNameTaken
		}
		return Recipe{}, err
	}
	if tag.RowsAffected() == 0 {
		return Recipe{}, ErrNotFound
	}

	// Overrides go with the old uses via cascade.
	if _, err := tx.Exec(ctx,
		`DELETE FROM `+recipeCombinations+` WHERE recipe_id = $1`, r.ID); err != nil {
		return Recipe{}, err
	}
	if err := s.insertComposition(ctx, tx, uses, overrides); err != nil {
		return Recipe{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Recipe{}, err
	}
	return r, nil
}

// SetArchived flips the recipe's archived flag.
func (s *PostgresStore) SetArchived(ctx context.Context, recipeID string, archived bool, now time.Time) (Recipe, error) {
	if err := ctx.Err(); err != nil {
		return Recipe{}, err
	}

	recipes := pgIdent(s.schema, "recipes")

	var r Recipe
	err := s.pool.QueryRow(ctx,
		`UPDATE `+recipes+` SET archived = $2, updated_at = $3 WHERE id = $1
		 RETURNING id, project_id, name, version, archived, created_at, updated_at`,
		recipeID, archived, now,
	).Scan(&r.ID, &r.ProjectID, &r.Name, &r.Version, &r.Archived, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Recipe{}, ErrNotFound
	}
	if err != nil {
		return Recipe{}, err
	}
	return r, nil
}

// DeleteRecipe removes a recipe; children follow via cascade.
func (s *PostgresStore) DeleteRecipe(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	recipes := pgIdent(s.schema, "recipes")

	_, err := s.pool.Exec(ctx, `DELETE FROM `+recipes+` WHERE id = $1`, id)
	return err
}

// DeleteByProject removes every tag, combination, and recipe of a project.
// Normally the project-level cascade handles this; kept for symmetric use.
func (s *PostgresStore) DeleteByProject(ctx context.Context, projectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, table := range []string{"recipes", "combinations", "tags"} {
		t := pgIdent(s.schema, table)
		if _, err := s.pool.Exec(ctx, `DELETE FROM `+t+` WHERE project_id = $1`, projectID); err != nil {
			return err
		}
	}
	return nil
}

// listPage runs a (created_at DESC, id DESC) limit+1 query with an optional
// cursor predicate appended to the base filter.
func listPage[T any](
	ctx context.Context,
	pool *pgxpool.Pool,
	req pagination.Request,
	baseQuery string,
	projectID string,
	scan func(pgx.Row) (T, error),
	key func(T) (time.Time, string),
) (pagination.Page[T], error) {
	if err := ctx.Err(); err != nil {
		return pagination.Page[T]{}, err
	}

	limit := pagination.ClampLimit(req.Limit)

	var (
		rows pgx.Rows
		err  error
	)
	if req.Cursor == nil {
		rows, err = pool.Query(ctx,
			baseQuery+` ORDER BY created_at DESC, id DESC LIMIT $2`,
			projectID, limit+1)
	} else {
		rows, err = pool.Query(ctx,
			baseQuery+` AND (created_at, id) < ($2, $3) ORDER BY created_at DESC, id DESC LIMIT $4`,
			projectID, req.Cursor.Time, req.Cursor.ID, limit+1)
	}
	if err != nil {
		return pagination.Page[T]{}, err
	}
	defer rows.Close()

	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return pagination.Page[T]{}, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return pagination.Page[T]{}, err
	}

	page := pagination.Page[T]{}
	page.HasMore = len(items) > limit
	if page.HasMore {
		items = items[:limit]
	}
	page.Items = items
	if page.HasMore && len(items) > 0 {
		ts, id := key(items[len(items)-1])
		page.NextCursor = pagination.Cursor{Time: ts, ID: id}.Encode()
	}
	return page, nil
}

func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
