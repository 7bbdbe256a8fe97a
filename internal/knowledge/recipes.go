package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/zulandar/gepeto/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NoRecipeResult is returned when no stored recipe matches the query.
const NoRecipeResult = "No recipes found for that query."

const defaultRecipeLimit = 3

// RecipeSearch looks up crafting recipes by item name in the recipes table.
type RecipeSearch struct {
	db    *gorm.DB
	limit int
}

// RecipeOpts holds parameters for creating a RecipeSearch.
type RecipeOpts struct {
	DB    *gorm.DB
	Limit int // max items returned, default 3
}

// NewRecipeSearch creates a RecipeSearch.
func NewRecipeSearch(opts RecipeOpts) (*RecipeSearch, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("knowledge: recipes: db is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultRecipeLimit
	}
	return &RecipeSearch{db: opts.DB, limit: opts.Limit}, nil
}

func (r *RecipeSearch) ID() ToolID { return RecipeSearchTool }

func (r *RecipeSearch) Description() string {
	return "Crafting recipe lookup. Input the item name to craft, for example oak_planks or stone pickaxe."
}

func (r *RecipeSearch) Run(ctx context.Context, in Input) (string, error) {
	if !in.HasQuery() {
		return "", fmt.Errorf("query is required")
	}
	term := ItemName(in.Query)
	if term == "" {
		return NoRecipeResult, nil
	}

	var recipes []models.Recipe
	err := r.db.WithContext(ctx).
		Where("name LIKE ?", "%"+term+"%").
		Order("LENGTH(name)").Order("name").
		Limit(r.limit).
		Find(&recipes).Error
	if err != nil {
		return "", fmt.Errorf("query recipes: %w", err)
	}
	if len(recipes) == 0 {
		return NoRecipeResult, nil
	}

	parts := make([]string, len(recipes))
	for i, rec := range recipes {
		parts[i] = rec.Name + ": " + rec.Body
	}
	return strings.Join(parts, "\n\n"), nil
}

// ItemName converts free text to the game's item naming ("Oak Planks" ->
// "oak_planks").
func ItemName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}

// ImportRecipes loads a transformed recipe file, an object mapping item name
// to its recipe list, and upserts one row per item. It returns the number of
// items written.
func ImportRecipes(ctx context.Context, db *gorm.DB, r io.Reader) (int, error) {
	var raw map[string][]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return 0, fmt.Errorf("knowledge: import recipes: decode: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]models.Recipe, 0, len(names))
	for _, name := range names {
		body, err := json.Marshal(raw[name])
		if err != nil {
			return 0, fmt.Errorf("knowledge: import recipes: encode %s: %w", name, err)
		}
		rows = append(rows, models.Recipe{Name: ItemName(name), Body: string(body)})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).CreateInBatches(&rows, 200).Error
	if err != nil {
		return 0, fmt.Errorf("knowledge: import recipes: %w", err)
	}
	return len(rows), nil
}
