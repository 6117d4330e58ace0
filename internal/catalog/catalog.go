// Package catalog serves the data-dictionary metadata the comment threads
// hang off: models, their explores, and each explore's fields.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Model is a named data model grouping one or more explores.
type Model struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Explores []string `json:"explores"`
}

// Explore is a named, queryable view over a model.
type Explore struct {
	ModelName   string  `json:"modelName"`
	Name        string  `json:"name"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Fields      []Field `json:"fields"`
}

// Field is a dimension or measure of an explore that can carry its own
// comment thread, keyed by its fully qualified name.
type Field struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Category    string `json:"category"` // dimension or measure
	Description string `json:"description,omitempty"`
}

// PostgresCatalog reads dictionary metadata from the models, explores, and
// fields tables.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) ListModels(ctx context.Context) ([]Model, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT m.name, m.label, COALESCE(e.name, '')
		FROM models m
		LEFT JOIN explores e ON e.model_name = m.name
		ORDER BY m.name, e.name
	`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	models := []Model{}
	index := map[string]int{}
	for rows.Next() {
		var name, label, explore string
		if err := rows.Scan(&name, &label, &explore); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		i, ok := index[name]
		if !ok {
			i = len(models)
			index[name] = i
			models = append(models, Model{Name: name, Label: label, Explores: []string{}})
		}
		if explore != "" {
			models[i].Explores = append(models[i].Explores, explore)
		}
	}
	return models, rows.Err()
}

func (c *PostgresCatalog) GetExplore(ctx context.Context, modelName, exploreName string) (Explore, error) {
	var explore Explore
	err := c.db.QueryRowContext(ctx, `
		SELECT model_name, name, label, COALESCE(description, '')
		FROM explores WHERE model_name=$1 AND name=$2
	`, modelName, exploreName).Scan(&explore.ModelName, &explore.Name, &explore.Label, &explore.Description)
	if err != nil {
		if err == sql.ErrNoRows {
			return Explore{}, err
		}
		return Explore{}, fmt.Errorf("lookup explore %s/%s: %w", modelName, exploreName, err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT name, label, type, category, COALESCE(description, '')
		FROM fields WHERE model_name=$1 AND explore_name=$2
		ORDER BY category, name
	`, modelName, exploreName)
	if err != nil {
		return Explore{}, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	explore.Fields = []Field{}
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.Name, &f.Label, &f.Type, &f.Category, &f.Description); err != nil {
			return Explore{}, fmt.Errorf("scan field: %w", err)
		}
		explore.Fields = append(explore.Fields, f)
	}
	return explore, rows.Err()
}
