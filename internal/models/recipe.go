package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Recipe is the structured answer shape the assistant is instructed to emit
// when the caller asks for a recipe rather than free text.
type Recipe struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Nutrition   Nutrition    `json:"nutrition"`
	Servings    float64      `json:"servings"`
	Time        RecipeTime   `json:"time"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []string     `json:"steps"`
}

// Nutrition values are strings with units, e.g. "520 kcal".
type Nutrition struct {
	Calories string `json:"calories"`
	Protein  string `json:"protein"`
	Fat      string `json:"fat"`
}

type RecipeTime struct {
	Prep  string `json:"prep"`
	Cook  string `json:"cook"`
	Total string `json:"total"`
}

type Ingredient struct {
	Item     string `json:"item"`
	Quantity string `json:"quantity"`
}

// ParseRecipe strictly decodes raw provider output as a Recipe. Payloads
// with surrounding markup, unknown fields, trailing content, or missing
// required fields are rejected, never coerced.
func ParseRecipe(raw string) (*Recipe, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()

	var r Recipe
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	// A second token means content after the object.
	if dec.More() {
		return nil, errors.New("decode recipe: trailing content after object")
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Recipe) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("recipe: title is required")
	}
	if len(r.Ingredients) == 0 {
		return errors.New("recipe: ingredients are required")
	}
	for i, ing := range r.Ingredients {
		if strings.TrimSpace(ing.Item) == "" {
			return fmt.Errorf("recipe: ingredient %d has no item", i)
		}
	}
	if len(r.Steps) == 0 {
		return errors.New("recipe: steps are required")
	}
	return nil
}
