package repository

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/huishype/huishype/internal/domain/model"
)

// Seed is the YAML document accepted by LoadSeedFile.
//
//	users:
//	  - {id: 6f1c..., handle: anna, karma: 12}
//	properties:
//	  - {id: ams-001, address: Damrak 1, woz_value: 400000, asking_price: 450000}
//	guesses:
//	  - {property_id: ams-001, user_id: 6f1c..., price: 430000}
type Seed struct {
	Users      []model.User     `yaml:"users"`
	Properties []model.Property `yaml:"properties"`
	Guesses    []SeedGuess      `yaml:"guesses"`
}

// SeedGuess is one guess in a seed file.
type SeedGuess struct {
	PropertyID string    `yaml:"property_id"`
	UserID     uuid.UUID `yaml:"user_id"`
	Price      float64   `yaml:"price"`
	Meme       bool      `yaml:"meme"`
}

// SeedCounts reports how many records ApplySeed wrote.
type SeedCounts struct {
	Users      int `json:"users"`
	Properties int `json:"properties"`
	Guesses    int `json:"guesses"`
}

// LoadSeedFile parses a seed document from path.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &seed, nil
}

// ApplySeed writes users, then properties, then guesses. It stops at the
// first failure and reports what was written up to that point.
func ApplySeed(ctx context.Context, store Store, seed *Seed) (SeedCounts, error) {
	var counts SeedCounts
	for _, u := range seed.Users {
		if err := store.UpsertUser(ctx, u); err != nil {
			return counts, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
		counts.Users++
	}
	for _, p := range seed.Properties {
		if _, err := store.UpsertProperty(ctx, p); err != nil {
			return counts, fmt.Errorf("seed property %s: %w", p.ID, err)
		}
		counts.Properties++
	}
	for i, g := range seed.Guesses {
		guess := model.Guess{PropertyID: g.PropertyID, UserID: g.UserID, Price: g.Price, Meme: g.Meme}
		if _, err := store.SaveGuess(ctx, guess); err != nil {
			return counts, fmt.Errorf("seed guess #%d on %s: %w", i, g.PropertyID, err)
		}
		counts.Guesses++
	}
	return counts, nil
}
