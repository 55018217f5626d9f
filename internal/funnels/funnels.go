// Package funnels stores funnel definitions and computes conversion analyses
// over custom event facts.
package funnels

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

var (
	// ErrMissingName is returned when a funnel is created without a name.
	ErrMissingName = errors.New("funnel name is required")
	// ErrTooFewSteps is returned when a funnel has fewer than two steps.
	ErrTooFewSteps = errors.New("funnel requires at least 2 steps")
)

// MinSteps is the smallest funnel that can be created.
const MinSteps = 2

// Funnel is a stored funnel definition. Steps holds the ordered step list as
// JSON text.
type Funnel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Steps     string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Step is one stage of a funnel. EventCategory and Properties narrow the
// match beyond the event name.
type Step struct {
	Name          string         `json:"name"`
	EventName     string         `json:"eventName"`
	EventCategory string         `json:"eventCategory,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
}

// ParsedSteps decodes the stored step list.
func (f *Funnel) ParsedSteps() ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal([]byte(f.Steps), &steps); err != nil {
		return nil, fmt.Errorf("failed to decode funnel steps: %w", err)
	}
	return steps, nil
}

// Create validates and persists a funnel definition.
func Create(dbManager cartridge.DBManager, logger *slog.Logger, name string, steps []Step) (*Funnel, error) {
	if name == "" {
		return nil, ErrMissingName
	}
	if len(steps) < MinSteps {
		return nil, ErrTooFewSteps
	}
	for i, step := range steps {
		if step.EventName == "" {
			return nil, fmt.Errorf("%w: step %d has no event name", ErrTooFewSteps, i)
		}
	}

	encoded, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode funnel steps: %w", err)
	}

	funnel := Funnel{Name: name, Steps: string(encoded)}
	err = sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Create(&funnel).Error
	})
	if err != nil {
		return nil, err
	}
	return &funnel, nil
}

// List returns all funnel definitions, newest first.
func List(dbManager cartridge.DBManager) ([]Funnel, error) {
	funnels := []Funnel{}
	err := dbManager.GetConnection().Order("created_at DESC").Find(&funnels).Error
	return funnels, err
}

// FindByID loads one funnel definition.
func FindByID(dbManager cartridge.DBManager, id uint) (*Funnel, error) {
	var funnel Funnel
	if err := dbManager.GetConnection().First(&funnel, id).Error; err != nil {
		return nil, err
	}
	return &funnel, nil
}

// Delete removes a funnel definition. Facts are untouched.
func Delete(dbManager cartridge.DBManager, logger *slog.Logger, id uint) error {
	return sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Delete(&Funnel{}, id).Error
	})
}
