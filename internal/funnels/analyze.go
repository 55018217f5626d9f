package funnels

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/karloscodes/cartridge"

	"sitepulse/internal/events"
)

// StepResult is the computed outcome for one funnel step.
type StepResult struct {
	Name           string `json:"name"`
	EventName      string `json:"eventName"`
	Count          int    `json:"count"`
	ConversionRate int    `json:"conversionRate"`
	OverallRate    int    `json:"overallRate"`
}

// Analysis is the full conversion report for a funnel.
type Analysis struct {
	FunnelID            uint         `json:"funnelId"`
	Name                string       `json:"name"`
	Steps               []StepResult `json:"steps"`
	TotalConversionRate int          `json:"totalConversionRate"`
}

// Analyze computes how many distinct visitors completed each step of the
// funnel since the given start time. A visitor counts for step i only if they
// also satisfied every earlier step, which the running set intersection
// guarantees.
func Analyze(dbManager cartridge.DBManager, funnel *Funnel, since time.Time) (*Analysis, error) {
	steps, err := funnel.ParsedSteps()
	if err != nil {
		return nil, err
	}

	analysis := &Analysis{
		FunnelID: funnel.ID,
		Name:     funnel.Name,
		Steps:    make([]StepResult, 0, len(steps)),
	}

	var previousVisitors map[string]struct{}
	firstCount := 0
	previousCount := 0

	for i, step := range steps {
		visitors, err := stepVisitors(dbManager, step, since)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate funnel step %q: %w", step.EventName, err)
		}

		if i > 0 {
			visitors = intersect(visitors, previousVisitors)
		}
		count := len(visitors)

		result := StepResult{
			Name:      step.Name,
			EventName: step.EventName,
			Count:     count,
		}
		if i == 0 {
			firstCount = count
			result.ConversionRate = 100
			if count > 0 {
				result.OverallRate = 100
			}
		} else {
			result.ConversionRate = percent(count, previousCount)
			result.OverallRate = percent(count, firstCount)
		}

		analysis.Steps = append(analysis.Steps, result)
		previousVisitors = visitors
		previousCount = count
	}

	if len(analysis.Steps) > 0 {
		analysis.TotalConversionRate = analysis.Steps[len(analysis.Steps)-1].OverallRate
	}
	return analysis, nil
}

// stepVisitors returns the distinct visitor ids whose events match the step.
// Name, category, and time bounds filter in SQL; property constraints are
// evaluated structurally against the stored JSON payload.
func stepVisitors(dbManager cartridge.DBManager, step Step, since time.Time) (map[string]struct{}, error) {
	query := dbManager.GetConnection().
		Model(&events.CustomEvent{}).
		Select("visitor_id, properties").
		Where("event_name = ? AND timestamp >= ?", step.EventName, since)
	if step.EventCategory != "" {
		query = query.Where("event_category = ?", step.EventCategory)
	}

	var rows []struct {
		VisitorID  string
		Properties string
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	constraints := flatten("", step.Properties)
	visitors := make(map[string]struct{})
	for _, row := range rows {
		if len(constraints) > 0 && !matchesProperties(row.Properties, constraints) {
			continue
		}
		visitors[row.VisitorID] = struct{}{}
	}
	return visitors, nil
}

// flatten turns a nested property map into dotted path -> rendered value
// pairs so {"plan":{"tier":"pro"}} constrains against "plan.tier".
func flatten(prefix string, props map[string]any) map[string]string {
	flat := make(map[string]string)
	for key, value := range props {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(path, nested) {
				flat[k] = v
			}
			continue
		}
		flat[path] = fmt.Sprint(value)
	}
	return flat
}

func matchesProperties(encoded string, constraints map[string]string) bool {
	if encoded == "" {
		return false
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(encoded), &props); err != nil {
		return false
	}
	flat := flatten("", props)
	for path, expected := range constraints {
		if flat[path] != expected {
			return false
		}
	}
	return true
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for visitor := range a {
		if _, ok := b[visitor]; ok {
			out[visitor] = struct{}{}
		}
	}
	return out
}

func percent(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(count) / float64(total)))
}
