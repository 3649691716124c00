package dao

import (
	"sentra/internal/models"
)

// Set-valued fields unioned on merge instead of overwritten.
var setValuedFields = map[string]bool{
	"tags":      true,
	"hostnames": true,
	"sans":      true,
}

// mergeEntities folds incoming into existing following the store's merge
// rules:
//
//  1. higher confidence wins scalar fields
//  2. newer updated_at wins mutable status
//  3. set-valued fields are unioned
//
// updated_at stays monotonic per entity; created_at keeps the earliest
// observation.
func mergeEntities(existing, incoming *models.Entity) (*models.Entity, error) {
	existingData, err := existing.DataMap()
	if err != nil {
		return nil, err
	}
	incomingData, err := incoming.DataMap()
	if err != nil {
		return nil, err
	}

	incomingWins := incoming.Confidence > existing.Confidence ||
		(incoming.Confidence == existing.Confidence && incoming.UpdatedAt >= existing.UpdatedAt)

	merged := *existing

	for key, value := range incomingData {
		if setValuedFields[key] {
			existingData[key] = unionValues(existingData[key], value)
			continue
		}
		if _, present := existingData[key]; !present || incomingWins {
			existingData[key] = value
		}
	}
	if err := merged.SetData(existingData); err != nil {
		return nil, err
	}

	if incomingWins {
		merged.Confidence = maxFloat(existing.Confidence, incoming.Confidence)
	}
	if incoming.UpdatedAt >= existing.UpdatedAt && incoming.Status != "" {
		merged.Status = incoming.Status
	}
	if incoming.UpdatedAt > merged.UpdatedAt {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	if incoming.CreatedAt > 0 && incoming.CreatedAt < merged.CreatedAt {
		merged.CreatedAt = incoming.CreatedAt
	}
	if merged.DiscoveredBy == "" {
		merged.DiscoveredBy = incoming.DiscoveredBy
	}

	return &merged, nil
}

// unionValues merges two JSON array values, preserving first-seen order.
func unionValues(a, b interface{}) interface{} {
	seen := make(map[string]bool)
	var out []interface{}

	for _, list := range []interface{}{a, b} {
		items, ok := list.([]interface{})
		if !ok {
			if s, isString := list.(string); isString && s != "" {
				items = []interface{}{s}
			} else {
				continue
			}
		}
		for _, item := range items {
			key, ok := item.(string)
			if !ok {
				continue
			}
			if !seen[key] {
				seen[key] = true
				out = append(out, item)
			}
		}
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
