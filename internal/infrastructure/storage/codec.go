package storage

import (
	"encoding/json"
	"fmt"

	"github.com/vitos/stake_leveling/internal/domain"
)

// encodeLevelEntries renders level -> stake as a JSON object keyed by level, e.g. {"1":6,"2":9}.
func encodeLevelEntries(entries map[int]float64) (string, error) {
	if entries == nil {
		entries = map[int]float64{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("encode level entries: %w", err)
	}
	return string(b), nil
}

func decodeLevelEntries(raw string) (map[int]float64, error) {
	entries := make(map[int]float64)
	if raw == "" {
		return entries, nil
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("decode level entries: %w", err)
	}
	for lvl, stake := range entries {
		if lvl < 1 {
			return nil, fmt.Errorf("decode level entries: invalid level %d", lvl)
		}
		entries[lvl] = domain.RoundCurrency(stake)
	}
	return entries, nil
}
