package models

// Preferences are the user settings the sync and matching engine reads.
type Preferences struct {
	AIEnabled             bool     `json:"ai_enabled"`
	AIMatchingSensitivity float64  `json:"ai_matching_sensitivity"`
	Relays                []string `json:"relays"`
}

// DefaultSensitivity is the embedding similarity threshold used when none is configured.
const DefaultSensitivity = 0.7

// Sensitivity returns the configured threshold or DefaultSensitivity.
func (p Preferences) Sensitivity() float64 {
	if p.AIMatchingSensitivity <= 0 {
		return DefaultSensitivity
	}
	return p.AIMatchingSensitivity
}
