package model

import "fmt"

// CapacityProfile partitions headcount into the four crowd bands:
// DEAD [0,DeadMax], CHILL [DeadMax,ChillMax], PACKED [ChillMax,PackedMax],
// TOO_PACKED [PackedMax,PeakMax].
type CapacityProfile struct {
	DeadMax   int `json:"dead_max"`
	ChillMax  int `json:"chill_max"`
	PackedMax int `json:"packed_max"`
	PeakMax   int `json:"peak_max"`
}

// NewCapacityProfile returns a validated profile.
func NewCapacityProfile(deadMax, chillMax, packedMax, peakMax int) (*CapacityProfile, error) {
	p := &CapacityProfile{DeadMax: deadMax, ChillMax: chillMax, PackedMax: packedMax, PeakMax: peakMax}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate requires non-negative, strictly increasing thresholds with PeakMax > 0.
func (p *CapacityProfile) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil profile", ErrInvalidCapacityProfile)
	}
	if p.DeadMax < 0 {
		return fmt.Errorf("%w: dead_max must be >= 0", ErrInvalidCapacityProfile)
	}
	if p.PeakMax <= 0 {
		return fmt.Errorf("%w: peak_max must be > 0", ErrInvalidCapacityProfile)
	}
	if p.DeadMax >= p.ChillMax || p.ChillMax >= p.PackedMax || p.PackedMax >= p.PeakMax {
		return fmt.Errorf("%w: thresholds must be strictly increasing (%d, %d, %d, %d)",
			ErrInvalidCapacityProfile, p.DeadMax, p.ChillMax, p.PackedMax, p.PeakMax)
	}
	return nil
}

// Band returns the headcount interval for a crowd level.
func (p *CapacityProfile) Band(level CrowdLevel) (lo, hi int, ok bool) {
	switch level {
	case CrowdDead:
		return 0, p.DeadMax, true
	case CrowdChill:
		return p.DeadMax, p.ChillMax, true
	case CrowdPacked:
		return p.ChillMax, p.PackedMax, true
	case CrowdTooPacked:
		return p.PackedMax, p.PeakMax, true
	}
	return 0, 0, false
}
