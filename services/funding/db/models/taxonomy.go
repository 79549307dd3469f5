package models

import "gorm.io/gorm"

// Vertical is the internal funding-category taxonomy. The set is seeded from
// the classifier rules; the NASBO importer may add ad-hoc categories.
type Vertical struct {
	gorm.Model

	Name string `json:"name" gorm:"uniqueIndex"`
}

// GrantType classifies the assistance mechanism (grant, cooperative
// agreement, ...) keyed by the regulatory program-number code. Matching is
// by code first, name second.
type GrantType struct {
	gorm.Model

	Code string `json:"code" gorm:"uniqueIndex"`
	Name string `json:"name"`
}
