package telemetry

import (
	"log/slog"
	"strings"
	"unicode"

	"skyroute/internal/models"
)

// DefaultCargoOperators are ICAO airline designators of freight operators
var DefaultCargoOperators = []string{
	"FDX", // FedEx
	"UPS", // UPS Airlines
	"GTI", // Atlas Air
	"CLX", // Cargolux
	"ABX", // ABX Air
	"DHK", // DHL Air UK
	"BCS", // European Air Transport
	"CKS", // Kalitta Air
	"MXY", // MasAir
	"LCO", // LATAM Cargo Chile
	"AJT", // Amerijet
}

// RegistryLookup resolves an ICAO address against the aircraft registry
type RegistryLookup interface {
	Lookup(icao24 string) (*models.RegistryEntry, error)
}

// Classifier assigns a Category to live aircraft
type Classifier struct {
	registry RegistryLookup
	cargo    map[string]bool
}

// NewClassifier creates a classifier. registry may be nil.
func NewClassifier(registry RegistryLookup, cargoOperators []string) *Classifier {
	if len(cargoOperators) == 0 {
		cargoOperators = DefaultCargoOperators
	}
	cargo := make(map[string]bool, len(cargoOperators))
	for _, op := range cargoOperators {
		cargo[strings.ToUpper(strings.TrimSpace(op))] = true
	}
	return &Classifier{registry: registry, cargo: cargo}
}

// Classify returns the category for an aircraft given its ICAO address and callsign
func (c *Classifier) Classify(icao24, callsign string) models.Category {
	if c.registry != nil && icao24 != "" {
		entry, err := c.registry.Lookup(strings.ToLower(icao24))
		if err != nil {
			slog.Debug("Registry lookup failed", "icao24", icao24, "error", err)
		} else if entry != nil {
			if cat := c.fromRegistry(entry); cat != models.CategoryUnknown {
				return cat
			}
		}
	}
	return c.fromCallsign(callsign)
}

func (c *Classifier) fromRegistry(entry *models.RegistryEntry) models.Category {
	if c.cargo[strings.ToUpper(entry.OperatorICAO)] {
		return models.CategoryCargo
	}
	desc := strings.ToLower(entry.CategoryDescription + " " + entry.Operator)
	if strings.Contains(desc, "cargo") || strings.Contains(desc, "freight") {
		return models.CategoryCargo
	}
	if entry.OperatorICAO != "" {
		return models.CategoryPassenger
	}
	return models.CategoryUnknown
}

// fromCallsign treats a three letter airline designator followed by a flight number as
// scheduled traffic; anything else (registrations, blanks) is unknown
func (c *Classifier) fromCallsign(callsign string) models.Category {
	cs := strings.ToUpper(strings.TrimSpace(callsign))
	if len(cs) < 4 {
		return models.CategoryUnknown
	}

	prefix := cs[:3]
	for _, r := range prefix {
		if !unicode.IsLetter(r) {
			return models.CategoryUnknown
		}
	}
	if !unicode.IsDigit(rune(cs[3])) {
		return models.CategoryUnknown
	}

	if c.cargo[prefix] {
		return models.CategoryCargo
	}
	return models.CategoryPassenger
}
