package semantic

import (
	"strings"

	"github.com/propcrm/realty-agent/internal/models"
)

// Filters are the hard constraints applied before ranking
type Filters struct {
	Operation string
	Type      string
	BudgetMax *float64
	Zone      string
	MinRooms  *int
}

var operationSynonyms = map[string]models.Operation{
	"sale":     models.OperationSale,
	"venta":    models.OperationSale,
	"comprar":  models.OperationSale,
	"compra":   models.OperationSale,
	"buy":      models.OperationSale,
	"rent":     models.OperationRent,
	"alquiler": models.OperationRent,
	"alquilar": models.OperationRent,
	"renta":    models.OperationRent,
}

var typeSynonyms = map[string]string{
	"house":        "House",
	"casa":         "House",
	"apartment":    "Apartment",
	"depto":        "Apartment",
	"departamento": "Apartment",
	"dpto":         "Apartment",
	"ph":           "PH",
	"land":         "Land",
	"terreno":      "Land",
	"lote":         "Land",
}

// NormalizeOperation maps Spanish and English wording to a stored operation.
// Unknown values pass through unchanged.
func NormalizeOperation(s string) models.Operation {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return ""
	}
	if op, ok := operationSynonyms[key]; ok {
		return op
	}
	return models.Operation(strings.TrimSpace(s))
}

// NormalizeType maps Spanish and English wording to a stored property type
func NormalizeType(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return ""
	}
	if t, ok := typeSynonyms[key]; ok {
		return t
	}
	return strings.TrimSpace(s)
}
