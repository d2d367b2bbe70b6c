package semantic

import (
	"fmt"
	"strings"

	"github.com/propcrm/realty-agent/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Unspecified stands in for every absent field so context strings keep a stable shape
const Unspecified = "unspecified"

var pricePrinter = message.NewPrinter(language.Spanish)

// FormatPrice renders "<currency> <amount>" with local digit grouping
func FormatPrice(price *float64, currency string) string {
	if price == nil || *price <= 0 {
		return Unspecified
	}
	return or(currency, "USD") + " " + pricePrinter.Sprint(number.Decimal(*price, number.MaxFractionDigits(0)))
}

// PropertyContext synthesizes the text a property is embedded from
func PropertyContext(p *models.Property) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Property in %s.", or(p.Neighborhood, or(p.City, Unspecified)))
	fmt.Fprintf(&b, " Address: %s.", or(p.Address, Unspecified))
	fmt.Fprintf(&b, " Operation: %s.", or(string(p.Operation), Unspecified))
	fmt.Fprintf(&b, " Type: %s.", or(p.Type, Unspecified))
	fmt.Fprintf(&b, " Rooms: %s. Bedrooms: %s.", intOr(p.Rooms), intOr(p.Bedrooms))
	fmt.Fprintf(&b, " Price: %s.", FormatPrice(p.Price, p.Currency))
	fmt.Fprintf(&b, " Description: %s.", or(strings.TrimSpace(p.Description), Unspecified))
	fmt.Fprintf(&b, " Features: %s.", listOr(p.Attributes))
	return b.String()
}

// DevelopmentContext synthesizes the text a development is embedded from
func DevelopmentContext(d *models.Development) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Development %s in %s.", or(d.Name, Unspecified), or(d.Address, Unspecified))
	fmt.Fprintf(&b, " Status: %s.", developmentStatus(d.Status))
	fmt.Fprintf(&b, " Typologies: %s.", listOr(d.Typologies))
	fmt.Fprintf(&b, " Amenities: %s.", listOr(d.Amenities))
	fmt.Fprintf(&b, " Description: %s.", or(strings.TrimSpace(d.Description), Unspecified))
	return b.String()
}

// LeadContext synthesizes the text a lead's preference vector is embedded from
func LeadContext(c *models.Contact) string {
	var b strings.Builder
	b.WriteString("Lead looking for property.")
	fmt.Fprintf(&b, " Type: %s.", or(c.Type, Unspecified))
	fmt.Fprintf(&b, " Preferences: %s.", or(strings.TrimSpace(c.Notes), Unspecified))
	return b.String()
}

func developmentStatus(s string) string {
	switch s {
	case "CONSTRUCTION":
		return "under construction"
	case "PRE_SALE":
		return "pre-sale"
	case "DELIVERED":
		return "delivered"
	case "":
		return Unspecified
	default:
		return s
	}
}

func or(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func intOr(v *int) string {
	if v == nil {
		return Unspecified
	}
	return fmt.Sprintf("%d", *v)
}

func listOr(items []string) string {
	var kept []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return Unspecified
	}
	return strings.Join(kept, ", ")
}
