package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/propcrm/realty-agent/internal/services/semantic"
)

// MaxSearchResults caps how many listings one search returns
const MaxSearchResults = 6

const msgNoListings = "No encontré propiedades disponibles con esos criterios."

type searchArgs struct {
	Operation     string   `json:"operation,omitempty" validate:"max=32"`
	PropertyType  string   `json:"property_type,omitempty" validate:"max=32"`
	BudgetMax     *float64 `json:"budget_max,omitempty" validate:"omitempty,gt=0"`
	Zone          string   `json:"zone,omitempty" validate:"max=100"`
	Rooms         *int     `json:"rooms,omitempty" validate:"omitempty,min=1,max=20"`
	SemanticQuery string   `json:"semantic_query,omitempty" validate:"max=500"`
}

// ListingSummary is the compact shape the model narrates
type ListingSummary struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Price      string   `json:"price"`
	Zone       string   `json:"zone"`
	Rooms      *int     `json:"rooms,omitempty"`
	Code       string   `json:"code,omitempty"`
	Agent      string   `json:"agent"`
	AgentPhone string   `json:"agent_phone,omitempty"`
	MapsLink   string   `json:"maps_link,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

func (ts *toolset) searchListings() Tool {
	params := object(nil, map[string]any{
		"operation":      prop("string", "Operación: venta (Sale) o alquiler (Rent)."),
		"property_type":  prop("string", "Tipo: casa (House), departamento (Apartment), PH, terreno (Land)."),
		"budget_max":     prop("number", "Presupuesto máximo."),
		"zone":           prop("string", "Barrio, ciudad o zona de interés."),
		"rooms":          prop("integer", "Cantidad mínima de ambientes."),
		"semantic_query": prop("string", "Descripción libre de lo que busca el cliente, para ordenar por afinidad."),
	})
	return newTool(SearchListings,
		"Busca propiedades activas de la inmobiliaria según los criterios del cliente.",
		params, ts.runSearch)
}

func (ts *toolset) runSearch(ctx context.Context, sess Session, args searchArgs) (string, error) {
	hits, err := ts.Search.SearchProperties(ctx, sess.TenantID, strings.TrimSpace(args.SemanticQuery), semantic.Filters{
		Operation: args.Operation,
		Type:      args.PropertyType,
		BudgetMax: args.BudgetMax,
		Zone:      strings.TrimSpace(args.Zone),
		MinRooms:  args.Rooms,
	}, MaxSearchResults)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return msgNoListings, nil
	}
	if len(hits) > MaxSearchResults {
		hits = hits[:MaxSearchResults]
	}

	out := make([]ListingSummary, 0, len(hits))
	for _, h := range hits {
		p := h.Property
		s := ListingSummary{
			ID:         p.ID,
			Title:      p.Title,
			Price:      "Consultar",
			Zone:       p.Zone(),
			Rooms:      p.Rooms,
			Code:       p.Code,
			Agent:      "Oficina",
			AgentPhone: p.AgentPhone,
			Score:      h.Score,
		}
		if p.Price != nil && *p.Price > 0 {
			s.Price = semantic.FormatPrice(p.Price, p.Currency)
		}
		if p.AgentName != "" {
			s.Agent = p.AgentName
		}
		if p.Lat != nil && p.Lng != nil {
			s.MapsLink = fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%g,%g", *p.Lat, *p.Lng)
		}
		out = append(out, s)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode listings: %w", err)
	}
	return string(raw), nil
}
