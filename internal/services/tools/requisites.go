package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/propcrm/realty-agent/internal/database"
)

// MsgNoRequisites is returned when a listing documents no requirements
const MsgNoRequisites = "No tengo cargados los requisitos para esta propiedad. Lo mejor es consultarlo directamente con el agente a cargo."

type requisitesArgs struct {
	PropertyID int64 `json:"property_id" validate:"required,gt=0"`
}

func (ts *toolset) getRequisites() Tool {
	params := object([]string{"property_id"}, map[string]any{
		"property_id": prop("integer", "ID de la propiedad."),
	})
	return newTool(GetRequisites,
		"Devuelve los requisitos documentados para alquilar o comprar una propiedad (garantías, documentación, etc).",
		params, ts.runRequisites)
}

func (ts *toolset) runRequisites(ctx context.Context, sess Session, args requisitesArgs) (string, error) {
	p, err := ts.Properties.GetByID(ctx, sess.TenantID, args.PropertyID)
	if errors.Is(err, database.ErrNotFound) {
		return MsgPropertyNotFound, nil
	}
	if err != nil {
		return "", err
	}
	req := strings.TrimSpace(p.TransactionRequirements)
	if req == "" {
		return MsgNoRequisites, nil
	}
	return fmt.Sprintf("Requisitos para %s: %s", p.Title, req), nil
}
