package query

import (
	"context"
	"fmt"
)

// AchievementDTO is a public catalog entry.
type AchievementDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Criteria    string `json:"criteria"` // e.g. "streak_days>=7"
	Kind        string `json:"criteria_type"`
	Threshold   int    `json:"threshold"`
}

// ListAchievementsHandler returns the achievement catalog.
type ListAchievementsHandler struct {
	catalog CatalogSource
}

// NewListAchievementsHandler creates a new ListAchievementsHandler.
func NewListAchievementsHandler(catalog CatalogSource) *ListAchievementsHandler {
	return &ListAchievementsHandler{catalog: catalog}
}

// Handle executes the query.
func (h *ListAchievementsHandler) Handle(ctx context.Context) ([]AchievementDTO, error) {
	items, err := h.catalog.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_achievements: %w", err)
	}
	out := make([]AchievementDTO, 0, len(items))
	for _, a := range items {
		out = append(out, AchievementDTO{
			ID:          a.ID,
			Code:        a.Code,
			Name:        a.Name,
			Description: a.Description,
			Icon:        a.Icon,
			Criteria:    a.Criteria.String(),
			Kind:        string(a.Criteria.Kind),
			Threshold:   a.Criteria.Threshold,
		})
	}
	return out, nil
}
