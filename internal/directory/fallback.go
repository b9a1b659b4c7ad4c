package directory

import (
	"strings"

	"bairro/internal/models"
)

// FallbackCategories is the built-in category set served when the remote
// API is unreachable, nothing usable is cached, and the fallback policy
// allows degraded answers.
func FallbackCategories() []models.Category {
	return []models.Category{
		{ID: "restaurantes", Name: "Restaurantes", Icon: "🍽️"},
		{ID: "mercados", Name: "Mercados", Icon: "🛒"},
		{ID: "farmacias", Name: "Farmácias", Icon: "💊"},
		{ID: "servicos", Name: "Serviços", Icon: "🔧"},
		{ID: "lazer", Name: "Lazer", Icon: "🎮"},
		{ID: "saude", Name: "Saúde", Icon: "🏥"},
		{ID: "educacao", Name: "Educação", Icon: "📚"},
		{ID: "beleza", Name: "Beleza", Icon: "💇"},
	}
}

func filterBusinesses(businesses []models.Business, filter models.BusinessFilter) []models.Business {
	out := make([]models.Business, 0, len(businesses))
	for _, b := range businesses {
		if filter.Category != "" && !strings.EqualFold(b.Category, filter.Category) {
			continue
		}
		if filter.Subcategory != "" && !strings.EqualFold(b.Subcategory, filter.Subcategory) {
			continue
		}
		if filter.Search != "" && !matchesSearch(&b, filter.Search) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func matchesSearch(b *models.Business, q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(b.Name), q) ||
		strings.Contains(strings.ToLower(b.Description), q) ||
		strings.Contains(strings.ToLower(b.Category), q)
}
