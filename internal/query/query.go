// Package query фильтрует и сортирует уже загруженный набор объявлений.
// Функции пакета чистые: без I/O и без изменения входного среза.
package query

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rajivgeraev/recyclables-api/internal/models"
)

// SortBy порядок выдачи
type SortBy string

const (
	SortNewest    SortBy = "newest"
	SortOldest    SortBy = "oldest"
	SortPriceLow  SortBy = "price_low"
	SortPriceHigh SortBy = "price_high"
	SortQuantity  SortBy = "quantity"
)

// Filter параметры выдачи; пустые поля не фильтруют
type Filter struct {
	SearchTerm string
	Category   models.RecyclableCategory
	Status     models.RecyclableStatus
	SortBy     SortBy
}

// ParseFilter собирает фильтр из query-параметров; get возвращает "" для отсутствующих.
// Значение "all" в category и status означает отсутствие фильтра.
// Поисковая строка не обрезается: пробелы в ней тоже ищутся.
func ParseFilter(get func(key string) string) Filter {
	f := Filter{
		SearchTerm: get("search"),
		Category:   models.RecyclableCategory(get("category")),
		Status:     models.RecyclableStatus(get("status")),
		SortBy:     SortBy(get("sort")),
	}
	if f.Category == "all" {
		f.Category = ""
	}
	if f.Status == "all" {
		f.Status = ""
	}
	return f
}

// Apply возвращает новый срез: поиск, фильтры категории и статуса, затем сортировка.
// Сортировка стабильная: при равных ключах сохраняется порядок входа.
func Apply(listings []models.Recyclable, f Filter) []models.Recyclable {
	term := strings.ToLower(f.SearchTerm)

	out := make([]models.Recyclable, 0, len(listings))
	for _, r := range listings {
		if !Matches(r, term) {
			continue
		}
		if f.Category != "" && r.Category != f.Category {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}

	slices.SortStableFunc(out, comparator(f.SortBy))
	return out
}

// Matches проверяет поиск без учета регистра по названию, описанию, категории и размеру.
// term должен быть уже в нижнем регистре; пустой term подходит всем.
func Matches(r models.Recyclable, term string) bool {
	if term == "" {
		return true
	}
	for _, field := range []string{r.Title, r.Description, string(r.Category), string(r.BottleSize)} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// comparator для неизвестного значения возвращает newest
func comparator(sortBy SortBy) func(a, b models.Recyclable) int {
	switch sortBy {
	case SortOldest:
		return func(a, b models.Recyclable) int { return a.CreatedAt.Compare(b.CreatedAt) }
	case SortPriceLow:
		return func(a, b models.Recyclable) int { return a.PricePerUnit.Cmp(b.PricePerUnit) }
	case SortPriceHigh:
		return func(a, b models.Recyclable) int { return b.PricePerUnit.Cmp(a.PricePerUnit) }
	case SortQuantity:
		return func(a, b models.Recyclable) int { return b.Quantity - a.Quantity }
	default:
		return func(a, b models.Recyclable) int { return b.CreatedAt.Compare(a.CreatedAt) }
	}
}

// Statistics сводка по набору объявлений
type Statistics struct {
	Total          int             `json:"total"`
	Available      int             `json:"available"`
	AvailableValue decimal.Decimal `json:"available_value"`
}

// Stats пересчитывает сводку из набора; нигде не сохраняется
func Stats(listings []models.Recyclable) Statistics {
	st := Statistics{Total: len(listings), AvailableValue: decimal.Zero}
	for _, r := range listings {
		if r.Status != models.StatusAvailable {
			continue
		}
		st.Available++
		st.AvailableValue = st.AvailableValue.Add(r.EffectiveTotal())
	}
	st.AvailableValue = st.AvailableValue.Round(models.MoneyPrecision)
	return st
}
