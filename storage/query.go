package storage

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"auction-importer/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxPage keeps Offset from overflowing at the largest page size.
	MaxPage = math.MaxInt32 / MaxPageSize
)

// sortColumns whitelists the sortable fields.
var sortColumns = map[string]string{
	"end_date":    "end_date",
	"start_price": "start_price",
	"year":        "year",
	"created_at":  "created_at",
}

// ListQuery filters, sorts and paginates the catalog. Zero values mean
// "no filter".
type ListQuery struct {
	Make         string
	Model        string
	Fuel         string
	Transmission string
	Location     string
	Status       string
	Search       string
	MinPrice     float64
	MaxPrice     float64
	MinYear      int
	MaxYear      int
	SortBy       string
	Desc         bool
	Page         int
	PageSize     int
}

// ListResult is one page of the catalog.
type ListResult struct {
	Items    []models.AuctionCar `json:"items"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// Normalized clamps paging and fills in the default sort.
func (q ListQuery) Normalized() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if _, ok := sortColumns[q.SortBy]; !ok {
		q.SortBy = "end_date"
	}
	return q
}

// Offset is the number of rows before the current page.
func (q ListQuery) Offset() int { return (q.Page - 1) * q.PageSize }

// ParseListQuery reads a ListQuery from URL parameters.
func ParseListQuery(v url.Values) (ListQuery, error) {
	q := ListQuery{
		Make:         v.Get("make"),
		Model:        v.Get("model"),
		Fuel:         v.Get("fuel"),
		Transmission: v.Get("transmission"),
		Location:     v.Get("location"),
		Status:       v.Get("status"),
		Search:       v.Get("q"),
		SortBy:       v.Get("sort"),
		Desc:         strings.EqualFold(v.Get("order"), "desc"),
	}

	var err error
	floats := []struct {
		key string
		dst *float64
	}{{"min_price", &q.MinPrice}, {"max_price", &q.MaxPrice}}
	for _, f := range floats {
		if s := v.Get(f.key); s != "" {
			if *f.dst, err = strconv.ParseFloat(s, 64); err != nil {
				return ListQuery{}, fmt.Errorf("storage: %s: %w", f.key, err)
			}
		}
	}
	ints := []struct {
		key string
		dst *int
	}{{"min_year", &q.MinYear}, {"max_year", &q.MaxYear}, {"page", &q.Page}, {"page_size", &q.PageSize}}
	for _, i := range ints {
		if s := v.Get(i.key); s != "" {
			if *i.dst, err = strconv.Atoi(s); err != nil {
				return ListQuery{}, fmt.Errorf("storage: %s: %w", i.key, err)
			}
		}
	}
	if q.SortBy != "" {
		if _, ok := sortColumns[q.SortBy]; !ok {
			return ListQuery{}, fmt.Errorf("storage: cannot sort by %q", q.SortBy)
		}
	}
	return q.Normalized(), nil
}

// whereSQL renders the filters as a Postgres WHERE clause with $n
// placeholders starting at 1.
func (q ListQuery) whereSQL() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	textFilters := []struct{ col, val string }{
		{"make", q.Make}, {"model", q.Model}, {"fuel_type", q.Fuel},
		{"transmission", q.Transmission}, {"location", q.Location}, {"status", q.Status},
	}
	for _, f := range textFilters {
		if f.val != "" {
			add("LOWER("+f.col+") = LOWER(?)", f.val)
		}
	}
	if q.Search != "" {
		add("title ILIKE '%' || ? || '%'", q.Search)
	}
	if q.MinPrice > 0 {
		add("start_price >= ?", q.MinPrice)
	}
	if q.MaxPrice > 0 {
		add("start_price <= ?", q.MaxPrice)
	}
	if q.MinYear > 0 {
		add("year >= ?", q.MinYear)
	}
	if q.MaxYear > 0 {
		add("year <= ?", q.MaxYear)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderSQL renders ORDER BY with id as tiebreaker. q must be normalized.
func (q ListQuery) orderSQL() string {
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumns[q.SortBy], dir, dir)
}

// Matches applies the filters to one car in memory.
func (q ListQuery) Matches(c models.AuctionCar) bool {
	eq := func(want, got string) bool { return want == "" || strings.EqualFold(want, got) }
	switch {
	case !eq(q.Make, c.Make), !eq(q.Model, c.Model), !eq(q.Fuel, c.FuelType),
		!eq(q.Transmission, c.Transmission), !eq(q.Location, c.Location), !eq(q.Status, c.Status):
		return false
	case q.Search != "" && !strings.Contains(strings.ToLower(c.Title), strings.ToLower(q.Search)):
		return false
	case q.MinPrice > 0 && c.StartPrice < q.MinPrice:
		return false
	case q.MaxPrice > 0 && c.StartPrice > q.MaxPrice:
		return false
	case q.MinYear > 0 && c.Year < q.MinYear:
		return false
	case q.MaxYear > 0 && c.Year > q.MaxYear:
		return false
	}
	return true
}

// Apply filters, sorts and paginates cars in memory, for backends without a
// query language.
func (q ListQuery) Apply(cars []models.AuctionCar) ListResult {
	q = q.Normalized()
	var matched []models.AuctionCar
	for _, c := range cars {
		if q.Matches(c) {
			matched = append(matched, c)
		}
	}

	slices.SortStableFunc(matched, func(a, b models.AuctionCar) int {
		c := compareBy(q.SortBy, a, b)
		if c == 0 {
			c = cmpInt64(a.ID, b.ID)
		}
		if q.Desc {
			return -c
		}
		return c
	})

	res := ListResult{Items: []models.AuctionCar{}, Total: len(matched), Page: q.Page, PageSize: q.PageSize}
	if off := q.Offset(); off >= 0 && off < len(matched) {
		res.Items = append(res.Items, matched[off:min(off+q.PageSize, len(matched))]...)
	}
	return res
}

func compareBy(field string, a, b models.AuctionCar) int {
	switch field {
	case "start_price":
		switch {
		case a.StartPrice < b.StartPrice:
			return -1
		case a.StartPrice > b.StartPrice:
			return 1
		}
		return 0
	case "year":
		return cmpInt64(int64(a.Year), int64(b.Year))
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return a.EndDate.Compare(b.EndDate)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
