package storage

import (
	"math"
	"net/url"
	"strings"
	"testing"
	"time"

	"auction-importer/models"
)

func catalogFixture() []models.AuctionCar {
	end := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	return []models.AuctionCar{
		{ID: 1, Title: "BMW 320d Touring", Make: "BMW", FuelType: "Diesel", StartPrice: 15000, Year: 2018, EndDate: end.Add(3 * time.Hour), Location: "NL", Status: "active"},
		{ID: 2, Title: "Audi A4", Make: "Audi", FuelType: "Petrol", StartPrice: 9000, Year: 2016, EndDate: end.Add(1 * time.Hour), Location: "DE", Status: "active"},
		{ID: 3, Title: "BMW X5", Make: "bmw", FuelType: "Diesel", StartPrice: 32000, Year: 2020, EndDate: end.Add(2 * time.Hour), Location: "NL", Status: "active"},
		{ID: 4, Title: "Fiat 500", Make: "Fiat", FuelType: "Petrol", StartPrice: 4000, Year: 2012, EndDate: end.Add(5 * time.Hour), Location: "IT", Status: "active"},
	}
}

func ids(cars []models.AuctionCar) []int64 {
	out := make([]int64, len(cars))
	for i, c := range cars {
		out[i] = c.ID
	}
	return out
}

func TestListQueryApply(t *testing.T) {
	tests := []struct {
		name  string
		q     ListQuery
		want  []int64
		total int
	}{
		{"default sort by end date", ListQuery{}, []int64{2, 3, 1, 4}, 4},
		{"make is case-insensitive", ListQuery{Make: "BMW"}, []int64{3, 1}, 2},
		{"price range", ListQuery{MinPrice: 5000, MaxPrice: 20000}, []int64{2, 1}, 2},
		{"year range", ListQuery{MinYear: 2016, MaxYear: 2018}, []int64{2, 1}, 2},
		{"search title", ListQuery{Search: "x5"}, []int64{3}, 1},
		{"sort price desc", ListQuery{SortBy: "start_price", Desc: true}, []int64{3, 1, 2, 4}, 4},
		{"pagination", ListQuery{SortBy: "year", Page: 2, PageSize: 3}, []int64{3}, 4},
		{"page past end", ListQuery{Page: 9}, []int64{}, 4},
	}
	for _, tt := range tests {
		res := tt.q.Apply(catalogFixture())
		if res.Total != tt.total {
			t.Errorf("%s: total got %d, want %d", tt.name, res.Total, tt.total)
		}
		got := ids(res.Items)
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
				break
			}
		}
	}
}

func TestListQueryNormalized(t *testing.T) {
	q := ListQuery{Page: -1, PageSize: 500, SortBy: "nope"}.Normalized()
	if q.Page != 1 || q.PageSize != MaxPageSize || q.SortBy != "end_date" {
		t.Errorf("got %+v", q)
	}
	if q := (ListQuery{}).Normalized(); q.PageSize != DefaultPageSize {
		t.Errorf("default page size: got %d", q.PageSize)
	}
}

func TestParseListQuery(t *testing.T) {
	v := url.Values{
		"make": {"BMW"}, "min_price": {"1000.5"}, "max_year": {"2020"},
		"sort": {"year"}, "order": {"DESC"}, "page": {"2"}, "q": {"touring"},
	}
	q, err := ParseListQuery(v)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if q.Make != "BMW" || q.MinPrice != 1000.5 || q.MaxYear != 2020 || q.SortBy != "year" || !q.Desc || q.Page != 2 || q.Search != "touring" {
		t.Errorf("got %+v", q)
	}

	for _, bad := range []url.Values{{"min_price": {"cheap"}}, {"page": {"x"}}, {"sort": {"title; DROP TABLE"}}} {
		if _, err := ParseListQuery(bad); err == nil {
			t.Errorf("ParseListQuery(%v): expected error", bad)
		}
	}
}

func TestListQueryWhereSQL(t *testing.T) {
	where, args := ListQuery{Make: "BMW", Search: "touring", MinPrice: 100, MaxYear: 2020}.whereSQL()
	want := " WHERE LOWER(make) = LOWER($1) AND title ILIKE '%' || $2 || '%' AND start_price >= $3 AND year <= $4"
	if where != want {
		t.Errorf("where:\n got %q\nwant %q", where, want)
	}
	if len(args) != 4 {
		t.Errorf("args: got %d, want 4", len(args))
	}

	if where, args := (ListQuery{}).whereSQL(); where != "" || args != nil {
		t.Errorf("empty query: got %q %v", where, args)
	}

	order := ListQuery{SortBy: "start_price", Desc: true}.Normalized().orderSQL()
	if !strings.Contains(order, "start_price DESC, id DESC") {
		t.Errorf("order: got %q", order)
	}
}

func TestHugePageStaysInRange(t *testing.T) {
	q, err := ParseListQuery(url.Values{"page": {"100000000000000000"}, "page_size": {"100"}})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if q.Page != MaxPage {
		t.Errorf("page: got %d, want %d", q.Page, MaxPage)
	}
	if off := q.Offset(); off < 0 || off > math.MaxInt32 {
		t.Errorf("offset out of range: %d", off)
	}

	res := ListQuery{Page: math.MaxInt, PageSize: MaxPageSize}.Apply(catalogFixture())
	if len(res.Items) != 0 || res.Total != 4 {
		t.Errorf("got %d items, total %d; want 0, 4", len(res.Items), res.Total)
	}
}
