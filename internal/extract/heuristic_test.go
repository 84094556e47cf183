package extract

import (
	"reflect"
	"testing"
)

func TestHeuristicCompany(t *testing.T) {
	p := NewHeuristicParser()

	cases := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "hebrew line with branch number",
			text: "סופר פארם 123\n09/07/2024",
			want: "סופר פארם 123",
			ok:   true,
		},
		{
			name: "hebrew line with two words",
			text: "רמי לוי\nסה\"כ 45.90",
			want: "רמי לוי",
			ok:   true,
		},
		{
			name: "skips structural lines",
			text: "קבלה מס 123\nחשבונית עסקה\nמקדונלדס סניף 10",
			want: "מקדונלדס סניף 10",
			ok:   true,
		},
		{
			name: "latin fallback single brand",
			text: "SuperStore\n09/07/2024",
			want: "SuperStore",
			ok:   true,
		},
		{
			name: "skips bare date line",
			text: "09/07/2024\n12:30:45",
			ok:   false,
		},
		{
			name: "skips short hebrew line",
			text: "אב\n123",
			ok:   false,
		},
		{
			name: "single hebrew word without digits is ambiguous",
			text: "שלום",
			ok:   false,
		},
		{
			name: "strips bidi marks before matching",
			text: "‏רמי לוי‎\n45.90",
			want: "רמי לוי",
			ok:   true,
		},
		{
			name: "latin name containing wt bigram is kept",
			text: "Newton Cafe\n09/07/2024",
			want: "Newton Cafe",
			ok:   true,
		},
		{
			name: "watermark token skipped case-sensitively",
			text: "WT 4281\nרמי לוי 5",
			want: "רמי לוי 5",
			ok:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := p.company(p.cleanLines(tc.text))
			if ok != tc.ok {
				t.Fatalf("company ok = %v, want %v (got %q)", ok, tc.ok, got)
			}
			if ok && got != tc.want {
				t.Fatalf("company = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHeuristicDate(t *testing.T) {
	p := NewHeuristicParser()

	cases := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{name: "four digit year", text: "תאריך: 09/07/2024", want: "09/07/2024", ok: true},
		{name: "two digit year below pivot", text: "9.7.24", want: "9/7/2024", ok: true},
		{name: "two digit year above pivot", text: "9.7.99", want: "9/7/1999", ok: true},
		{name: "year first form", text: "2024-07-09", want: "9/7/2024", ok: true},
		{name: "dashes", text: "09-07-2024", want: "09/07/2024", ok: true},
		{name: "invalid month skipped then later match wins", text: "13/13/2024\n09/07/2024", want: "09/07/2024", ok: true},
		{name: "no date", text: "רמי לוי\n45.90", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := p.date(p.cleanLines(tc.text))
			if ok != tc.ok {
				t.Fatalf("date ok = %v, want %v (got %q)", ok, tc.ok, got)
			}
			if ok && got != tc.want {
				t.Fatalf("date = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHeuristicTotal(t *testing.T) {
	p := NewHeuristicParser()

	cases := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "keyword window picks maximum not first",
			text: "סה\"כ לתשלום\n12.00\n45.90 ₪",
			want: "45.90",
			ok:   true,
		},
		{
			name: "amount on the keyword line itself",
			text: "סה\"כ 89.90 ₪",
			want: "89.90",
			ok:   true,
		},
		{
			name: "decimal beats embedded integer on same line",
			text: "total: 45.90 ₪",
			want: "45.90",
			ok:   true,
		},
		{
			name: "integer with currency glyph",
			text: "לתשלום\n120 ₪",
			want: "120",
			ok:   true,
		},
		{
			name: "glyph before amount",
			text: "סכום\n₪ 78.50",
			want: "78.50",
			ok:   true,
		},
		{
			name: "empty keyword window falls through to later keyword",
			text: "סה\"כ פריטים\nשורה ללא סכום\nשורה נוספת\nלתשלום 33.20",
			want: "33.20",
			ok:   true,
		},
		{
			name: "fallback global maximum within range",
			text: "12.50\n0.50\n99.90\n25000.00",
			want: "99.90",
			ok:   true,
		},
		{
			name: "fallback ignores out of range values",
			text: "0.99\n12000.00",
			ok:   false,
		},
		{
			name: "no amounts at all",
			text: "רמי לוי\nתודה רבה",
			ok:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := p.total(p.cleanLines(tc.text))
			if ok != tc.ok {
				t.Fatalf("total ok = %v, want %v (got %q)", ok, tc.ok, got)
			}
			if ok && got != tc.want {
				t.Fatalf("total = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHeuristicParseEndToEnd(t *testing.T) {
	p := NewHeuristicParser()
	res := p.Parse("SuperStore\n09/07/2024\nTotal: 45.90 ₪")

	if res.Company != "SuperStore" {
		t.Fatalf("company = %q, want SuperStore", res.Company)
	}
	if res.Date != "09/07/2024" {
		t.Fatalf("date = %q, want 09/07/2024", res.Date)
	}
	if res.Total != "45.90" {
		t.Fatalf("total = %q, want 45.90", res.Total)
	}
	if res.Method != MethodHeuristic {
		t.Fatalf("method = %q, want %q", res.Method, MethodHeuristic)
	}
	if missing := res.Missing(); len(missing) != 0 {
		t.Fatalf("missing = %v, want none", missing)
	}
	price, ok := res.ParsedPrice()
	if !ok || price.String() != "45.9" {
		t.Fatalf("parsed price = %v ok=%v, want 45.9", price, ok)
	}
}

func TestHeuristicParseDeterministic(t *testing.T) {
	p := NewHeuristicParser()
	text := "רמי לוי סניף 5\n09/07/2024\nסה\"כ\n12.00\n45.90 ₪\nעודף 4.10"
	first := p.Parse(text)
	for i := 0; i < 5; i++ {
		if got := p.Parse(text); got != first {
			t.Fatalf("parse %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestResultMissing(t *testing.T) {
	cases := []struct {
		name string
		res  Result
		want []FieldTag
	}{
		{
			name: "all present",
			res:  Result{Company: "רמי לוי", Date: "09/07/2024", Total: "45.90"},
			want: nil,
		},
		{
			name: "all absent",
			res:  Result{Company: NotFound, Date: NotFound, Total: NotFound},
			want: []FieldTag{FieldCompany, FieldPrice, FieldDate},
		},
		{
			name: "unparseable total counts as missing price",
			res:  Result{Company: "רמי לוי", Date: "09/07/2024", Total: "abc"},
			want: []FieldTag{FieldPrice},
		},
		{
			name: "empty company counts as missing",
			res:  Result{Company: "", Date: "09/07/2024", Total: "45.90"},
			want: []FieldTag{FieldCompany},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.res.Missing()
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Missing() = %v, want %v", got, tc.want)
			}
		})
	}
}
