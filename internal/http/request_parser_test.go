package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paylog/internal/core"
)

func newParser(t *testing.T, contentType, body string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	p := NewRequestBodyParser(req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return p
}

func TestRequestBodyParser_JSON(t *testing.T) {
	p := newParser(t, "application/json", `{"id": "123", "name": " test\u0000 ", "amount": 42.50, "note": null, "tags": ["a"], "ok": true}`)

	if !p.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}

	tests := []struct {
		key  string
		want Field
	}{
		{"id", Field{Present: true, Value: "123"}},
		{"name", Field{Present: true, Value: "test"}},
		{"amount", Field{Present: true, Value: "42.50"}},
		{"note", Field{Present: true, Null: true}},
		{"tags", Field{Present: true, Composite: true}},
		{"ok", Field{Present: true, Value: "true"}},
		{"missing", Field{}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := p.Field(tt.key); got != tt.want {
				t.Errorf("Field(%q) = %+v, want %+v", tt.key, got, tt.want)
			}
		})
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	p := newParser(t, "application/x-www-form-urlencoded", "id=456&name=form+test&blank=")

	if p.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if id := p.Get("id"); id != "456" {
		t.Errorf("Get('id') = %q, want '456'", id)
	}
	if name := p.Get("name"); name != "form test" {
		t.Errorf("Get('name') = %q, want 'form test'", name)
	}
	if f := p.Field("blank"); !f.Present || !f.Blank() {
		t.Errorf("Field('blank') = %+v", f)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	p := newParser(t, "application/json", "")
	if f := p.Field("nonexistent"); f.Present {
		t.Errorf("Field('nonexistent') = %+v", f)
	}
}

func TestParseBodyRejectsMalformed(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"broken json", "application/json", `{"phone": `, "Malformed request body."},
		{"json array", "application/json", `["phone"]`, "Unsupported request body."},
		{"xml", "application/xml", `<phone/>`, "Unsupported request body."},
		{"too large", "application/json", `{"x": "` + strings.Repeat("a", maxBodyBytes) + `"}`, "Request body too large."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			_, err := parseBody(req)
			if !errors.Is(err, core.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if err.Error() != tt.want {
				t.Errorf("err = %q, want %q", err.Error(), tt.want)
			}
		})
	}
}

func bind(t *testing.T, body string, partial bool) *fieldBinder {
	t.Helper()
	return newBinder(newParser(t, "application/json", body), partial)
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *core.ValidationError", err)
	}
	return verr.Fields
}

func TestFieldBinderRequired(t *testing.T) {
	b := bind(t, `{"a": null, "b": "  ", "c": {"x": 1}, "d": "abcdef"}`, false)
	b.requiredMessages = map[string]string{"e": "E is required."}
	b.text("a", 0)
	b.text("b", 0)
	b.text("c", 0)
	b.text("d", 5)
	b.text("e", 0)
	b.text("f", 0)

	want := map[string]string{
		"a": msgNotNull,
		"b": msgNotBlank,
		"c": "Not a valid string.",
		"d": "Ensure this field has no more than 5 characters.",
		"e": "E is required.",
		"f": msgRequired,
	}
	got := fieldsOf(t, b.err())
	for k, msg := range want {
		if got[k] != msg {
			t.Errorf("%s = %q, want %q", k, got[k], msg)
		}
	}
}

func TestFieldBinderPartialSkipsAbsent(t *testing.T) {
	b := bind(t, `{"amount": "12.50"}`, true)
	if v := b.text("name", 10); v != nil {
		t.Errorf("text = %v, want nil", *v)
	}
	amount := b.amount("amount")
	if err := b.err(); err != nil {
		t.Fatalf("err = %v", err)
	}
	if amount == nil || core.FormatAmount(*amount) != "12.50" {
		t.Errorf("amount = %v", amount)
	}
}

func TestFieldBinderTypedValues(t *testing.T) {
	b := bind(t, `{"type": "INCOME", "amount": 7, "currency": 3, "date": "2025-03-14", "bad_id": "x", "bad_amount": "1.001", "bad_date": "14.03.2025"}`, false)

	dir := b.direction("type")
	amount := b.amount("amount")
	id := b.id("currency", "Invalid currency id.")
	date := b.date("date")
	if err := b.err(); err != nil {
		t.Fatalf("err = %v", err)
	}
	if *dir != core.Income || core.FormatAmount(*amount) != "7.00" || *id != 3 || date.String() != "2025-03-14" {
		t.Errorf("values = %v %v %v %v", *dir, *amount, *id, *date)
	}

	b.id("bad_id", "Invalid currency id.")
	b.amount("bad_amount")
	b.date("bad_date")
	got := fieldsOf(t, b.err())
	if got["bad_id"] != "Invalid currency id." || got["bad_amount"] != core.ErrAmountPrecision.Error() || got["bad_date"] != core.ErrInvalidDate.Error() {
		t.Errorf("fields = %v", got)
	}
}

func TestOptionalText(t *testing.T) {
	b := bind(t, `{"null": null, "blank": "", "set": "hello", "long": "abcdef"}`, true)

	tests := []struct {
		key       string
		wantValue string
		wantClear bool
	}{
		{"absent", "", false},
		{"null", "", true},
		{"blank", "", true},
		{"set", "hello", false},
	}
	for _, tt := range tests {
		v, clear := b.optionalText(tt.key, 5)
		got := ""
		if v != nil {
			got = *v
		}
		if got != tt.wantValue || clear != tt.wantClear {
			t.Errorf("%s: value %q clear %v, want %q %v", tt.key, got, clear, tt.wantValue, tt.wantClear)
		}
	}
	b.optionalText("long", 5)
	if _, ok := fieldsOf(t, b.err())["long"]; !ok {
		t.Error("long value not reported")
	}

	b = bind(t, `{"first_name": "", "last_name": null}`, true)
	if v := b.optionalBlankText("first_name", 10); v == nil || *v != "" {
		t.Errorf("first_name = %v", v)
	}
	b.optionalBlankText("last_name", 10)
	if got := fieldsOf(t, b.err())["last_name"]; got != msgNotNull {
		t.Errorf("last_name = %q", got)
	}
}

func TestPageRequest(t *testing.T) {
	tests := []struct {
		query    string
		wantPage int
		wantSize int
		wantErr  bool
	}{
		{"", 0, 0, false},
		{"page=3&page_size=10", 3, 10, false},
		{"page_size=-1", 0, 0, false},
		{"page=0", 0, 0, true},
		{"page=last", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			p, err := pageRequest(req)
			if tt.wantErr {
				if !errors.Is(err, core.ErrNotFound) {
					t.Fatalf("err = %v, want not found", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if p.Page != tt.wantPage || p.Size != tt.wantSize {
				t.Errorf("page = %+v", p)
			}
		})
	}
}

func TestPageURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/items?page=2&type=INCOME", nil)
	req.Header.Set("X-Forwarded-Proto", "https")

	if got := *pageURL(req, 3); got != "https://api.example.com/items?page=3&type=INCOME" {
		t.Errorf("next = %q", got)
	}
	if got := *pageURL(req, 1); got != "https://api.example.com/items?type=INCOME" {
		t.Errorf("previous = %q", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer  abc ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		got, ok := bearerToken(req)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v", tt.header, got, ok)
		}
	}
}
