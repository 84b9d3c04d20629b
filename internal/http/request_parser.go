// Package http exposes the paylog services as a JSON API.
//
// This file implements request body parsing and typed field extraction. A
// body field can be absent, explicitly null or set; partial updates depend on
// telling those apart.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/services"
)

const maxBodyBytes = 1 << 20

const (
	msgRequired = "This field is required."
	msgNotNull  = "This field may not be null."
	msgNotBlank = "This field may not be blank."
)

var (
	errBodyTooLarge    = errors.New("request body too large")
	errUnsupportedBody = errors.New("unsupported request body")
)

// Field is one value of a parsed body.
type Field struct {
	Present bool
	Null    bool
	Value   string
	// Composite is set for JSON objects and arrays, which no endpoint accepts.
	Composite bool
}

// Blank reports whether the field carries no usable text.
func (f Field) Blank() bool {
	return f.Null || strings.TrimSpace(f.Value) == ""
}

// RequestBodyParser handles different content types for request body parsing.
// It supports JSON objects and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]json.RawMessage
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse decodes the body as a JSON object or as form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(p.contentType)
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		p.formData, p.err = url.ParseQuery(string(trimmed))
	case mediaType == "application/json" || trimmed[0] == '{':
		if trimmed[0] != '{' {
			p.err = errUnsupportedBody
			break
		}
		p.jsonData = make(map[string]json.RawMessage)
		p.err = json.Unmarshal(trimmed, &p.jsonData)
	case mediaType == "" || mediaType == "text/plain":
		p.formData, p.err = url.ParseQuery(string(trimmed))
	default:
		p.err = errUnsupportedBody
	}
	return p.err
}

// Field returns the value stored under key.
func (p *RequestBodyParser) Field(key string) Field {
	if p.jsonData != nil {
		raw, ok := p.jsonData[key]
		if !ok {
			return Field{}
		}
		return jsonField(raw)
	}
	if p.formData != nil {
		if _, ok := p.formData[key]; !ok {
			return Field{}
		}
		return Field{Present: true, Value: sanitizeInput(p.formData.Get(key))}
	}
	return Field{}
}

func jsonField(raw json.RawMessage) Field {
	raw = bytes.TrimSpace(raw)
	f := Field{Present: true}
	switch {
	case len(raw) == 0 || string(raw) == "null":
		f.Null = true
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			f.Value = sanitizeInput(s)
		}
	case raw[0] == '{' || raw[0] == '[':
		f.Composite = true
	default:
		// numbers and booleans keep their literal text, so 12.50 stays exact
		f.Value = string(raw)
	}
	return f
}

// Get returns the trimmed text of key, empty when absent or null.
func (p *RequestBodyParser) Get(key string) string {
	return p.Field(key).Value
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// parseBody reads and parses r, turning decoding failures into a
// validation error.
func parseBody(r *http.Request) (*RequestBodyParser, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			return nil, core.NewValidationError("Request body too large.")
		case errors.Is(err, errUnsupportedBody):
			return nil, core.NewValidationError("Unsupported request body.")
		default:
			return nil, core.NewValidationError("Malformed request body.")
		}
	}
	return p, nil
}

// fieldBinder extracts typed fields and collects per-field messages. In
// partial mode absent fields are skipped instead of reported as missing.
type fieldBinder struct {
	p       *RequestBodyParser
	partial bool
	errs    *core.ValidationError
	// requiredMessages overrides msgRequired per field.
	requiredMessages map[string]string
}

func newBinder(p *RequestBodyParser, partial bool) *fieldBinder {
	return &fieldBinder{p: p, partial: partial, errs: &core.ValidationError{}}
}

func (b *fieldBinder) fail(key, msg string) {
	b.errs.Add(key, msg)
}

func (b *fieldBinder) missing(key string) {
	if msg, ok := b.requiredMessages[key]; ok {
		b.fail(key, msg)
		return
	}
	b.fail(key, msgRequired)
}

// present returns the field when it is set and non-blank. Absent, null and
// blank values are reported unless the binder is partial and the key absent.
func (b *fieldBinder) present(key string) (Field, bool) {
	f := b.p.Field(key)
	switch {
	case !f.Present:
		if !b.partial {
			b.missing(key)
		}
		return f, false
	case f.Null:
		b.fail(key, msgNotNull)
		return f, false
	case f.Composite:
		b.fail(key, "Not a valid string.")
		return f, false
	case strings.TrimSpace(f.Value) == "":
		if _, ok := b.requiredMessages[key]; ok {
			b.missing(key)
		} else {
			b.fail(key, msgNotBlank)
		}
		return f, false
	}
	return f, true
}

// text reads a required string of at most max runes.
func (b *fieldBinder) text(key string, max int) *string {
	f, ok := b.present(key)
	if !ok {
		return nil
	}
	if max > 0 && utf8.RuneCountInString(f.Value) > max {
		b.fail(key, fmt.Sprintf("Ensure this field has no more than %d characters.", max))
		return nil
	}
	v := f.Value
	return &v
}

// optionalText reads a nullable string. clear is true for null or blank,
// value is nil when the key is absent or cleared.
func (b *fieldBinder) optionalText(key string, max int) (value *string, clear bool) {
	f := b.p.Field(key)
	switch {
	case !f.Present:
		return nil, false
	case f.Composite:
		b.fail(key, "Not a valid string.")
		return nil, false
	case f.Blank():
		return nil, true
	}
	if max > 0 && utf8.RuneCountInString(f.Value) > max {
		b.fail(key, fmt.Sprintf("Ensure this field has no more than %d characters.", max))
		return nil, false
	}
	v := f.Value
	return &v, false
}

// optionalBlankText reads a string that may be blank but not null.
func (b *fieldBinder) optionalBlankText(key string, max int) *string {
	f := b.p.Field(key)
	switch {
	case !f.Present:
		return nil
	case f.Null:
		b.fail(key, msgNotNull)
		return nil
	case f.Composite:
		b.fail(key, "Not a valid string.")
		return nil
	}
	if max > 0 && utf8.RuneCountInString(f.Value) > max {
		b.fail(key, fmt.Sprintf("Ensure this field has no more than %d characters.", max))
		return nil
	}
	v := f.Value
	return &v
}

func (b *fieldBinder) amount(key string) *decimal.Decimal {
	f, ok := b.present(key)
	if !ok {
		return nil
	}
	d, err := core.ParseAmount(f.Value)
	if err != nil {
		b.fail(key, err.Error())
		return nil
	}
	return &d
}

func (b *fieldBinder) direction(key string) *core.Direction {
	f, ok := b.present(key)
	if !ok {
		return nil
	}
	d, err := core.ParseDirection(f.Value)
	if err != nil {
		b.fail(key, err.Error())
		return nil
	}
	return &d
}

// id reads a positive integer reference. invalid is the message for
// anything that is not one.
func (b *fieldBinder) id(key, invalid string) *int64 {
	f, ok := b.present(key)
	if !ok {
		return nil
	}
	id, err := core.ParseID(f.Value)
	if err != nil {
		b.fail(key, invalid)
		return nil
	}
	return &id
}

func (b *fieldBinder) date(key string) *core.Date {
	f, ok := b.present(key)
	if !ok {
		return nil
	}
	d, err := core.ParseDate(f.Value)
	if err != nil {
		b.fail(key, err.Error())
		return nil
	}
	return &d
}

// err returns the collected messages as a validation error, or nil.
func (b *fieldBinder) err() error {
	return b.errs.OrNil()
}

// pageRequest reads page and page_size. A page that is not a positive
// integer is answered like a page past the end.
func pageRequest(r *http.Request) (services.PageRequest, error) {
	q := r.URL.Query()
	var p services.PageRequest
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, core.NotFound("Invalid page.")
		}
		p.Page = n
	}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.Size = n
		}
	}
	return p, nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	id, err := core.ParseID(r.PathValue("id"))
	if err != nil {
		return 0, core.NotFound("Not found.")
	}
	return id, nil
}
