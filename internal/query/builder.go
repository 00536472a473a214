// Package query turns list-endpoint query strings into SQL fragments.
package query

import (
	"cmp"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/septivank/meter-reading-service/internal/apperr"
	"github.com/septivank/meter-reading-service/tools/timeparser"
)

const (
	DefaultPage  = 1
	DefaultLimit = 100
)

var reserved = map[string]bool{"page": true, "sort": true, "limit": true, "fields": true}

var operators = map[string]string{
	"":    "=",
	"gte": ">=",
	"gt":  ">",
	"lte": "<=",
	"lt":  "<",
}

// Kind tells the builder how to convert a query-string value into a SQL argument.
type Kind int

const (
	Text Kind = iota
	Number
	Integer
	Bool
	Time
	UUID
)

// Field maps a JSON field name onto a SQL column expression.
type Field struct {
	Column string
	Kind   Kind
}

// Builder parses list parameters for one resource.
type Builder struct {
	fields      map[string]Field
	defaultSort string
}

// NewBuilder creates a builder over the allow-listed fields. defaultSort uses the
// same syntax as the sort parameter, e.g. "-readingDate".
func NewBuilder(fields map[string]Field, defaultSort string) *Builder {
	return &Builder{fields: fields, defaultSort: defaultSort}
}

// Condition is a single column comparison.
type Condition struct {
	Column string
	Op     string
	Value  any
}

// SortKey orders by one column.
type SortKey struct {
	Column string
	Desc   bool
}

// Query is a fully specified list request.
type Query struct {
	Conditions []Condition
	Sort       []SortKey
	Fields     []string
	Page       int
	Limit      int
}

// Offset is the number of records skipped before the current page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Where renders the conditions joined by AND, numbering placeholders from startArg.
// It returns an empty string when there are no conditions.
func (q Query) Where(startArg int) (string, []any) {
	if len(q.Conditions) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(q.Conditions))
	args := make([]any, 0, len(q.Conditions))
	for i, c := range q.Conditions {
		parts = append(parts, fmt.Sprintf("%s %s $%d", c.Column, c.Op, startArg+i))
		args = append(args, c.Value)
	}
	return strings.Join(parts, " AND "), args
}

// OrderBy renders the sort keys.
func (q Query) OrderBy() string {
	parts := make([]string, 0, len(q.Sort))
	for _, s := range q.Sort {
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, s.Column+" "+dir)
	}
	return strings.Join(parts, ", ")
}

// Parse builds a Query from request parameters. Unknown fields and operators are
// rejected as validation errors.
func (b *Builder) Parse(values url.Values) (Query, error) {
	q := Query{
		Page:  positiveInt(values.Get("page"), DefaultPage),
		Limit: positiveInt(values.Get("limit"), DefaultLimit),
	}

	for key, vals := range values {
		if reserved[key] || len(vals) == 0 {
			continue
		}
		name, op, err := splitKey(key)
		if err != nil {
			return Query{}, err
		}
		field, ok := b.fields[name]
		if !ok {
			return Query{}, apperr.Validation(fmt.Sprintf("cannot filter on unknown field %q", name))
		}
		value, err := convert(field.Kind, vals[0])
		if err != nil {
			return Query{}, apperr.Validation(fmt.Sprintf("invalid value for %s: %v", name, err))
		}
		q.Conditions = append(q.Conditions, Condition{Column: field.Column, Op: operators[op], Value: value})
	}
	// Map iteration order is random; keep SQL text stable for the same request.
	slices.SortFunc(q.Conditions, func(a, b Condition) int {
		if c := cmp.Compare(a.Column, b.Column); c != 0 {
			return c
		}
		return cmp.Compare(a.Op, b.Op)
	})

	sortSpec := values.Get("sort")
	if sortSpec == "" {
		sortSpec = b.defaultSort
	}
	sortKeys, err := b.parseSort(sortSpec)
	if err != nil {
		return Query{}, err
	}
	q.Sort = sortKeys

	if spec := values.Get("fields"); spec != "" {
		for _, name := range splitList(spec) {
			if _, ok := b.fields[name]; !ok && name != "id" {
				return Query{}, apperr.Validation(fmt.Sprintf("cannot select unknown field %q", name))
			}
			q.Fields = append(q.Fields, name)
		}
	}

	return q, nil
}

func (b *Builder) parseSort(spec string) ([]SortKey, error) {
	var keys []SortKey
	for _, name := range splitList(spec) {
		desc := strings.HasPrefix(name, "-")
		name = strings.TrimPrefix(name, "-")
		field, ok := b.fields[name]
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("cannot sort on unknown field %q", name))
		}
		keys = append(keys, SortKey{Column: field.Column, Desc: desc})
	}
	return keys, nil
}

// splitKey splits "consumption[gte]" into ("consumption", "gte").
func splitKey(key string) (string, string, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, "", nil
	}
	if !strings.HasSuffix(key, "]") {
		return "", "", apperr.Validation(fmt.Sprintf("malformed filter %q", key))
	}
	op := key[open+1 : len(key)-1]
	if _, ok := operators[op]; !ok || op == "" {
		return "", "", apperr.Validation(fmt.Sprintf("unsupported operator %q", op))
	}
	return key[:open], op, nil
}

func convert(kind Kind, raw string) (any, error) {
	switch kind {
	case Number:
		return strconv.ParseFloat(raw, 64)
	case Integer:
		return strconv.Atoi(raw)
	case Bool:
		return strconv.ParseBool(raw)
	case Time:
		return timeparser.ParseReadingDate(raw)
	case UUID:
		return uuid.Parse(raw)
	default:
		return raw, nil
	}
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func splitList(spec string) []string {
	var out []string
	for _, part := range strings.Split(spec, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Project reduces each item to the selected JSON fields. With no fields selected
// the items are returned unchanged.
func Project[T any](items []T, fields []string) (any, error) {
	if len(fields) == 0 {
		return items, nil
	}
	keep := map[string]bool{"id": true}
	for _, f := range fields {
		keep[f] = true
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal item: %w", err)
		}
		var full map[string]any
		if err := json.Unmarshal(raw, &full); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		projected := make(map[string]any, len(keep))
		for k, v := range full {
			if keep[k] {
				projected[k] = v
			}
		}
		out = append(out, projected)
	}
	return out, nil
}
