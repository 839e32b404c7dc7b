// Package fields provides word field definitions and extraction
package fields

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Zerofisher/wordchain/pkg/model"
)

// FieldType represents the type of a field
type FieldType int

const (
	TypeString FieldType = iota
	TypeInt
	TypeBool
	TypeFloat
)

// FieldDef defines a word field
type FieldDef struct {
	Name        string                // Field name (e.g., "word.total")
	Description string                // Human-readable description
	Type        FieldType             // Value type
	Extractor   func(*model.Word) any // Field value extractor
}

// Registry holds all registered fields
type Registry struct {
	fields map[string]*FieldDef
}

// NewRegistry creates a new field registry with standard fields
func NewRegistry() *Registry {
	r := &Registry{
		fields: make(map[string]*FieldDef),
	}
	r.registerStandardFields()
	return r
}

// Get returns a field definition by name
func (r *Registry) Get(name string) *FieldDef {
	return r.fields[name]
}

// List returns all registered field names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extract extracts a field value from a word
func (r *Registry) Extract(name string, w *model.Word) (any, bool) {
	field := r.fields[name]
	if field == nil {
		return nil, false
	}
	value := field.Extractor(w)
	return value, value != nil
}

// ExtractString extracts a field value as a string. Unknown fields
// yield an empty string.
func (r *Registry) ExtractString(name string, w *model.Word) string {
	value, ok := r.Extract(name, w)
	if !ok {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', 4, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Validate reports the first unknown field name in names.
func (r *Registry) Validate(names []string) error {
	for _, name := range names {
		if r.fields[name] == nil {
			return fmt.Errorf("unknown field %q", name)
		}
	}
	return nil
}

// Register adds a field definition
func (r *Registry) Register(field *FieldDef) {
	r.fields[field.Name] = field
}

func ratio(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func (r *Registry) registerStandardFields() {
	r.Register(&FieldDef{
		Name:        "word.id",
		Description: "Word id",
		Type:        TypeInt,
		Extractor:   func(w *model.Word) any { return w.ID },
	})
	r.Register(&FieldDef{
		Name:        "word.token",
		Description: "Normalized token",
		Type:        TypeString,
		Extractor:   func(w *model.Word) any { return w.Token },
	})
	r.Register(&FieldDef{
		Name:        "word.length",
		Description: "Token length in runes",
		Type:        TypeInt,
		Extractor:   func(w *model.Word) any { return utf8.RuneCountInString(w.Token) },
	})
	r.Register(&FieldDef{
		Name:        "word.class",
		Description: "Token class (alpha or misc)",
		Type:        TypeString,
		Extractor:   func(w *model.Word) any { return string(w.Class) },
	})
	r.Register(&FieldDef{
		Name:        "word.alpha",
		Description: "Token is alphabetic",
		Type:        TypeBool,
		Extractor:   func(w *model.Word) any { return w.Class.IsAlpha() },
	})

	// Counters
	r.Register(&FieldDef{
		Name:        "word.total",
		Description: "Total occurrences",
		Type:        TypeInt,
		Extractor:   func(w *model.Word) any { return w.Total },
	})
	r.Register(&FieldDef{
		Name:        "word.start",
		Description: "Times the word opened a sentence",
		Type:        TypeInt,
		Extractor:   func(w *model.Word) any { return w.Start },
	})
	r.Register(&FieldDef{
		Name:        "word.end",
		Description: "Times the word closed a sentence",
		Type:        TypeInt,
		Extractor:   func(w *model.Word) any { return w.End },
	})
	r.Register(&FieldDef{
		Name:        "word.start_ratio",
		Description: "Share of occurrences opening a sentence",
		Type:        TypeFloat,
		Extractor:   func(w *model.Word) any { return ratio(w.Start, w.Total) },
	})
	r.Register(&FieldDef{
		Name:        "word.end_ratio",
		Description: "Share of occurrences closing a sentence",
		Type:        TypeFloat,
		Extractor:   func(w *model.Word) any { return ratio(w.End, w.Total) },
	})
}

// GetFieldInfo returns a formatted string describing a field
func (r *Registry) GetFieldInfo(name string) string {
	field := r.fields[name]
	if field == nil {
		return ""
	}
	return fmt.Sprintf("%s\t%s\t%s", field.Name, getTypeName(field.Type), field.Description)
}

// ListByPrefix returns sorted field names matching a prefix
func (r *Registry) ListByPrefix(prefix string) []string {
	var names []string
	for _, name := range r.List() {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names
}

func getTypeName(t FieldType) string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeBool:
		return "bool"
	case TypeFloat:
		return "float"
	default:
		return "unknown"
	}
}
