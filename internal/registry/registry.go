// Package registry routes record type tags to the office that handles them.
package registry

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/requestping/requestping/internal/model"
)

// Registry classifies record types and enumerates the client-facing choices.
// Implementations never fail: unknown input routes to a fallback office.
type Registry interface {
	// Classify returns the office owning recordType, or the fallback office.
	Classify(ctx context.Context, recordType string) model.Office
	// ListRecordTypes returns every known record type sorted by label.
	ListRecordTypes(ctx context.Context) []model.RecordTypeOption
	// Offices returns the offices in routing order, fallback last.
	Offices(ctx context.Context) []model.Office
	// Lookup finds an office by code.
	Lookup(ctx context.Context, code string) (model.Office, bool)
}

// Refresher is a registry whose offices can be reloaded on demand.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Catalog is an immutable routing table. Offices are matched in order and
// the first office owning a tag wins.
type Catalog struct {
	offices  []model.Office
	fallback model.Office
	options  []model.RecordTypeOption
}

// NewCatalog builds a catalog. If fallback is also present in offices it is
// matched in place; otherwise it is appended after the other offices.
func NewCatalog(offices []model.Office, fallback model.Office) *Catalog {
	ordered := make([]model.Office, 0, len(offices)+1)
	hasFallback := false
	for _, o := range offices {
		if strings.EqualFold(o.Code, fallback.Code) {
			hasFallback = true
		}
		ordered = append(ordered, o)
	}
	if !hasFallback {
		ordered = append(ordered, fallback)
	}

	c := &Catalog{offices: ordered, fallback: fallback}
	c.options = c.buildOptions()
	return c
}

// Classify returns the first office owning recordType. The second result is
// true when no office matched and the fallback was returned.
func (c *Catalog) Classify(recordType string) (model.Office, bool) {
	for _, o := range c.offices {
		if o.Owns(recordType) {
			return o, false
		}
	}
	return c.fallback, true
}

// Lookup finds an office by code, case-insensitively.
func (c *Catalog) Lookup(code string) (model.Office, bool) {
	code = strings.TrimSpace(code)
	for _, o := range c.offices {
		if strings.EqualFold(o.Code, code) {
			return o, true
		}
	}
	return model.Office{}, false
}

// Offices returns a copy of the routing order.
func (c *Catalog) Offices() []model.Office {
	return append([]model.Office(nil), c.offices...)
}

// RecordTypes returns a copy of the sorted choice list.
func (c *Catalog) RecordTypes() []model.RecordTypeOption {
	return append([]model.RecordTypeOption(nil), c.options...)
}

func (c *Catalog) buildOptions() []model.RecordTypeOption {
	seen := make(map[string]bool)
	var opts []model.RecordTypeOption
	for _, o := range c.offices {
		for _, rt := range o.RecordTypes {
			key := strings.ToLower(rt)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			opts = append(opts, model.RecordTypeOption{
				Value:  rt,
				Label:  Label(rt),
				Office: o.Name,
			})
		}
	}

	sort.SliceStable(opts, func(i, j int) bool {
		li, lj := strings.ToLower(opts[i].Label), strings.ToLower(opts[j].Label)
		if li != lj {
			return li < lj
		}
		return opts[i].Value < opts[j].Value
	})
	return opts
}

// Label turns a tag like "gi_bill" into "Gi Bill".
func Label(recordType string) string {
	words := strings.Fields(replaceSeparators(recordType))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// DisplayTag turns a tag like "burial_records" into "BURIAL RECORDS".
func DisplayTag(recordType string) string {
	return strings.ToUpper(strings.Join(strings.Fields(replaceSeparators(recordType)), " "))
}

func replaceSeparators(s string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(s)
}
