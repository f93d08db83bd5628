package locale

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownCountry is returned by Lookup for a name or code not in the table.
var ErrUnknownCountry = errors.New("locale: unknown country")

// Country holds the search parameters used for one market.
type Country struct {
	Name string
	// Code is the two-letter gl value sent to the provider.
	Code string
	// Domain is the Google host searched from this country.
	Domain string
	// Language is the hl value. Empty leaves the provider default.
	Language string
}

// Table is an immutable country lookup. It is safe for concurrent use.
type Table struct {
	countries []Country
	index     map[string]int
}

// NewTable builds a table from countries. Names and codes must be unique
// ignoring case.
func NewTable(countries ...Country) (*Table, error) {
	t := &Table{index: make(map[string]int, 2*len(countries))}
	for _, c := range countries {
		if c.Name == "" || c.Code == "" {
			return nil, fmt.Errorf("locale: country %+v needs a name and a code", c)
		}
		for _, key := range []string{normalize(c.Name), normalize(c.Code)} {
			if _, dup := t.index[key]; dup {
				return nil, fmt.Errorf("locale: duplicate entry %q", key)
			}
			t.index[key] = len(t.countries)
		}
		t.countries = append(t.countries, c)
	}
	return t, nil
}

var defaultCountries = []Country{
	{Name: "India", Code: "in", Domain: "google.co.in", Language: "en"},
	{Name: "United States", Code: "us", Domain: "google.com", Language: "en"},
	{Name: "United Kingdom", Code: "uk", Domain: "google.co.uk", Language: "en"},
	{Name: "Indonesia", Code: "id", Domain: "google.co.id", Language: "id"},
	{Name: "Australia", Code: "au", Domain: "google.com.au", Language: "en"},
	{Name: "Canada", Code: "ca", Domain: "google.ca", Language: "en"},
	{Name: "Germany", Code: "de", Domain: "google.de", Language: "de"},
	{Name: "France", Code: "fr", Domain: "google.fr", Language: "fr"},
	{Name: "Spain", Code: "es", Domain: "google.es", Language: "es"},
	{Name: "Brazil", Code: "br", Domain: "google.com.br", Language: "pt"},
	{Name: "Japan", Code: "jp", Domain: "google.co.jp", Language: "ja"},
	{Name: "Singapore", Code: "sg", Domain: "google.com.sg", Language: "en"},
}

// DefaultCountry is used when no country is configured.
const DefaultCountry = "in"

// DefaultTable returns the built-in country table.
func DefaultTable() *Table {
	t, err := NewTable(defaultCountries...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup finds a country by name or code, ignoring case and surrounding space.
func (t *Table) Lookup(nameOrCode string) (Country, error) {
	i, ok := t.index[normalize(nameOrCode)]
	if !ok {
		return Country{}, fmt.Errorf("%w: %q", ErrUnknownCountry, nameOrCode)
	}
	return t.countries[i], nil
}

// Countries returns the table entries sorted by name.
func (t *Table) Countries() []Country {
	out := make([]Country, len(t.countries))
	copy(out, t.countries)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
