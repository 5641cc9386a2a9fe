package models

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Enablement holds per-provider allow-lists of model ids. An empty (or
// missing) list for a provider means "all models enabled", which keeps old
// configuration files without allow-lists working.
type Enablement map[Provider][]string

// Enabled reports whether the given model passes the allow-list for its
// provider.
func (e Enablement) Enabled(m ModelDescriptor) bool {
	ids, ok := e[m.Provider]
	if !ok || len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if id == m.ID {
			return true
		}
	}
	return false
}

// ExplicitlyEnabled reports whether the user listed this exact model in a
// non-empty allow-list. Explicit picks take precedence when choosing a
// default selection.
func (e Enablement) ExplicitlyEnabled(m ModelDescriptor) bool {
	ids, ok := e[m.Provider]
	if !ok || len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if id == m.ID {
			return true
		}
	}
	return false
}

// Filter returns the subset of the catalog that passes the allow-lists,
// preserving order.
func (e Enablement) Filter(catalog Catalog) Catalog {
	ret := make(Catalog, 0, len(catalog))
	for _, m := range catalog {
		if e.Enabled(m) {
			ret = append(ret, m)
		}
	}
	return ret
}

type enablementFile struct {
	Providers map[Provider][]string `yaml:"providers"`
}

// LoadEnablement reads per-provider allow-lists from a YAML file. A missing
// file is not an error; it yields an empty Enablement (everything enabled).
func LoadEnablement(path string) (Enablement, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Enablement{}, nil
		}
		return nil, errors.Wrapf(err, "could not read enablement file %s", path)
	}

	var f enablementFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrapf(err, "could not parse enablement file %s", path)
	}
	if f.Providers == nil {
		return Enablement{}, nil
	}
	return Enablement(f.Providers), nil
}
