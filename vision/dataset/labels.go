package dataset

import "github.com/pkg/errors"

// ClassCatalog maps class names to stable numeric labels. The label of a
// class is its position in the name list, so two catalogs built from the
// same names agree on every label.
type ClassCatalog struct {
	names []string
	index map[string]int32
}

// NewClassCatalog builds a catalog from an ordered name list. Names must be
// unique and non-empty.
func NewClassCatalog(names []string) (*ClassCatalog, error) {
	if len(names) == 0 {
		return nil, errors.New("class catalog needs at least one class")
	}

	catalog := &ClassCatalog{
		names: make([]string, len(names)),
		index: make(map[string]int32, len(names)),
	}

	for i, name := range names {
		if name == "" {
			return nil, errors.Errorf("class %d has an empty name", i)
		}
		if _, exists := catalog.index[name]; exists {
			return nil, errors.Errorf("duplicate class name %q", name)
		}
		catalog.names[i] = name
		catalog.index[name] = int32(i)
	}

	return catalog, nil
}

// NumClasses returns the number of classes in the catalog.
func (c *ClassCatalog) NumClasses() int {
	return len(c.names)
}

// Names returns a copy of the class names in label order.
func (c *ClassCatalog) Names() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

// Name resolves a numeric label back to its class name.
func (c *ClassCatalog) Name(label int32) (string, error) {
	if label < 0 || int(label) >= len(c.names) {
		return "", errors.Errorf("label %d out of range [0, %d)", label, len(c.names))
	}
	return c.names[label], nil
}

// Label resolves a class name to its numeric label.
func (c *ClassCatalog) Label(name string) (int32, error) {
	label, ok := c.index[name]
	if !ok {
		return 0, errors.Errorf("unknown class %q", name)
	}
	return label, nil
}

// Contains reports whether the catalog knows the given class name.
func (c *ClassCatalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}
