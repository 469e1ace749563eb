package cql

// Reference is a single declared name and the value it points at, either a
// ValueSet OID or a CodeSystem URL.
type Reference struct {
	Name  string
	Value string
}

// Refs is an insertion-ordered name -> value mapping. Setting an existing
// name replaces its value but keeps its original position.
type Refs struct {
	names  []string
	values map[string]string
}

func NewRefs() *Refs {
	return &Refs{values: make(map[string]string)}
}

func (r *Refs) Set(name, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, exists := r.values[name]; !exists {
		r.names = append(r.names, name)
	}
	r.values[name] = value
}

func (r *Refs) Get(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.values[name]
	return v, ok
}

func (r *Refs) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Merge copies every entry of other into r. Names already present in r take
// the value from other.
func (r *Refs) Merge(other *Refs) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		r.Set(name, other.values[name])
	}
}

// References returns the entries in insertion order.
func (r *Refs) References() []Reference {
	if r == nil {
		return nil
	}
	refs := make([]Reference, 0, len(r.names))
	for _, name := range r.names {
		refs = append(refs, Reference{Name: name, Value: r.values[name]})
	}
	return refs
}

// Map returns a copy of the entries as a plain map.
func (r *Refs) Map() map[string]string {
	m := make(map[string]string, r.Len())
	if r == nil {
		return m
	}
	for k, v := range r.values {
		m[k] = v
	}
	return m
}
