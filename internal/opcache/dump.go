package opcache

// Dump maps function names to their listings and remembers the order in
// which the names first appeared.
type Dump struct {
	names []string
	funcs map[string]*Function
}

// NewDump returns an empty Dump.
func NewDump() *Dump {
	return &Dump{funcs: make(map[string]*Function)}
}

// Put adds f. A function with the same name replaces the earlier one but
// keeps its position.
func (d *Dump) Put(f *Function) {
	if _, ok := d.funcs[f.Name]; !ok {
		d.names = append(d.names, f.Name)
	}
	d.funcs[f.Name] = f
}

// Get returns the function with the given name.
func (d *Dump) Get(name string) (*Function, bool) {
	f, ok := d.funcs[name]
	return f, ok
}

// Delete removes name from the dump, if present.
func (d *Dump) Delete(name string) {
	if _, ok := d.funcs[name]; !ok {
		return
	}
	delete(d.funcs, name)
	for i, n := range d.names {
		if n == name {
			d.names = append(d.names[:i:i], d.names[i+1:]...)
			break
		}
	}
}

// Names returns the function names in listing order.
func (d *Dump) Names() []string {
	return append([]string(nil), d.names...)
}

// Len returns the number of functions.
func (d *Dump) Len() int {
	return len(d.names)
}
