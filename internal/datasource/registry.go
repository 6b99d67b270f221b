package datasource

import (
	"fmt"
	"sync"
)

// Constructor builds a DataSource for a descriptor. Descriptors name a
// constructor explicitly via serverConstructor, or implicitly via a custom
// serverType; both resolve against this registry. Registration happens at
// program start, never on the request path.
type Constructor func(desc *Descriptor, deps Deps) (DataSource, error)

var (
	constructorsMu sync.RWMutex
	constructors   = map[string]Constructor{}
)

// RegisterConstructor makes a data source constructor available under the
// given name.
func RegisterConstructor(name string, constructor Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	if _, dup := constructors[name]; dup {
		panic(fmt.Sprintf("data source constructor %q registered twice", name))
	}
	constructors[name] = constructor
}

func lookupConstructor(name string) (Constructor, bool) {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()
	constructor, ok := constructors[name]
	return constructor, ok
}
