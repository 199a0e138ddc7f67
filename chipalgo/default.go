package chipalgo

import "github.com/GrappleRobotics/grapple-bundle/resources"

var defaultRegistry = Lazy(func() (*Registry, error) {
	return NewRegistry(resources.Algos(), FSLoader{FS: resources.FS()})
})

// Default returns the registry of the embedded algorithms. It is built on
// first use.
func Default() (*Registry, error) {
	return defaultRegistry()
}
