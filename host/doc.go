// Package host orchestrates the component lifecycle: fetching artifacts,
// compiling policy into enforcement bindings, instantiating sandboxed
// components, and serving grant and secret management on top of the
// persistence layer.
package host
