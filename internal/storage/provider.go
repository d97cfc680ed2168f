// Package storage provides file-system access for the context cache.
package storage

// Provider is the interface for cache file operations. Paths are relative to
// the provider root and use forward slashes.
type Provider interface {
	// List returns every .md file under dir in discovery order.
	List(dir string) ([]string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
}
