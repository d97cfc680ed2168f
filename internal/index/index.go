package index

// DocumentIndex defines the index operations used by the service layer.
type DocumentIndex interface {
	UpsertDocument(row DocumentRow, body string, references map[string]string) error
	DeleteDocument(path string) error
	GetChecksum(path string) (string, error)
	GetDocument(path string) (*DocumentRow, error)
	Search(query string, limit int) ([]SearchResult, error)
	Referencing(reference string) ([]string, error)
	ReferencedPaths() ([]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

var _ DocumentIndex = (*DB)(nil)
