package syncstate

// State is the import bookkeeping the importer depends on.
type State interface {
	Upsert(r Record) error
	Delete(path string) error
	Get(path string) (*Record, error)
	All() (map[string]Record, error)
	Close() error
}

var _ State = (*DB)(nil)
