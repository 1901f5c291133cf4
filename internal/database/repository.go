package database

// Repository is the PostgreSQL-backed Store implementation.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)
