package store

// ReadStoreInterface defines the interface for read model storage
type ReadStoreInterface interface {
	// Set stores a read model
	Set(collection, id string, data any)

	// Get retrieves a read model by id
	Get(collection, id string) (any, bool)

	// GetAll retrieves all items in a collection ordered by id
	GetAll(collection string) []any

	// Delete removes a read model
	Delete(collection, id string)

	// Take removes a read model and returns it. Of two concurrent
	// callers for the same id, only one gets it.
	Take(collection, id string) (any, bool)

	// Update modifies a read model using an update function.
	// It reports false when the id is unknown.
	Update(collection, id string, updateFn func(current any) any) bool

	// Count returns the number of items in a collection
	Count(collection string) int
}
