package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gofrs/uuid"
)

// memStore mimics the importer-relevant behaviour of the Postgres schema: product
// handles and (product, color, size) are unique, and writes only become visible on
// commit.
type memStore struct {
	mu sync.Mutex

	products map[string]uuid.UUID
	titles   map[uuid.UUID]string
	variants map[string]ProductVariant
	deleted  map[string]bool

	begins   int
	commits  int
	resolves int

	// failColor makes InsertVariant fail with a non-row error for that color.
	failColor string
	// conflictColor makes InsertVariant fail with ErrConflict for that color.
	conflictColor string
	// maxBegins, when positive, makes BeginImport fail once that many batches were opened.
	maxBegins int
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]uuid.UUID),
		titles:   make(map[uuid.UUID]string),
		variants: make(map[string]ProductVariant),
		deleted:  make(map[string]bool),
	}
}

func variantKey(productID uuid.UUID, color string, size Size) string {
	return fmt.Sprintf("%s|%s|%s", productID, color, size)
}

func (s *memStore) ListActive(ctx context.Context) ([]Product, error) {
	return nil, errors.New("not implemented")
}

func (s *memStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return errors.New("not implemented")
}

func (s *memStore) BeginImport(ctx context.Context) (ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxBegins > 0 && s.begins >= s.maxBegins {
		return nil, errors.New("pool closed")
	}
	s.begins++
	return &memBatch{
		store:    s,
		products: make(map[string]uuid.UUID),
		variants: make(map[string]ProductVariant),
	}, nil
}

func (s *memStore) variantsOf(handle string) []ProductVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.products[handle]
	var out []ProductVariant
	for _, v := range s.variants {
		if v.ProductID == id {
			out = append(out, v)
		}
	}
	return out
}

type memBatch struct {
	store *memStore

	products map[string]uuid.UUID
	variants map[string]ProductVariant

	spProducts map[string]uuid.UUID
	spVariants map[string]ProductVariant
}

func (b *memBatch) ResolveProduct(ctx context.Context, handle, title string) (uuid.UUID, error) {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.store.resolves++

	if id, ok := b.store.products[handle]; ok {
		if b.store.deleted[handle] {
			return uuid.Nil, fmt.Errorf("%w: product %q is deleted", ErrConflict, handle)
		}
		return id, nil
	}
	if id, ok := b.products[handle]; ok {
		return id, nil
	}
	id := uuid.Must(uuid.NewV4())
	b.products[handle] = id
	b.store.titles[id] = title
	return id, nil
}

func (b *memBatch) InsertVariant(ctx context.Context, v *ProductVariant) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	if b.store.failColor != "" && v.Color == b.store.failColor {
		return errors.New("conn closed")
	}
	if b.store.conflictColor != "" && v.Color == b.store.conflictColor {
		return fmt.Errorf("%w: forced", ErrConflict)
	}

	key := variantKey(v.ProductID, v.Color, v.Size)
	if _, ok := b.store.variants[key]; ok {
		return fmt.Errorf("%w: duplicate variant %s", ErrConflict, key)
	}
	if _, ok := b.variants[key]; ok {
		return fmt.Errorf("%w: duplicate variant %s", ErrConflict, key)
	}
	v.ID = uuid.Must(uuid.NewV4())
	b.variants[key] = *v
	return nil
}

func (b *memBatch) Savepoint(ctx context.Context) error {
	b.spProducts = copyMap(b.products)
	b.spVariants = copyMap(b.variants)
	return nil
}

func (b *memBatch) RollbackToSavepoint(ctx context.Context) error {
	b.products = copyMap(b.spProducts)
	b.variants = copyMap(b.spVariants)
	return nil
}

func (b *memBatch) ReleaseSavepoint(ctx context.Context) error {
	return nil
}

func (b *memBatch) Commit(ctx context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for k, v := range b.products {
		b.store.products[k] = v
	}
	for k, v := range b.variants {
		b.store.variants[k] = v
	}
	b.store.commits++
	b.products = map[string]uuid.UUID{}
	b.variants = map[string]ProductVariant{}
	return nil
}

func (b *memBatch) Rollback(ctx context.Context) error {
	b.products = map[string]uuid.UUID{}
	b.variants = map[string]ProductVariant{}
	return nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
