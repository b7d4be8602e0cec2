package tools

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// Record is one stored object. Every record carries "id" and "tenant_id".
type Record map[string]any

// Backend is the persistence the built-in tools run against. All operations
// are scoped to a tenant; a record is never visible outside its tenant.
type Backend interface {
	Insert(ctx context.Context, tenantID, collection string, rec Record) (Record, error)
	Get(ctx context.Context, tenantID, collection, id string) (Record, error)
	Update(ctx context.Context, tenantID, collection, id string, patch Record) (Record, error)
	Delete(ctx context.Context, tenantID, collection, id string) (Record, error)
	Find(ctx context.Context, tenantID, collection string, match func(Record) bool) ([]Record, error)
}

// idPrefixes gives each collection a recognizable id prefix.
var idPrefixes = map[string]string{
	"bookings":      "bk",
	"invoices":      "inv",
	"payments":      "pay",
	"clients":       "cl",
	"users":         "usr",
	"notifications": "ntf",
}

// MemoryBackend is an in-process Backend. Find returns records in insertion order.
type MemoryBackend struct {
	mu    sync.RWMutex
	data  map[string]map[string]map[string]Record
	order map[string]map[string][]string
	newID func() string
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:  make(map[string]map[string]map[string]Record),
		order: make(map[string]map[string][]string),
		newID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
	}
}

func (b *MemoryBackend) collection(tenantID, collection string, create bool) map[string]Record {
	byCol, ok := b.data[tenantID]
	if !ok {
		if !create {
			return nil
		}
		byCol = make(map[string]map[string]Record)
		b.data[tenantID] = byCol
		b.order[tenantID] = make(map[string][]string)
	}
	recs, ok := byCol[collection]
	if !ok && create {
		recs = make(map[string]Record)
		byCol[collection] = recs
	}
	return recs
}

// Insert stores rec. An "id" in rec is kept; otherwise one is generated.
func (b *MemoryBackend) Insert(ctx context.Context, tenantID, collection string, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := copyRecord(rec)
	id, _ := out["id"].(string)
	if id == "" {
		prefix, ok := idPrefixes[collection]
		if !ok {
			prefix = "rec"
		}
		id = prefix + "_" + b.newID()
	}
	out["id"] = id
	out["tenant_id"] = tenantID

	recs := b.collection(tenantID, collection, true)
	if _, exists := recs[id]; exists {
		return nil, domain.NewEngineError(domain.ErrStoreWrite.Code, collection+" "+id+" already exists")
	}
	recs[id] = out
	b.order[tenantID][collection] = append(b.order[tenantID][collection], id)
	return copyRecord(out), nil
}

// Get returns ErrNotFound when id is not in the tenant's collection.
func (b *MemoryBackend) Get(ctx context.Context, tenantID, collection, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.collection(tenantID, collection, false)[id]
	if !ok {
		return nil, notFound(collection, id)
	}
	return copyRecord(rec), nil
}

// Update merges patch into the record. id and tenant_id cannot be changed.
func (b *MemoryBackend) Update(ctx context.Context, tenantID, collection, id string, patch Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.collection(tenantID, collection, false)[id]
	if !ok {
		return nil, notFound(collection, id)
	}
	for k, v := range patch {
		if k == "id" || k == "tenant_id" {
			continue
		}
		rec[k] = v
	}
	return copyRecord(rec), nil
}

// Delete removes and returns the record.
func (b *MemoryBackend) Delete(ctx context.Context, tenantID, collection, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	recs := b.collection(tenantID, collection, false)
	rec, ok := recs[id]
	if !ok {
		return nil, notFound(collection, id)
	}
	delete(recs, id)
	ids := b.order[tenantID][collection]
	for i, v := range ids {
		if v == id {
			b.order[tenantID][collection] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return copyRecord(rec), nil
}

// Find returns the records match accepts. A nil match accepts everything.
func (b *MemoryBackend) Find(ctx context.Context, tenantID, collection string, match func(Record) bool) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	recs := b.collection(tenantID, collection, false)
	var out []Record
	for _, id := range b.order[tenantID][collection] {
		rec := recs[id]
		if match == nil || match(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func notFound(collection, id string) error {
	return domain.NewEngineError(domain.ErrNotFound.Code, strings.TrimSuffix(collection, "s")+" "+id+" not found")
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
