package convert

import (
	"context"

	"github.com/vergate/vergate/internal/apiclient"
	"github.com/vergate/vergate/internal/cache"
	"github.com/vergate/vergate/internal/domain"
)

// Lookuper resolves names to identifiers and back, consulting the lookup
// cache before issuing a remote read. The Service implements it.
type Lookuper interface {
	// ResolveID returns the identifier for an entity name.
	ResolveID(ctx context.Context, entity, lookupPath, name string) (any, error)

	// ResolveName returns the name for an entity identifier.
	ResolveName(ctx context.Context, entity, lookupPath string, id any) (string, error)
}

// Context carries the shared state a transform function may need: the
// service's lookup helpers, the persistent HTTP client, the lookup cache and
// the resolved remote API version. It is built once per Execute call.
type Context struct {
	Lookup  Lookuper
	Client  *apiclient.Client
	Cache   *cache.Cache
	Version string

	// Field is the mapping spec of the field currently being transformed.
	// The converter sets it before each transform invocation.
	Field *domain.FieldSpec

	// Results holds the responses of endpoint operations executed so far in
	// this call, keyed by operation name. The orchestrator populates it so
	// later transform stages can reference earlier step output.
	Results map[string]domain.Record
}
