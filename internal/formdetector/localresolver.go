package formdetector

import "context"

// storePathResolver is the minimal corpus-store capability the local
// resolver needs, kept narrow to avoid importing all of corpusstore.Store.
type storePathResolver interface {
	ResolveFormPath(collectionID, docID, filename string) (string, error)
}

// LocalResolver resolves form filenames to on-disk corpus-store paths. This
// is the default resolver; the external file-serving collaborator maps the
// returned path to a downloadable URL.
type LocalResolver struct {
	store storePathResolver
}

// NewLocalResolver wraps a corpus store for local form resolution.
func NewLocalResolver(store storePathResolver) *LocalResolver {
	return &LocalResolver{store: store}
}

func (r *LocalResolver) Resolve(_ context.Context, collectionID, docID, filename string) (string, error) {
	return r.store.ResolveFormPath(collectionID, docID, filename)
}

var _ FormResolver = (*LocalResolver)(nil)
