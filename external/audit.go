package external

import (
	"context"
)

// AuditRecord traces one loaded fragment. It is never consulted for
// resolution decisions.
type AuditRecord struct {
	Kind     SourceKind
	Location string
	BlobURL  string
	RawURL   string
	// ExtraParams holds kind-specific details such as the ref of a
	// cross-project include.
	ExtraParams map[string]string
	// ContextProject and ContextSHA are the project and commit of the
	// Context that fetched the fragment.
	ContextProject string
	ContextSHA     string
}

// Fragment is the raw content of one loaded include.
type Fragment struct {
	Content []byte
	// Location is the resolved location (URL, path, template file).
	Location    string
	BlobURL     string
	RawURL      string
	ExtraParams map[string]string
	// Project and SHA locate the fragment when it lives in another project;
	// nested includes resolve against them.
	Project string
	SHA     string
}

// Loader fetches the content a specification points at. Failures are
// returned either as *Error or marked with one of the errors package
// failure classes.
type Loader interface {
	Load(ctx context.Context, spec Specification, rc *Context) (*Fragment, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, spec Specification, rc *Context) (*Fragment, error)

func (f LoaderFunc) Load(ctx context.Context, spec Specification, rc *Context) (*Fragment, error) {
	return f(ctx, spec, rc)
}

func auditRecord(spec Specification, fragment *Fragment, rc *Context) AuditRecord {
	location := fragment.Location
	if location == "" {
		location = spec.Location
	}
	return AuditRecord{
		Kind:           spec.Kind,
		Location:       location,
		BlobURL:        fragment.BlobURL,
		RawURL:         fragment.RawURL,
		ExtraParams:    fragment.ExtraParams,
		ContextProject: rc.Project,
		ContextSHA:     rc.SHA,
	}
}
