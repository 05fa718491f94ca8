package file

import (
	"context"

	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/external"
)

// Project reads a file of another project at a ref, on behalf of the
// resolving user.
type Project struct {
	Repos   Repositories
	BaseURL string
}

// Load checks the user's access, resolves spec.Ref (default branch when
// empty) and reads spec.Location.
func (p *Project) Load(ctx context.Context, spec external.Specification, rc *external.Context) (*external.Fragment, error) {
	if !validPath(spec.Location) {
		return nil, errors.NewInvalidRequestError("invalid project file %q", spec.Location)
	}
	if !p.Repos.CanRead(spec.Project, rc.User) {
		return nil, errors.NewForbiddenError("user %q cannot read project %s", rc.User, spec.Project)
	}

	sha, err := p.Repos.ResolveCommit(ctx, spec.Project, spec.Ref)
	if err != nil {
		return nil, err
	}
	content, err := p.Repos.ReadFile(ctx, spec.Project, sha, spec.Location)
	if err != nil {
		return nil, err
	}

	ref := spec.Ref
	if ref == "" {
		ref = "HEAD"
	}
	return &external.Fragment{
		Content:     content,
		Location:    spec.Location,
		BlobURL:     webURL(p.BaseURL, spec.Project, "blob", sha, spec.Location),
		RawURL:      webURL(p.BaseURL, spec.Project, "raw", sha, spec.Location),
		ExtraParams: map[string]string{"project": spec.Project, "ref": ref},
		Project:     spec.Project,
		SHA:         sha,
	}, nil
}
