package file

import (
	"context"

	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/external"
)

// Local reads a file of the resolving project at the resolving commit.
type Local struct {
	Repos   Repositories
	BaseURL string
}

// Load reads spec.Location from rc.Project at rc.SHA.
func (l *Local) Load(ctx context.Context, spec external.Specification, rc *external.Context) (*external.Fragment, error) {
	if !validPath(spec.Location) {
		return nil, errors.NewInvalidRequestError("invalid local path %q", spec.Location)
	}
	if rc.SHA == "" {
		return nil, errors.NewNotFoundError("no commit to read %s from", spec.Location)
	}

	content, err := l.Repos.ReadFile(ctx, rc.Project, rc.SHA, spec.Location)
	if err != nil {
		return nil, err
	}
	return &external.Fragment{
		Content:  content,
		Location: spec.Location,
		BlobURL:  webURL(l.BaseURL, rc.Project, "blob", rc.SHA, spec.Location),
		RawURL:   webURL(l.BaseURL, rc.Project, "raw", rc.SHA, spec.Location),
	}, nil
}
