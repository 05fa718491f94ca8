// Package file implements the fragment backends behind include
// specifications: repository files, remote URLs, named templates,
// cross-project files and versioned components.
package file

import (
	"context"
	"net/url"
	"strings"

	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/external"
	"github.com/teranos/ciconf/logger"
	"go.uber.org/zap"
)

// Repositories is the repository access the backends need.
// *repository.Store implements it.
type Repositories interface {
	CanRead(project, user string) bool
	ResolveCommit(ctx context.Context, project, ref string) (string, error)
	ReadFile(ctx context.Context, project, sha, file string) ([]byte, error)
	Tags(ctx context.Context, project string) ([]string, error)
}

// Loader dispatches a specification to the backend of its kind. A nil
// backend makes that kind fail as an invalid location.
type Loader struct {
	Local     *Local
	Remote    *Remote
	Template  *Template
	Project   *Project
	Component *Component

	logger *zap.SugaredLogger
}

var _ external.Loader = (*Loader)(nil)

// NewLoader returns a Loader with the given backends.
func NewLoader(local *Local, remote *Remote, template *Template, project *Project, component *Component) *Loader {
	return &Loader{
		Local:     local,
		Remote:    remote,
		Template:  template,
		Project:   project,
		Component: component,
		logger:    logger.ComponentLogger("file.loader"),
	}
}

// Load fetches the fragment spec points at.
func (l *Loader) Load(ctx context.Context, spec external.Specification, rc *external.Context) (*external.Fragment, error) {
	var (
		fragment *external.Fragment
		err      error
	)
	switch spec.Kind {
	case external.SourceLocal:
		if l.Local != nil {
			fragment, err = l.Local.Load(ctx, spec, rc)
		} else {
			err = unsupported(spec)
		}
	case external.SourceRemote:
		if l.Remote != nil {
			fragment, err = l.Remote.Load(ctx, spec, rc)
		} else {
			err = unsupported(spec)
		}
	case external.SourceTemplate:
		if l.Template != nil {
			fragment, err = l.Template.Load(ctx, spec, rc)
		} else {
			err = unsupported(spec)
		}
	case external.SourceProject:
		if l.Project != nil {
			fragment, err = l.Project.Load(ctx, spec, rc)
		} else {
			err = unsupported(spec)
		}
	case external.SourceComponent:
		if l.Component != nil {
			fragment, err = l.Component.Load(ctx, spec, rc)
		} else {
			err = unsupported(spec)
		}
	default:
		err = unsupported(spec)
	}

	if err != nil {
		if l.logger != nil {
			l.logger.Debugw("Fragment load failed",
				logger.FieldKind, spec.Kind,
				logger.FieldLocation, spec.Display(),
				logger.FieldError, err)
		}
		return nil, err
	}
	return fragment, nil
}

func unsupported(spec external.Specification) error {
	return errors.NewInvalidRequestError("%s includes are not supported", spec.Kind)
}

// webURL builds <base>/<project>/-/<view>/<sha>/<file>, or "" without a
// base URL.
func webURL(base, project, view, sha, file string) string {
	if base == "" {
		return ""
	}
	u, err := url.JoinPath(base, project, "-", view, sha, strings.TrimPrefix(file, "/"))
	if err != nil {
		return ""
	}
	return u
}

// validPath rejects paths escaping the repository or template root.
func validPath(p string) bool {
	if strings.TrimSpace(p) == "" || strings.ContainsRune(p, 0) {
		return false
	}
	for _, segment := range strings.Split(p, "/") {
		if segment == ".." {
			return false
		}
	}
	return true
}
