package file

import (
	"context"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/external"
)

// LatestVersion selects the highest released semantic version tag.
const LatestVersion = "~latest"

var partialVersion = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ComponentPath is a parsed component reference:
// <host>/<project path>/<name>@<version>.
type ComponentPath struct {
	Host    string
	Project string
	Name    string
	Version string
}

// ParseComponentPath splits a component reference.
func ParseComponentPath(location string) (ComponentPath, error) {
	at := strings.LastIndex(location, "@")
	if at < 0 || at == len(location)-1 {
		return ComponentPath{}, errors.NewInvalidRequestError("component %s must have a version", location)
	}
	ref, version := location[:at], location[at+1:]

	segments := strings.Split(strings.Trim(ref, "/"), "/")
	if len(segments) < 3 {
		return ComponentPath{}, errors.NewInvalidRequestError("component %s must be <host>/<project>/<name>", location)
	}
	for _, s := range segments {
		if s == "" || s == ".." || s == "." {
			return ComponentPath{}, errors.NewInvalidRequestError("invalid component path %s", location)
		}
	}
	return ComponentPath{
		Host:    segments[0],
		Project: strings.Join(segments[1:len(segments)-1], "/"),
		Name:    segments[len(segments)-1],
		Version: version,
	}, nil
}

// Component reads a versioned component template from its project.
type Component struct {
	Repos Repositories
	// Host is the only accepted component host. Empty accepts any.
	Host    string
	BaseURL string
}

// Load resolves the component version and reads
// templates/<name>.yml or templates/<name>/template.yml.
func (c *Component) Load(ctx context.Context, spec external.Specification, rc *external.Context) (*external.Fragment, error) {
	component, err := ParseComponentPath(spec.Location)
	if err != nil {
		return nil, err
	}
	if c.Host != "" && !strings.EqualFold(component.Host, c.Host) {
		return nil, errors.NewInvalidRequestError("component host %s does not match %s", component.Host, c.Host)
	}
	if !c.Repos.CanRead(component.Project, rc.User) {
		return nil, errors.NewForbiddenError("user %q cannot read project %s", rc.User, component.Project)
	}

	ref, err := c.resolveVersion(ctx, component)
	if err != nil {
		return nil, err
	}
	sha, err := c.Repos.ResolveCommit(ctx, component.Project, ref)
	if err != nil {
		return nil, err
	}

	for _, file := range []string{
		"templates/" + component.Name + ".yml",
		"templates/" + component.Name + "/template.yml",
	} {
		content, err := c.Repos.ReadFile(ctx, component.Project, sha, file)
		if errors.IsNotFoundError(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &external.Fragment{
			Content:  content,
			Location: spec.Location,
			BlobURL:  webURL(c.BaseURL, component.Project, "blob", sha, file),
			RawURL:   webURL(c.BaseURL, component.Project, "raw", sha, file),
			ExtraParams: map[string]string{
				"project": component.Project,
				"name":    component.Name,
				"version": ref,
			},
			Project: component.Project,
			SHA:     sha,
		}, nil
	}
	return nil, errors.NewNotFoundError("component %s has no template %s", component.Project, component.Name)
}

// resolveVersion maps ~latest and partial versions (1, 1.2) to the highest
// matching released tag. Anything else is used as a ref.
func (c *Component) resolveVersion(ctx context.Context, component ComponentPath) (string, error) {
	version := component.Version
	if version != LatestVersion && !partialVersion.MatchString(version) {
		return version, nil
	}

	var constraint *semver.Constraints
	if version != LatestVersion {
		var err error
		if constraint, err = semver.NewConstraint(version + ".x"); err != nil {
			return "", errors.NewInvalidRequestError("invalid component version %s", version)
		}
	}

	tags, err := c.Repos.Tags(ctx, component.Project)
	if err != nil {
		return "", err
	}

	var best *semver.Version
	var bestTag string
	for _, tag := range tags {
		v, err := semver.NewVersion(tag)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if constraint != nil && !constraint.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestTag = v, tag
		}
	}
	if best == nil {
		return "", errors.NewNotFoundError("no released version of %s matches %s", component.Project, version)
	}
	return bestTag, nil
}
