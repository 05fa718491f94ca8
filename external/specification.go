package external

import (
	"path"
	"strings"

	"github.com/teranos/ciconf/document"
	"github.com/teranos/ciconf/rules"
)

// SourceKind is the closed set of places a fragment can come from.
type SourceKind int

const (
	SourceLocal SourceKind = iota + 1
	SourceRemote
	SourceTemplate
	SourceProject
	SourceComponent
)

// Include entry keys naming a source kind, in precedence-free order.
var sourceKeys = []string{"local", "remote", "template", "project", "component"}

func (k SourceKind) String() string {
	switch k {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	case SourceTemplate:
		return "template"
	case SourceProject:
		return "project"
	case SourceComponent:
		return "component"
	}
	return "unknown"
}

// label is how messages name a fragment of this kind.
func (k SourceKind) label() string {
	switch k {
	case SourceLocal:
		return "Local file"
	case SourceRemote:
		return "Remote file"
	case SourceTemplate:
		return "Template file"
	case SourceProject:
		return "Project file"
	case SourceComponent:
		return "Component"
	}
	return "File"
}

// Specification is one normalized include directive.
//
//	SourceLocal      Location is the repository path; Project and Ref are
//	                 the resolving project and commit
//	SourceRemote     Location is the URL
//	SourceTemplate   Location is the template name
//	SourceProject    Project, Location (file path) and optional Ref
//	SourceComponent  Location is host/group/project/name@version
type Specification struct {
	Kind     SourceKind
	Location string
	Project  string
	Ref      string
	Rules    []rules.Rule
	// Inputs are the arguments handed to the fragment's interpolation.
	Inputs *document.Map
	// Raw is the include entry as written, for messages.
	Raw any
}

// Identity is the part of a Specification that decides whether two
// includes refer to the same fragment.
type Identity struct {
	Kind     SourceKind
	Project  string
	Ref      string
	Location string
}

// Identity returns the normalized identity.
func (s Specification) Identity() Identity {
	id := Identity{Kind: s.Kind, Location: s.Location}
	switch s.Kind {
	case SourceLocal, SourceProject:
		id.Project = strings.ToLower(strings.Trim(s.Project, "/"))
		id.Ref = s.Ref
		id.Location = normalizePath(s.Location)
	}
	return id
}

// Display is the location as shown to the author.
func (s Specification) Display() string {
	if s.Kind == SourceProject {
		return s.Project + ":" + s.Location
	}
	return s.Location
}

// Render is the normalized specification as shown in duplicate and
// ambiguity messages.
func (s Specification) Render() string {
	m := document.New()
	m.Set(s.Kind.String(), s.Location)
	if s.Kind == SourceProject {
		m = document.FromPairs("project", s.Project, "file", s.Location)
		if s.Ref != "" {
			m.Set("ref", s.Ref)
		}
	}
	return document.Render(m)
}

func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean("/" + p)
}
