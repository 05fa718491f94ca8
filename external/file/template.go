package file

import (
	"context"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-getter"
	"github.com/spf13/afero"
	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/external"
	"github.com/teranos/ciconf/logger"
	"go.uber.org/zap"
)

// Template file suffixes, tried in order for a bare template name.
var templateSuffixes = []string{".gitlab-ci.yml", ".yml"}

// Catalog is a directory of named templates.
type Catalog struct {
	Fs  afero.Fs
	Dir string
	// Source is a go-getter URL synced into Dir by Sync.
	Source string

	logger *zap.SugaredLogger
}

// NewCatalog returns a Catalog rooted at dir on fs.
func NewCatalog(fs afero.Fs, dir, source string) *Catalog {
	return &Catalog{Fs: fs, Dir: dir, Source: source, logger: logger.ComponentLogger("file.templates")}
}

// Sync fetches Source into Dir with go-getter. It writes to the operating
// system filesystem, so it is only meaningful for a Catalog over
// afero.NewOsFs. An empty Source is a no-op.
func (c *Catalog) Sync(ctx context.Context) error {
	if c.Source == "" {
		return nil
	}
	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     c.Source,
		Dst:     c.Dir,
		Pwd:     pwd,
		Mode:    getter.ClientModeDir,
		Getters: getter.Getters,
	}
	c.logger.Infow("Syncing template catalog", "source", c.Source, "dir", c.Dir)
	if err := client.Get(); err != nil {
		return errors.Wrapf(err, "failed to sync templates from %s", c.Source)
	}
	return nil
}

// Read returns the content of the named template and the file it came
// from. A name without a .yml suffix is tried as <name>.gitlab-ci.yml and
// then <name>.yml.
func (c *Catalog) Read(name string) ([]byte, string, error) {
	if !validPath(name) || strings.HasPrefix(name, "/") {
		return nil, "", errors.NewInvalidRequestError("invalid template name %q", name)
	}

	candidates := []string{name}
	if !strings.HasSuffix(name, ".yml") {
		candidates = candidates[:0]
		for _, suffix := range templateSuffixes {
			candidates = append(candidates, name+suffix)
		}
	}

	for _, candidate := range candidates {
		file := path.Join(c.Dir, candidate)
		content, err := afero.ReadFile(c.Fs, file)
		if err == nil {
			return content, candidate, nil
		}
		if !os.IsNotExist(err) {
			return nil, "", errors.Wrapf(err, "failed to read template %s", candidate)
		}
	}
	return nil, "", errors.NewNotFoundError("template %s not found", name)
}

// Names lists the template files of the catalog.
func (c *Catalog) Names() ([]string, error) {
	var names []string
	err := afero.Walk(c.Fs, c.Dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(p, ".yml") {
			names = append(names, strings.TrimPrefix(strings.TrimPrefix(p, c.Dir), "/"))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list templates")
	}
	return names, nil
}

// Template reads named templates from a Catalog.
type Template struct {
	Catalog *Catalog
}

// Load reads the template spec.Location names.
func (t *Template) Load(_ context.Context, spec external.Specification, _ *external.Context) (*external.Fragment, error) {
	content, file, err := t.Catalog.Read(spec.Location)
	if err != nil {
		return nil, err
	}
	return &external.Fragment{
		Content:     content,
		Location:    spec.Location,
		ExtraParams: map[string]string{"file": file},
	}, nil
}
