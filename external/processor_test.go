package external

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/ciconf/document"
	"github.com/teranos/ciconf/errors"
	"github.com/teranos/ciconf/metrics"
	"github.com/teranos/ciconf/variables"
)

func perform(t *testing.T, loader Loader, root string, opts Options, popts ...ProcessorOption) (*document.Map, *Context, error) {
	t.Helper()
	if opts.Project == "" {
		opts.Project = "group/app"
		opts.SHA = "abc123"
	}
	rc := NewContext(opts)
	out, err := NewProcessor(loader, popts...).Perform(context.Background(), document.MustParse(root), rc)
	return out, rc, err
}

func TestPerform_DocumentWithoutIncludeIsUnchanged(t *testing.T) {
	loader := newMemoryLoader(nil)
	root := "stages: [build]\nbuild:\n  script: make\n"

	out, _, err := perform(t, loader, root, Options{})
	require.NoError(t, err)
	assert.True(t, document.Equal(document.MustParse(root), out))
	assert.Empty(t, loader.Calls())
}

func TestPerform_SingleIncludeOfEachKind(t *testing.T) {
	tests := []struct {
		name    string
		include string
		key     string
	}{
		{"local", "include:\n  local: /ci/build.yml\n", "local:/ci/build.yml"},
		{"remote", "include:\n  remote: https://example.com/ci.yml\n", "remote:https://example.com/ci.yml"},
		{"template", "include:\n  template: Go.gitlab-ci.yml\n", "template:Go.gitlab-ci.yml"},
		{"project", "include:\n  project: group/lib\n  file: /ci.yml\n", "project:group/lib:/ci.yml"},
		{"component", "include:\n  component: example.com/group/lib/build@1.0.0\n", "component:example.com/group/lib/build@1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newMemoryLoader(map[string]string{
				tt.key: "build:\n  script: from-include\nlint:\n  script: golangci-lint run\n",
			})

			out, rc, err := perform(t, loader, tt.include+"build:\n  script: from-root\n", Options{})
			require.NoError(t, err)

			assert.Equal(t, []string{"build", "lint"}, out.Keys())
			build, _ := out.GetMap("build")
			script, _ := build.GetString("script")
			assert.Equal(t, "from-root", script)
			assert.False(t, out.Has(IncludeKey))
			assert.Len(t, rc.Includes(), 1)
		})
	}
}

func TestPerform_FirstDeclaredIncludeWins(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/first.yml":  "image: golang:1.24\nfirst: true\n",
		"local:/second.yml": "image: alpine\nsecond: true\n",
	})

	out, _, err := perform(t, loader, "include: [/first.yml, /second.yml]\n", Options{})
	require.NoError(t, err)

	image, _ := out.GetString("image")
	assert.Equal(t, "golang:1.24", image)
	assert.Equal(t, []string{"image", "first", "second"}, out.Keys())
}

func TestPerform_RootWinsRegardlessOfPosition(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/a.yml": "variables:\n  FROM: include\n",
	})

	out, _, err := perform(t, loader, "variables:\n  FROM: root\ninclude: /a.yml\n", Options{})
	require.NoError(t, err)

	vars, _ := out.GetMap("variables")
	from, _ := vars.GetString("FROM")
	assert.Equal(t, "root", from)
}

func TestPerform_ExistsRuleFollowsTree(t *testing.T) {
	files := map[string]string{"local:/docker.yml": "docker-build:\n  script: docker build .\n"}
	root := `
include:
  - local: /docker.yml
    rules:
      - exists: Dockerfile
`

	t.Run("without Dockerfile", func(t *testing.T) {
		loader := newMemoryLoader(files)
		out, rc, err := perform(t, loader, root, Options{Trees: staticTrees{"README.md", "main.go"}})
		require.NoError(t, err)
		assert.False(t, out.Has("docker-build"))
		assert.Empty(t, loader.Calls())
		assert.Empty(t, rc.Includes())
	})

	t.Run("with Dockerfile", func(t *testing.T) {
		loader := newMemoryLoader(files)
		out, rc, err := perform(t, loader, root, Options{Trees: staticTrees{"README.md", "Dockerfile"}})
		require.NoError(t, err)
		assert.True(t, out.Has("docker-build"))
		assert.Len(t, rc.Includes(), 1)
	})
}

func TestPerform_IfRuleUsesVariables(t *testing.T) {
	files := map[string]string{"local:/deploy.yml": "deploy:\n  script: ./deploy\n"}
	root := "include:\n  local: /deploy.yml\n  rules:\n    - if: $CI_COMMIT_BRANCH == \"main\"\n"

	out, _, err := perform(t, newMemoryLoader(files), root, Options{
		Variables: variables.New(variables.Variable{Key: "CI_COMMIT_BRANCH", Value: "main"}),
	})
	require.NoError(t, err)
	assert.True(t, out.Has("deploy"))

	out, _, err = perform(t, newMemoryLoader(files), root, Options{})
	require.NoError(t, err)
	assert.False(t, out.Has("deploy"))
}

func TestPerform_InterpolatesInputs(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/deploy.yml": "spec:\n  inputs:\n    website:\n---\ntest: deploy $[[ inputs.website ]]\n",
	})
	root := "include:\n  local: /deploy.yml\n  inputs:\n    website: gitlab.com\n"

	tracker := &recordingTracker{}
	out, _, err := perform(t, loader, root, Options{InterpolationEnabled: true, User: "user-1"}, WithUsageTracker(tracker))
	require.NoError(t, err)

	value, _ := out.GetString("test")
	assert.Equal(t, "deploy gitlab.com", value)
	assert.False(t, out.Has("spec"))
	assert.Equal(t, []string{"user-1"}, tracker.users)
}

func TestPerform_InterpolationDisabledContributesNothing(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/deploy.yml": "spec:\n  inputs:\n    website:\n---\ntest: deploy $[[ inputs.website ]]\n",
	})
	root := "include:\n  local: /deploy.yml\n  inputs:\n    website: gitlab.com\nbuild:\n  script: make\n"

	out, _, err := perform(t, loader, root, Options{InterpolationEnabled: false})
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, out.Keys())
}

func TestPerform_InterpolationErrors(t *testing.T) {
	fragment := "spec:\n  inputs:\n    website:\n---\ntest: deploy $[[ inputs.website ]] $[[ inputs.abc ]]\n"

	tests := []struct {
		name   string
		inputs string
		want   string
	}{
		{"unknown key", "    website: gitlab.com\n", "unknown interpolation key: `abc`"},
		{"array for scalar", "    website: [gitlab.com]\n", "unsupported value in input argument `website`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newMemoryLoader(map[string]string{"local:/deploy.yml": fragment})
			root := "include:\n  local: /deploy.yml\n  inputs:\n" + tt.inputs

			_, _, err := perform(t, loader, root, Options{InterpolationEnabled: true})
			require.Error(t, err)
			assert.True(t, IsKind(err, KindInclude))
			assert.Equal(t, ReasonInterpolation, ReasonOf(err))
			assert.Contains(t, err.Error(), "`/deploy.yml`: interpolation interrupted by errors, ")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPerform_TreeWideCeiling(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/a.yml": "include: /b.yml\na: 1\n",
		"local:/b.yml": "b: 1\n",
	})

	_, _, err := perform(t, loader, "include: /a.yml\n", Options{MaxIncludes: 1})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTooManyIncludes))
	assert.Contains(t, err.Error(), "1")
	assert.Equal(t, "Maximum of 1 nested includes are allowed!", err.Error())
}

func TestPerform_SiblingBranchesShareCeiling(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/a.yml":  "include: /a1.yml\n",
		"local:/a1.yml": "a1: 1\n",
		"local:/b.yml":  "include: /b1.yml\n",
		"local:/b1.yml": "b1: 1\n",
	})

	_, _, err := perform(t, loader, "include: [/a.yml, /b.yml]\n", Options{MaxIncludes: 3})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTooManyIncludes))

	out, rc, err := perform(t, loader, "include: [/a.yml, /b.yml]\n", Options{MaxIncludes: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b1"}, out.Keys())
	assert.Len(t, rc.Visited(), 4)
}

func TestPerform_InternalIncludeDoesNotCount(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/a.yml": "a: 1\n",
		"local:/b.yml": "b: 1\n",
		"local:/c.yml": "c: 1\n",
	})

	_, _, err := perform(t, loader, "include: [/a.yml, /b.yml]\n", Options{MaxIncludes: 1, PipelineConfig: internalInclude(true)})
	require.NoError(t, err)

	_, _, err = perform(t, loader, "include: [/a.yml, /b.yml, /c.yml]\n", Options{MaxIncludes: 1, PipelineConfig: internalInclude(true)})
	require.Error(t, err)
	assert.Equal(t, "Maximum of 1 nested includes are allowed!", err.Error())
}

func TestPerform_DuplicateAcrossTree(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/a.yml": "a: 1\n",
		"local:/b.yml": "include: /a.yml\nb: 1\n",
	})

	_, _, err := perform(t, loader, "include: [/a.yml, /b.yml]\n", Options{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindDuplicateIncludes))
	assert.Contains(t, err.Error(), "/a.yml")
}

func TestPerform_AmbiguousSpecificationBeforeFetch(t *testing.T) {
	loader := newMemoryLoader(map[string]string{"local:/a.yml": "a: 1\n"})
	root := "include:\n  - local: /a.yml\n  - local: /b.yml\n    remote: https://example.com/b.yml\n"

	_, _, err := perform(t, loader, root, Options{})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindAmbiguousSpecification))
	assert.Empty(t, loader.Calls())
}

func TestPerform_Idempotent(t *testing.T) {
	loader := newMemoryLoader(map[string]string{"local:/a.yml": "a: 1\n"})

	first, _, err := perform(t, loader, "include: /a.yml\nroot: true\n", Options{})
	require.NoError(t, err)

	rc := NewContext(Options{})
	second, err := NewProcessor(loader).Perform(context.Background(), first, rc)
	require.NoError(t, err)
	assert.True(t, document.Equal(first, second))
}

func TestPerform_NestedProjectSwitchesContext(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"project:group/lib:/ci.yml": "include: /jobs.yml\nlib: true\n",
		"local:/jobs.yml":           "jobs: true\n",
	})
	root := "include:\n  project: group/lib\n  ref: v1\n  file: /ci.yml\n"

	out, rc, err := perform(t, loader, root, Options{Project: "group/app", SHA: "abc123"})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib", "jobs"}, out.Keys())

	records := rc.Includes()
	require.Len(t, records, 2)

	assert.Equal(t, SourceLocal, records[0].Kind)
	assert.Equal(t, "/jobs.yml", records[0].Location)
	assert.Equal(t, "group/lib", records[0].ContextProject)
	assert.Equal(t, "sha-group/lib", records[0].ContextSHA)

	assert.Equal(t, SourceProject, records[1].Kind)
	assert.Equal(t, "group/app", records[1].ContextProject)
	assert.Equal(t, "abc123", records[1].ContextSHA)
	assert.Equal(t, "v1", records[1].ExtraParams["ref"])
}

func TestPerform_NestingBudget(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/a.yml": "include: /b.yml\n",
		"local:/b.yml": "include: /c.yml\n",
		"local:/c.yml": "c: 1\n",
	})

	_, _, err := perform(t, loader, "include: /a.yml\n", Options{MaxNesting: 1})
	require.Error(t, err)
	assert.Equal(t, ReasonNestingTooDeep, ReasonOf(err))

	out, _, err := perform(t, loader, "include: /a.yml\n", Options{MaxNesting: 2})
	require.NoError(t, err)
	assert.True(t, out.Has("c"))
}

func TestPerform_SharedDeadline(t *testing.T) {
	clock := newFakeClock()
	inner := newMemoryLoader(map[string]string{
		"local:/a.yml": "a: 1\n",
		"local:/b.yml": "b: 1\n",
		"local:/c.yml": "c: 1\n",
	})
	slow := LoaderFunc(func(ctx context.Context, spec Specification, rc *Context) (*Fragment, error) {
		clock.Advance(20 * time.Second)
		return inner.Load(ctx, spec, rc)
	})

	_, _, err := perform(t, slow, "include: [/a.yml, /b.yml, /c.yml]\n", Options{Clock: clock.Now, Timeout: 30 * time.Second})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout))
	assert.Equal(t, "Resolving config took longer than expected", err.Error())
	assert.Len(t, inner.Calls(), 2)
}

func TestPerform_DeadlinePassedBeforeStart(t *testing.T) {
	clock := newFakeClock()
	rc := NewContext(Options{Clock: clock.Now, Timeout: time.Second})
	clock.Advance(2 * time.Second)

	_, err := NewProcessor(newMemoryLoader(nil)).Perform(context.Background(), document.MustParse("a: 1\n"), rc)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTimeout))
}

func TestPerform_LoadFailures(t *testing.T) {
	tests := []struct {
		name   string
		root   string
		key    string
		err    error
		reason Reason
		want   string
	}{
		{
			name:   "missing local file",
			root:   "include: /missing.yml\n",
			reason: ReasonNotFound,
			want:   "Local file `/missing.yml` does not exist!",
		},
		{
			name:   "project access denied",
			root:   "include:\n  project: group/secret\n  file: /a.yml\n",
			key:    "project:group/secret:/a.yml",
			err:    errors.NewForbiddenError("no access"),
			reason: ReasonAccessDenied,
			want:   "Project file `group/secret:/a.yml` not found or access denied!",
		},
		{
			name:   "remote tls",
			root:   "include: https://example.com/a.yml\n",
			key:    "remote:https://example.com/a.yml",
			err:    errors.Mark(errors.New("x509: unknown authority"), errors.ErrTLS),
			reason: ReasonTLS,
			want:   "Remote file `https://example.com/a.yml` could not be fetched because of SSL error!",
		},
		{
			name:   "remote socket",
			root:   "include: https://example.com/a.yml\n",
			key:    "remote:https://example.com/a.yml",
			err:    errors.Mark(errors.New("connection refused"), errors.ErrNetwork),
			reason: ReasonSocket,
			want:   "Remote file `https://example.com/a.yml` could not be fetched because of a socket error!",
		},
		{
			name:   "remote timeout",
			root:   "include: https://example.com/a.yml\n",
			key:    "remote:https://example.com/a.yml",
			err:    errors.Mark(errors.New("deadline exceeded"), errors.ErrTimeout),
			reason: ReasonSocket,
			want:   "Remote file `https://example.com/a.yml` could not be fetched because of a timeout error!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newMemoryLoader(nil)
			if tt.key != "" {
				loader.fail[tt.key] = tt.err
			}
			_, _, err := perform(t, loader, tt.root, Options{})
			require.Error(t, err)
			assert.True(t, IsKind(err, KindInclude))
			assert.Equal(t, tt.reason, ReasonOf(err))
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestPerform_EmptyAndInvalidFragments(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/empty.yml": "  \n",
		"local:/bad.yml":   "key: [unclosed\n",
	})

	_, _, err := perform(t, loader, "include: /empty.yml\n", Options{})
	require.Error(t, err)
	assert.Equal(t, ReasonEmpty, ReasonOf(err))
	assert.Equal(t, "Local file `/empty.yml` is empty!", err.Error())

	_, _, err = perform(t, loader, "include: /bad.yml\n", Options{})
	require.Error(t, err)
	assert.Equal(t, ReasonInvalidYAML, ReasonOf(err))
	assert.Equal(t, "Included file `/bad.yml` does not have valid YAML syntax!", err.Error())
}

func TestPerform_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	loader := newMemoryLoader(map[string]string{
		"local:/a.yml": "a: 1\n",
		"local:/b.yml": "b: 1\n",
	})
	root := "include:\n  - /a.yml\n  - local: /b.yml\n    rules:\n      - if: $NEVER\n"

	_, _, err := perform(t, loader, root, Options{}, WithMetrics(m))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FragmentsLoaded.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FragmentsSkipped.WithLabelValues("local")))

	_, _, err = perform(t, loader, "include: /missing.yml\n", Options{}, WithMetrics(m))
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolutionErrors.WithLabelValues("include", "not_found")))
}
