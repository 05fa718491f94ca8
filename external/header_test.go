package external

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/ciconf/variables"
)

const deployWithHeaderInclude = `spec:
  include:
    - local: /inputs/shared.yml
  inputs:
    website:
---
deploy:
  script: deploy $[[ inputs.website ]] to $[[ inputs.stage ]]
`

func TestHeaderInclude_MergesInputs(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/deploy.yml":        deployWithHeaderInclude,
		"local:/inputs/shared.yml": "inputs:\n  stage:\n    default: staging\n",
	})
	root := "include:\n  local: /deploy.yml\n  inputs:\n    website: gitlab.com\n"

	out, rc, err := perform(t, loader, root, Options{InterpolationEnabled: true})
	require.NoError(t, err)

	deploy, _ := out.GetMap("deploy")
	script, _ := deploy.GetString("script")
	assert.Equal(t, "deploy gitlab.com to staging", script)

	// The header include is not a fragment of the tree.
	assert.Len(t, rc.Visited(), 1)
	assert.Len(t, rc.Includes(), 1)
}

func TestHeaderInclude_SharedByTwoFragments(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/a.yml":             "spec:\n  include: /inputs/shared.yml\n---\na: $[[ inputs.stage ]]\n",
		"local:/b.yml":             "spec:\n  include: /inputs/shared.yml\n---\nb: $[[ inputs.stage ]]\n",
		"local:/inputs/shared.yml": "inputs:\n  stage:\n    default: test\n",
	})

	out, _, err := perform(t, loader, "include: [/a.yml, /b.yml]\n", Options{InterpolationEnabled: true})
	require.NoError(t, err)
	a, _ := out.GetString("a")
	b, _ := out.GetString("b")
	assert.Equal(t, "test", a)
	assert.Equal(t, "test", b)
}

func TestHeaderInclude_Errors(t *testing.T) {
	tests := []struct {
		name   string
		shared string
		kind   ErrorKind
		want   string
	}{
		{
			name:   "unknown keys",
			shared: "inputs:\n  stage:\ntest: 1\n",
			kind:   KindInclude,
			want:   "Header include file `/inputs/shared.yml` contains unknown keys: [test]",
		},
		{
			name:   "nested include key",
			shared: "include: /other.yml\ninputs:\n  stage:\n",
			kind:   KindInclude,
			want:   "Header include file `/inputs/shared.yml` contains unknown keys: [include]",
		},
		{
			name:   "empty file",
			shared: "",
			kind:   KindInclude,
			want:   "Local file `/inputs/shared.yml` is empty!",
		},
		{
			name:   "duplicate with inline input",
			shared: "inputs:\n  website:\n  stage:\n",
			kind:   KindDuplicateInput,
			want:   "Duplicate input keys found: website. Input keys must be unique across all included files and inline specifications.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := newMemoryLoader(map[string]string{
				"local:/deploy.yml":        deployWithHeaderInclude,
				"local:/inputs/shared.yml": tt.shared,
			})
			root := "include:\n  local: /deploy.yml\n  inputs:\n    website: gitlab.com\n"

			_, _, err := perform(t, loader, root, Options{InterpolationEnabled: true})
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind))
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestHeaderInclude_DuplicatesAcrossFiles(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/deploy.yml": "spec:\n  include: [/one.yml, /two.yml]\n  inputs:\n    c:\n---\nx: 1\n",
		"local:/one.yml":    "inputs:\n  a:\n  b:\n",
		"local:/two.yml":    "inputs:\n  b:\n  a:\n  c:\n",
	})

	_, _, err := perform(t, loader, "include: /deploy.yml\n", Options{InterpolationEnabled: true})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindDuplicateInput))
	assert.Contains(t, err.Error(), "Duplicate input keys found: b, a, c.")
}

func TestHeaderInclude_NilInputs(t *testing.T) {
	loader := newMemoryLoader(map[string]string{
		"local:/deploy.yml": "spec:\n  include: /none.yml\n  inputs:\n    stage:\n      default: prod\n---\nx: $[[ inputs.stage ]]\n",
		"local:/none.yml":   "inputs:\n",
	})

	out, _, err := perform(t, loader, "include: /deploy.yml\n", Options{InterpolationEnabled: true})
	require.NoError(t, err)
	x, _ := out.GetString("x")
	assert.Equal(t, "prod", x)
}

func TestHeaderInclude_Rules(t *testing.T) {
	files := map[string]string{
		"local:/a.yml":        "spec:\n  include:\n    - local: /inputs/x.yml\n      rules:\n        - if: '$DEPLOY == \"yes\"'\n  inputs:\n    stage:\n      default: inline\n---\na: $[[ inputs.stage ]]\n",
		"local:/inputs/x.yml": "inputs:\n  stage:\n    default: shared\n",
	}

	t.Run("failing rule skips the file", func(t *testing.T) {
		loader := newMemoryLoader(files)
		out, _, err := perform(t, loader, "include: /a.yml\n", Options{InterpolationEnabled: true})
		require.NoError(t, err)
		a, _ := out.GetString("a")
		assert.Equal(t, "inline", a)
		assert.Equal(t, []string{"local:/a.yml"}, loader.Calls())
	})

	t.Run("passing rule loads the file", func(t *testing.T) {
		loader := newMemoryLoader(files)
		_, _, err := perform(t, loader, "include: /a.yml\n", Options{
			InterpolationEnabled: true,
			Variables:            variables.New(variables.Variable{Key: "DEPLOY", Value: "yes"}),
		})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindDuplicateInput))
		assert.Equal(t, []string{"local:/a.yml", "local:/inputs/x.yml"}, loader.Calls())
	})
}
