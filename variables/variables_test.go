package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectionOrder(t *testing.T) {
	c := New(
		Variable{Key: "CI_COMMIT_REF_NAME", Value: "main"},
		Variable{Key: "DEPLOY", Value: "true"},
	)
	c.Set("ci_lowercase", "x")
	c.Set("CI_COMMIT_REF_NAME", "feature")

	assert.Equal(t, []Variable{
		{Key: "CI_COMMIT_REF_NAME", Value: "feature"},
		{Key: "DEPLOY", Value: "true"},
		{Key: "ci_lowercase", Value: "x"},
	}, c.Items())
	assert.Equal(t, 3, c.Len())

	_, ok := c.Lookup("ci_commit_ref_name")
	assert.False(t, ok, "keys are case sensitive")
}

func TestFromMapSortsKeys(t *testing.T) {
	c := FromMap(map[string]string{"B": "2", "A": "1"})
	assert.Equal(t, []Variable{{Key: "A", Value: "1"}, {Key: "B", Value: "2"}}, c.Items())
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, c.ToMap())
}

func TestCopyIsIndependent(t *testing.T) {
	c := New(Variable{Key: "A", Value: "1"})
	cp := c.Copy()
	cp.Set("A", "2")

	v, _ := c.Lookup("A")
	assert.Equal(t, "1", v)
}

func TestNilCollection(t *testing.T) {
	var c *Collection
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Items())
	assert.Equal(t, "/ci/.yml", c.Expand("/ci/$MISSING.yml"))
}

func TestExpand(t *testing.T) {
	c := New(
		Variable{Key: "CI_PROJECT_PATH", Value: "group/app"},
		Variable{Key: "REF", Value: "v1.2"},
	)

	tests := []struct {
		input string
		want  string
	}{
		{"/templates/plain.yml", "/templates/plain.yml"},
		{"https://example.com/$CI_PROJECT_PATH/ci.yml", "https://example.com/group/app/ci.yml"},
		{"${REF}-suffix", "v1.2-suffix"},
		{"$REF_SUFFIX", ""},
		{"$UNKNOWN/ci.yml", "/ci.yml"},
		{"cost: $$5", "cost: $5"},
		{"$", "$"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Expand(tt.input))
		})
	}
}

func TestReferences(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, References("$A/${B}/$A/$$C"))
	assert.Empty(t, References("no refs"))
}
