package interpolation

import (
	"github.com/teranos/ciconf/document"
)

const headerKey = "spec"

// Document is a loaded fragment split into its optional `spec:` header and
// its body. A fragment has a header when it holds at least two YAML
// documents and the first carries a `spec` key:
//
//	spec:
//	  inputs:
//	    website:
//	---
//	deploy:
//	  script: deploy $[[ inputs.website ]]
type Document struct {
	// Header is the value of the `spec` key, nil without a header.
	Header  any
	Content *document.Map
	// Err is the parse failure, if the raw bytes were not valid YAML.
	Err error

	hasHeader bool
}

// Load parses raw fragment bytes. A parse failure is kept on the Document,
// not returned, so the interpolator can report it in order.
func Load(raw []byte) *Document {
	docs, err := document.ParseAll(raw)
	if err != nil {
		return &Document{Content: document.New(), Err: err}
	}
	return FromDocuments(docs...)
}

// FromDocuments builds a Document from already parsed YAML documents.
func FromDocuments(docs ...*document.Map) *Document {
	switch {
	case len(docs) == 0:
		return &Document{Content: document.New()}
	case len(docs) > 1 && docs[0].Has(headerKey):
		header, _ := docs[0].Get(headerKey)
		return &Document{Header: header, Content: docs[1], hasHeader: true}
	default:
		return &Document{Content: docs[0]}
	}
}

// WithHeader builds a Document with an explicit header value.
func WithHeader(header any, content *document.Map) *Document {
	return &Document{Header: header, Content: content, hasHeader: true}
}

// Valid reports whether the fragment parsed.
func (d *Document) Valid() bool {
	return d.Err == nil
}

// HasHeader reports whether the fragment declared a `spec:` header.
func (d *Document) HasHeader() bool {
	return d.Valid() && d.hasHeader
}

// HeaderMap returns the header as a Map when it is one.
func (d *Document) HeaderMap() (*document.Map, bool) {
	m, ok := d.Header.(*document.Map)
	return m, ok
}

// Inputs returns the header's `inputs` value, if the header is a Map.
func (d *Document) Inputs() *document.Map {
	header, ok := d.HeaderMap()
	if !ok {
		return nil
	}
	inputs, _ := header.GetMap("inputs")
	return inputs
}
