// Package ditaxml holds the XML plumbing shared by the native transformation
// programs and the pipeline stages: loading and saving documents with etree,
// conref and href parsing, identifier attributes and the rename plan that
// links the two phases of identifier uniquification.
package ditaxml

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// Load parses an XML document. Non UTF-8 encodings declared in the prolog are
// decoded through x/net charset, and the HTML entity set stands in for DTD
// declared entities. External DTDs and entities are never fetched.
func Load(path string) (*etree.Document, error) {
	doc := NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("parse %s: no root element", path)
	}
	return doc, nil
}

// Parse is Load for in-memory content.
func Parse(data []byte) (*etree.Document, error) {
	doc := NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("no root element")
	}
	return doc, nil
}

// NewDocument returns an empty document with the read settings used across
// the pipeline.
func NewDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	doc.ReadSettings.Entity = xml.HTMLEntity
	return doc
}

// Save writes doc to path through a temporary file in the same directory, so
// readers never observe a partially written document.
func Save(doc *etree.Document, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := doc.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
