// Package sdm models the settings digest document embedded in a
// configuration item. It locates the script-annotated setting, extracts the
// embedded script bodies, and produces rewritten copies of the document
// without ever mutating the original.
package sdm

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/scriptsync/scriptsync/internal/script"
)

const (
	settingTag       = "SimpleSetting"
	annotationTag    = "Annotation"
	displayNameTag   = "DisplayName"
	textAttr         = "Text"
	scriptAnnotation = "Script"
	sourceTag        = "ScriptDiscoverySource"
	scriptTypeAttr   = "ScriptType"
)

// Package is a parsed settings digest document.
type Package struct {
	doc *etree.Document
}

// Parse reads a serialized digest document. Input that yields no root
// element is rejected.
func Parse(xmlText string) (*Package, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlText); err != nil {
		return nil, fmt.Errorf("reading digest document: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("digest document has no root element")
	}
	return &Package{doc: doc}, nil
}

// Script returns the embedded body for the given kind. The second return is
// false when the body element is absent, which is a valid state, not an
// error. An error means the document does not contain a usable script
// setting at all.
func (p *Package) Script(kind script.Kind) (string, bool, error) {
	source, err := p.source()
	if err != nil {
		return "", false, err
	}
	body := source.SelectElement(bodyTag(kind))
	if body == nil {
		return "", false, nil
	}
	return body.Text(), true, nil
}

// WithScripts returns a rewritten copy of the document with the supplied
// bodies replacing the embedded ones. A body element created from scratch
// carries a ScriptType attribute naming the script engine. The receiver is
// never modified; on error no copy is returned and the original document is
// intact.
func (p *Package) WithScripts(updates map[script.Kind]string, engine string) (*Package, error) {
	next := &Package{doc: p.doc.Copy()}
	source, err := next.source()
	if err != nil {
		return nil, err
	}

	for _, kind := range script.Kinds() {
		body, ok := updates[kind]
		if !ok {
			continue
		}
		el := source.SelectElement(bodyTag(kind))
		if el == nil {
			el = source.CreateElement(bodyTag(kind))
			el.CreateAttr(scriptTypeAttr, engine)
		}
		el.SetText(body)
	}
	return next, nil
}

// XML serializes the document, preserving everything outside the rewritten
// script bodies.
func (p *Package) XML() (string, error) {
	return p.doc.WriteToString()
}

// source locates the ScriptDiscoverySource of the script-annotated setting.
// Settings are scanned in document order by explicit index; the first
// setting whose annotation display name is "Script" is authoritative. The
// same walk serves documents with one setting or many.
func (p *Package) source() (*etree.Element, error) {
	settings := p.doc.FindElements("//" + settingTag)
	for i, setting := range settings {
		if !scriptAnnotated(setting) {
			continue
		}
		source := setting.SelectElement(sourceTag)
		if source == nil {
			return nil, fmt.Errorf("script setting at index %d has no %s element", i, sourceTag)
		}
		return source, nil
	}
	return nil, fmt.Errorf("no %s annotated %q among %d settings", settingTag, scriptAnnotation, len(settings))
}

func scriptAnnotated(setting *etree.Element) bool {
	annotation := setting.SelectElement(annotationTag)
	if annotation == nil {
		return false
	}
	display := annotation.SelectElement(displayNameTag)
	if display == nil {
		return false
	}
	return display.SelectAttrValue(textAttr, "") == scriptAnnotation
}

func bodyTag(kind script.Kind) string {
	return kind.String() + "Body"
}
