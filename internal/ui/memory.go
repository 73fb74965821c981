package ui

import (
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/Brownie44l1/imageclassifier/internal/client"
)

// MemoryDocument is an in-process Document. Element writes are serialised per
// element but not ordered across goroutines.
type MemoryDocument struct {
	mu       sync.Mutex
	elements map[string]*MemoryElement
}

var _ Document = (*MemoryDocument)(nil)

func NewMemoryDocument(ids ...string) *MemoryDocument {
	doc := &MemoryDocument{elements: make(map[string]*MemoryElement)}
	for _, id := range ids {
		doc.Add(id)
	}
	return doc
}

func (d *MemoryDocument) Add(id string) *MemoryElement {
	d.mu.Lock()
	defer d.mu.Unlock()

	el := &MemoryElement{id: id}
	d.elements[id] = el
	return el
}

func (d *MemoryDocument) ElementByID(id string) (Element, bool) {
	el := d.Element(id)
	if el == nil {
		return nil, false
	}
	return el, true
}

// Element returns the element with the given id, or nil.
func (d *MemoryDocument) Element(id string) *MemoryElement {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elements[id]
}

func (d *MemoryDocument) Click(id string) error {
	el := d.Element(id)
	if el == nil {
		return fmt.Errorf("element %q not found", id)
	}
	el.Click()
	return nil
}

type MemoryElement struct {
	mu       sync.Mutex
	id       string
	value    string
	files    []client.File
	content  string
	markup   bool
	src      string
	handlers []func()
}

var _ Element = (*MemoryElement)(nil)

func (e *MemoryElement) ID() string {
	return e.id
}

func (e *MemoryElement) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

func (e *MemoryElement) SetValue(value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = value
}

func (e *MemoryElement) Files() []client.File {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]client.File(nil), e.files...)
}

func (e *MemoryElement) SetFiles(files ...client.File) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.files = files
}

func (e *MemoryElement) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.content, e.markup = text, false
}

func (e *MemoryElement) SetHTML(markup string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.content, e.markup = markup, true
}

// Text is the element's text content.
func (e *MemoryElement) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.markup {
		return PlainText(e.content)
	}
	return e.content
}

// HTML is the element's inner markup.
func (e *MemoryElement) HTML() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.markup {
		return e.content
	}
	return html.EscapeString(e.content)
}

func (e *MemoryElement) Src() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src
}

func (e *MemoryElement) SetSrc(src string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src = src
}

func (e *MemoryElement) OnClick(handler func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
}

func (e *MemoryElement) Click() {
	e.mu.Lock()
	handlers := append([]func(){}, e.handlers...)
	e.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

var lineBreak = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n")

// PlainText renders the markup the flows produce as terminal text: line
// breaks become newlines and entities are decoded. Other tags are kept.
func PlainText(markup string) string {
	lines := strings.Split(lineBreak.Replace(markup), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(html.UnescapeString(line))
	}
	return strings.Join(lines, "\n")
}
