//go:build js && wasm

// Package dom binds the ui flows to the browser document.
package dom

import (
	"bytes"
	"errors"
	"io"
	"syscall/js"

	"github.com/Brownie44l1/imageclassifier/internal/client"
	"github.com/Brownie44l1/imageclassifier/internal/ui"
)

type Document struct {
	doc js.Value
}

var _ ui.Document = (*Document)(nil)

func New() *Document {
	return &Document{doc: js.Global().Get("document")}
}

func (d *Document) ElementByID(id string) (ui.Element, bool) {
	v := d.doc.Call("getElementById", id)
	if v.IsNull() || v.IsUndefined() {
		return nil, false
	}
	return &element{v: v}, true
}

// Origin is the page origin, used as the gateway base URL.
func Origin() string {
	return js.Global().Get("location").Get("origin").String()
}

type element struct {
	v js.Value
}

func (e *element) Value() string {
	return e.v.Get("value").String()
}

func (e *element) Files() []client.File {
	list := e.v.Get("files")
	if list.IsNull() || list.IsUndefined() {
		return nil
	}

	n := list.Get("length").Int()
	files := make([]client.File, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, &file{v: list.Call("item", i)})
	}
	return files
}

func (e *element) SetText(text string) {
	e.v.Set("textContent", text)
}

func (e *element) SetHTML(markup string) {
	e.v.Set("innerHTML", markup)
}

func (e *element) SetSrc(src string) {
	e.v.Set("src", src)
}

// OnClick keeps the callback alive for the lifetime of the page.
func (e *element) OnClick(handler func()) {
	fn := js.FuncOf(func(this js.Value, args []js.Value) any {
		handler()
		return nil
	})
	e.v.Call("addEventListener", "click", fn)
}

type file struct {
	v js.Value
}

func (f *file) Name() string {
	return f.v.Get("name").String()
}

// Open reads the whole file. It waits on a promise, so it must not run on
// the event loop goroutine.
func (f *file) Open() (io.ReadCloser, error) {
	buf, err := await(f.v.Call("arrayBuffer"))
	if err != nil {
		return nil, err
	}

	arr := js.Global().Get("Uint8Array").New(buf)
	data := make([]byte, arr.Get("length").Int())
	js.CopyBytesToGo(data, arr)
	return io.NopCloser(bytes.NewReader(data)), nil
}

func await(promise js.Value) (js.Value, error) {
	values := make(chan js.Value, 1)
	errs := make(chan error, 1)

	onResolve := js.FuncOf(func(this js.Value, args []js.Value) any {
		values <- args[0]
		return nil
	})
	defer onResolve.Release()

	onReject := js.FuncOf(func(this js.Value, args []js.Value) any {
		errs <- errors.New(args[0].Call("toString").String())
		return nil
	})
	defer onReject.Release()

	promise.Call("then", onResolve, onReject)

	select {
	case v := <-values:
		return v, nil
	case err := <-errs:
		return js.Undefined(), err
	}
}
