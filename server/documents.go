package server

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wolfeidau/widgethost/frame"
	"github.com/wolfeidau/widgethost/telemetry"
)

// viewMetaName is the meta tag the bridge shim reads to learn which view it
// was loaded as.
const viewMetaName = "widgethost-view"

// documents renders widget documents with the shared stylesheets and the
// bridge shim injected into <head>.
type documents struct {
	root        string
	stylesheets []string
	shim        string
}

func newDocuments(root string, stylesheets []string, shim string) *documents {
	return &documents{root: root, stylesheets: stylesheets, shim: shim}
}

// render reads doc from disk and returns the injected HTML and its ETag.
func (d *documents) render(doc frame.Document) ([]byte, string, error) {
	raw, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(doc.Path())))
	if err != nil {
		return nil, "", err
	}

	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", doc.Path(), err)
	}

	head := findElement(root, atom.Head)
	if head == nil {
		return nil, "", fmt.Errorf("parsing %s: no head element", doc.Path())
	}

	// shared styles go first so the widget's own rules win
	first := head.FirstChild
	head.InsertBefore(element(atom.Meta, "name", viewMetaName, "content", string(doc.View)), first)
	for _, href := range d.stylesheets {
		head.InsertBefore(element(atom.Link, "rel", "stylesheet", "href", href), first)
	}
	head.AppendChild(element(atom.Script, "src", d.shim))

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, "", fmt.Errorf("rendering %s: %w", doc.Path(), err)
	}

	sum := blake3.Sum256(buf.Bytes())
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`
	return buf.Bytes(), etag, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// element builds an element node from alternating attribute keys and values.
func element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	telemetry.SetSurface(r, telemetry.SurfaceDocument)
	telemetry.SetEndpoint(r, "document")

	k, ok := s.runtime.Registry().Lookup(r.PathValue("kind"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	var doc frame.Document
	switch r.PathValue("doc") {
	case "index.html":
		doc = k.DisplayDocument()
	case "settings.html":
		if !k.HasSettingsView {
			http.NotFound(w, r)
			return
		}
		doc = k.SettingsDocument()
	default:
		http.NotFound(w, r)
		return
	}

	body, etag, err := s.documents.render(doc)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error("rendering widget document", "document", doc.String(), "error", err)
		http.Error(w, "rendering document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}
