package scrape

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the readable part of a page.
type Document struct {
	Title   string
	Summary string
	Text    string
}

var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Button:   true,
}

var headings = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// Extract pulls the title, description and body text out of an HTML page.
// Headings become # lines and list items "- " lines.
func Extract(page string) (Document, error) {
	root, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return Document{}, err
	}

	var doc Document
	var ogTitle, ogDesc string
	var article, mainNode, body *html.Node
	var scan func(*html.Node)
	scan = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if doc.Title == "" {
					doc.Title = collapse(text(n))
				}
			case atom.Meta:
				content := strings.TrimSpace(attr(n, "content"))
				switch strings.ToLower(attr(n, "name") + attr(n, "property")) {
				case "description":
					doc.Summary = content
				case "og:title":
					ogTitle = content
				case "og:description":
					ogDesc = content
				}
			case atom.Article:
				if article == nil {
					article = n
				}
			case atom.Main:
				if mainNode == nil {
					mainNode = n
				}
			case atom.Body:
				body = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			scan(c)
		}
	}
	scan(root)

	if ogTitle != "" {
		doc.Title = ogTitle
	}
	if doc.Summary == "" {
		doc.Summary = ogDesc
	}

	content := article
	if content == nil {
		content = mainNode
	}
	if content == nil {
		content = body
	}
	if content != nil {
		r := &renderer{}
		r.walk(content)
		r.flush()
		doc.Text = r.String()
	}
	return doc, nil
}

type block struct {
	text string
	item bool
}

type renderer struct {
	blocks  []block
	pending strings.Builder
}

func (r *renderer) add(s string, item bool) {
	if s = collapse(s); s != "" {
		r.blocks = append(r.blocks, block{text: s, item: item})
	}
}

func (r *renderer) flush() {
	r.add(r.pending.String(), false)
	r.pending.Reset()
}

func (r *renderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		r.pending.WriteString(n.Data)
		return
	case html.ElementNode:
	default:
		return
	}
	if skipped[n.DataAtom] {
		return
	}
	if level, ok := headings[n.DataAtom]; ok {
		r.flush()
		if t := collapse(text(n)); t != "" {
			r.add(strings.Repeat("#", level)+" "+t, false)
		}
		return
	}
	switch n.DataAtom {
	case atom.P, atom.Pre, atom.Figcaption, atom.Dd, atom.Dt:
		r.flush()
		r.add(text(n), false)
		return
	case atom.Blockquote:
		r.flush()
		if t := collapse(text(n)); t != "" {
			r.add("> "+t, false)
		}
		return
	case atom.Li:
		r.flush()
		if t := collapse(text(n)); t != "" {
			r.add("- "+t, true)
		}
		return
	case atom.Br:
		r.pending.WriteByte(' ')
		return
	case atom.Div, atom.Section, atom.Article, atom.Main, atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Figure:
		r.flush()
		defer r.flush()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

func (r *renderer) String() string {
	var sb strings.Builder
	for i, b := range r.blocks {
		if i > 0 {
			if b.item && r.blocks[i-1].item {
				sb.WriteByte('\n')
			} else {
				sb.WriteString("\n\n")
			}
		}
		sb.WriteString(b.text)
	}
	return sb.String()
}

// text returns the visible text below n.
func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Br {
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
