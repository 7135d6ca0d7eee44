package document

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// nodeKind classifies the nodes of an xmlNode tree.
type nodeKind int

const (
	rootNode nodeKind = iota
	elementNode
	charDataNode
	commentNode
	procInstNode
	directiveNode
)

// xmlNode is a minimal XML tree that keeps namespace prefixes exactly as
// written. encoding/xml's Marshal rewrites prefixes, which Word rejects, so
// parts are decoded with RawToken and written back by hand.
type xmlNode struct {
	kind     nodeKind
	name     xml.Name // Space holds the prefix, not the namespace URI
	attrs    []xml.Attr
	text     string // char data, comment, directive or processing instruction body
	children []*xmlNode
}

func parseXML(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	root := &xmlNode{kind: rootNode}
	stack := []*xmlNode{root}

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse xml: %w", err)
		}

		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			el := t.Copy()
			n := &xmlNode{kind: elementNode, name: el.Name, attrs: el.Attr}
			top.children = append(top.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) == 1 || top.name != t.Name {
				return nil, fmt.Errorf("failed to parse xml: unexpected </%s>", qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			top.children = append(top.children, &xmlNode{kind: charDataNode, text: string(t)})
		case xml.Comment:
			top.children = append(top.children, &xmlNode{kind: commentNode, text: string(t)})
		case xml.ProcInst:
			top.children = append(top.children, &xmlNode{kind: procInstNode, name: xml.Name{Local: t.Target}, text: string(t.Inst)})
		case xml.Directive:
			top.children = append(top.children, &xmlNode{kind: directiveNode, text: string(t)})
		}
	}

	if len(stack) != 1 {
		return nil, fmt.Errorf("failed to parse xml: unclosed <%s>", qualified(stack[len(stack)-1].name))
	}
	return root, nil
}

func (n *xmlNode) render() []byte {
	var b bytes.Buffer
	n.write(&b)
	return b.Bytes()
}

func (n *xmlNode) write(b *bytes.Buffer) {
	switch n.kind {
	case rootNode:
		for _, c := range n.children {
			c.write(b)
		}
	case charDataNode:
		escape(b, n.text)
	case commentNode:
		b.WriteString("<!--")
		b.WriteString(n.text)
		b.WriteString("-->")
	case procInstNode:
		b.WriteString("<?")
		b.WriteString(n.name.Local)
		if n.text != "" {
			b.WriteByte(' ')
			b.WriteString(n.text)
		}
		b.WriteString("?>")
	case directiveNode:
		b.WriteString("<!")
		b.WriteString(n.text)
		b.WriteByte('>')
	case elementNode:
		b.WriteByte('<')
		b.WriteString(qualified(n.name))
		for _, a := range n.attrs {
			b.WriteByte(' ')
			b.WriteString(qualified(a.Name))
			b.WriteString(`="`)
			escape(b, a.Value)
			b.WriteByte('"')
		}
		if len(n.children) == 0 {
			b.WriteString("/>")
			return
		}
		b.WriteByte('>')
		for _, c := range n.children {
			c.write(b)
		}
		b.WriteString("</")
		b.WriteString(qualified(n.name))
		b.WriteByte('>')
	}
}

func escape(b *bytes.Buffer, s string) {
	// EscapeText only fails when the writer does.
	_ = xml.EscapeText(b, []byte(s))
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

func (n *xmlNode) is(prefix, local string) bool {
	return n.kind == elementNode && n.name.Space == prefix && n.name.Local == local
}

// clone deep-copies the subtree rooted at n.
func (n *xmlNode) clone() *xmlNode {
	c := &xmlNode{kind: n.kind, name: n.name, text: n.text}
	if n.attrs != nil {
		c.attrs = append([]xml.Attr(nil), n.attrs...)
	}
	for _, child := range n.children {
		c.children = append(c.children, child.clone())
	}
	return c
}

// child returns the first direct child element with the given name.
func (n *xmlNode) child(prefix, local string) *xmlNode {
	for _, c := range n.children {
		if c.is(prefix, local) {
			return c
		}
	}
	return nil
}

// childrenNamed returns the direct child elements with the given name.
func (n *xmlNode) childrenNamed(prefix, local string) []*xmlNode {
	var out []*xmlNode
	for _, c := range n.children {
		if c.is(prefix, local) {
			out = append(out, c)
		}
	}
	return out
}

// find collects descendant elements with the given name in document order.
// Matching elements are not descended into, nor are elements named in stop.
func (n *xmlNode) find(prefix, local string, stop ...string) []*xmlNode {
	var out []*xmlNode
	var walk func(*xmlNode)
	walk = func(cur *xmlNode) {
		for _, c := range cur.children {
			if c.kind != elementNode {
				continue
			}
			if c.is(prefix, local) {
				out = append(out, c)
				continue
			}
			if c.name.Space == prefix && contains(stop, c.name.Local) {
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// count returns the number of descendant elements with the given name.
func (n *xmlNode) count(prefix, local string) int {
	total := 0
	for _, c := range n.children {
		if c.is(prefix, local) {
			total++
		}
		total += c.count(prefix, local)
	}
	return total
}

// innerText concatenates all char data below n.
func (n *xmlNode) innerText() string {
	var b strings.Builder
	var walk func(*xmlNode)
	walk = func(cur *xmlNode) {
		for _, c := range cur.children {
			if c.kind == charDataNode {
				b.WriteString(c.text)
			} else if c.kind == elementNode {
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func (n *xmlNode) setText(s string) {
	n.children = nil
	if s != "" {
		n.children = []*xmlNode{{kind: charDataNode, text: s}}
	}
}

func (n *xmlNode) setAttr(prefix, local, value string) {
	for i, a := range n.attrs {
		if a.Name.Space == prefix && a.Name.Local == local {
			n.attrs[i].Value = value
			return
		}
	}
	n.attrs = append(n.attrs, xml.Attr{Name: xml.Name{Space: prefix, Local: local}, Value: value})
}

func (n *xmlNode) attr(prefix, local string) (string, bool) {
	for _, a := range n.attrs {
		if a.Name.Space == prefix && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (n *xmlNode) indexOf(child *xmlNode) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

func (n *xmlNode) insertAt(i int, child *xmlNode) {
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
