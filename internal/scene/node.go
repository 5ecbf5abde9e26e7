// Package scene is the retained-mode scene graph the map viewport writes
// into. Nodes are typed drawables (groups, paths, path references, circles,
// lines, image layers, entity markers and pins); a Backend turns a Scene into
// output.
package scene

import (
	"image"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// Kind is the node type.
type Kind int

const (
	KindGroup Kind = iota
	KindPath
	KindUse
	KindCircle
	KindLine
	KindImage
	KindMarker
	KindPin
)

var kindNames = [...]string{"g", "path", "use", "circle", "line", "image", "marker", "pin"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is one element of the scene. Only the fields relevant to its Kind are
// used.
type Node struct {
	Kind   Kind
	ID     string
	Hidden bool

	classes map[string]struct{}
	attrs   map[string]string

	parent   *Node
	children []*Node

	// Path geometry: SVG data and a flattened polyline in world units.
	D      string
	Points []r2.Vec

	// Href references another node by id (KindUse).
	Href string

	// Circle and marker centre, line end points.
	Center r2.Vec
	Radius float64
	From   r2.Vec
	To     r2.Vec

	// Translate is the node offset in layer pixels (markers and pins).
	Translate r2.Vec

	// Image is the raster of an image layer, drawn at Size layer pixels.
	Image image.Image
	Size  r2.Vec

	// Content is the text of a pin.
	Content string
}

func newNode(kind Kind, classes ...string) *Node {
	n := &Node{Kind: kind}
	for _, c := range classes {
		n.AddClass(c)
	}
	return n
}

// NewGroup returns an empty group.
func NewGroup(classes ...string) *Node { return newNode(KindGroup, classes...) }

// NewPath returns a path node.
func NewPath(id, d string, points []r2.Vec, classes ...string) *Node {
	n := newNode(KindPath, classes...)
	n.ID, n.D, n.Points = id, d, points
	return n
}

// NewUse returns a node drawing the node with id href.
func NewUse(href string, classes ...string) *Node {
	n := newNode(KindUse, classes...)
	n.Href = href
	return n
}

// NewCircle returns a circle.
func NewCircle(center r2.Vec, radius float64, classes ...string) *Node {
	n := newNode(KindCircle, classes...)
	n.Center, n.Radius = center, radius
	return n
}

// NewLine returns a line segment.
func NewLine(from, to r2.Vec, classes ...string) *Node {
	n := newNode(KindLine, classes...)
	n.From, n.To = from, to
	return n
}

// NewImage returns an image layer.
func NewImage(classes ...string) *Node { return newNode(KindImage, classes...) }

// NewMarker returns an entity marker.
func NewMarker(id string, classes ...string) *Node {
	n := newNode(KindMarker, classes...)
	n.ID = id
	return n
}

// NewPin returns a pin annotation.
func NewPin(id string) *Node {
	n := newNode(KindPin, "pin-anchor")
	n.ID = id
	return n
}

// AddClass adds a display class.
func (n *Node) AddClass(c string) {
	if n.classes == nil {
		n.classes = make(map[string]struct{})
	}
	n.classes[c] = struct{}{}
}

// RemoveClass removes a display class.
func (n *Node) RemoveClass(c string) { delete(n.classes, c) }

// ToggleClass adds or removes c.
func (n *Node) ToggleClass(c string, on bool) {
	if on {
		n.AddClass(c)
	} else {
		n.RemoveClass(c)
	}
}

// HasClass reports whether c is set.
func (n *Node) HasClass(c string) bool {
	_, ok := n.classes[c]
	return ok
}

// SetClasses replaces the class set.
func (n *Node) SetClasses(classes []string) {
	n.classes = nil
	for _, c := range classes {
		n.AddClass(c)
	}
}

// Classes returns the sorted class list.
func (n *Node) Classes() []string {
	out := make([]string, 0, len(n.classes))
	for c := range n.classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ClassString returns the classes joined by spaces.
func (n *Node) ClassString() string { return strings.Join(n.Classes(), " ") }

// SetAttr sets a free form attribute. An empty value removes it.
func (n *Node) SetAttr(key, value string) {
	if value == "" {
		delete(n.attrs, key)
		return
	}
	if n.attrs == nil {
		n.attrs = make(map[string]string)
	}
	n.attrs[key] = value
}

// ClearAttrs removes every attribute.
func (n *Node) ClearAttrs() { n.attrs = nil }

// Attr returns an attribute value.
func (n *Node) Attr(key string) string { return n.attrs[key] }

// Parent returns the containing node, nil when detached.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child list. Callers must not modify it.
func (n *Node) Children() []*Node { return n.children }

// Append adds children at the end, detaching them from any prior parent.
func (n *Node) Append(children ...*Node) {
	for _, c := range children {
		if c.parent != nil {
			c.Remove()
		}
		c.parent = n
		n.children = append(n.children, c)
	}
}

// Remove detaches the node from its parent.
func (n *Node) Remove() {
	p := n.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// ReplaceChildren removes every child and appends the given ones.
func (n *Node) ReplaceChildren(children ...*Node) {
	for _, c := range n.children {
		c.parent = nil
	}
	n.children = nil
	n.Append(children...)
}

// Walk visits n and its descendants depth first until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range n.children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Query returns the first descendant (or n itself) having every class.
func (n *Node) Query(classes ...string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		for _, cls := range classes {
			if !c.HasClass(cls) {
				return true
			}
		}
		found = c
		return false
	})
	return found
}

// ByID returns the first node in the subtree with the given id.
func (n *Node) ByID(id string) *Node {
	var found *Node
	n.Walk(func(c *Node) bool {
		if c.ID == id {
			found = c
			return false
		}
		return true
	})
	return found
}
