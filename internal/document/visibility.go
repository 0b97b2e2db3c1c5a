package document

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipTags are elements whose content is never read.
var skipTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Canvas:   true,
	atom.Video:    true,
	atom.Audio:    true,
	atom.Template: true,
	atom.Head:     true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Math:     true,
	atom.Select:   true,
	atom.Textarea: true,
}

// DefaultHiddenClasses are class names treated as display:none.
var DefaultHiddenClasses = []string{"hidden", "sr-only", "visually-hidden"}

// Visibility decides which elements a reader can see. Without a style
// engine it relies on attributes, inline styles and a list of class names
// known to hide content.
type Visibility struct {
	HiddenClasses []string
}

// DefaultVisibility returns the visibility rules used when none are configured.
func DefaultVisibility() *Visibility {
	return &Visibility{HiddenClasses: DefaultHiddenClasses}
}

// Skipped reports whether n is an element that never carries readable text.
func Skipped(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if skipTags[n.DataAtom] {
		return true
	}
	return n.DataAtom == atom.Input && strings.EqualFold(Attr(n, "type"), "hidden")
}

// Hidden reports whether n itself is hidden. Ancestors are not consulted;
// walkers prune hidden subtrees as they descend.
func (v *Visibility) Hidden(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if HasAttr(n, "hidden") {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(Attr(n, "aria-hidden")), "true") {
		return true
	}
	if v != nil && len(v.HiddenClasses) > 0 {
		for _, c := range strings.Fields(Attr(n, "class")) {
			for _, h := range v.HiddenClasses {
				if c == h {
					return true
				}
			}
		}
	}
	return hiddenByStyle(Attr(n, "style"))
}

// Excluded reports whether the subtree at n is pruned from reading.
func (v *Visibility) Excluded(n *html.Node) bool {
	return Skipped(n) || v.Hidden(n)
}

// Visible reports whether n and all of its element ancestors are visible.
func (v *Visibility) Visible(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if v.Excluded(cur) {
			return false
		}
	}
	return true
}

func hiddenByStyle(style string) bool {
	if style == "" {
		return false
	}
	for _, decl := range strings.Split(style, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important")))
		switch prop {
		case "display":
			if val == "none" {
				return true
			}
		case "visibility":
			if val == "hidden" || val == "collapse" {
				return true
			}
		case "opacity":
			if f, err := strconv.ParseFloat(val, 64); err == nil && f <= 0 {
				return true
			}
		case "width", "height", "max-width", "max-height":
			if zeroLength(val) {
				return true
			}
		}
	}
	return false
}

func zeroLength(val string) bool {
	val = strings.TrimRight(val, "abcdefghijklmnopqrstuvwxyz%")
	f, err := strconv.ParseFloat(val, 64)
	return err == nil && f == 0
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries the named attribute.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// HasClass reports whether n's class list contains class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// AddClass appends class to n's class list.
func AddClass(n *html.Node, class string) {
	if HasClass(n, class) {
		return
	}
	classes := strings.Fields(Attr(n, "class"))
	SetAttr(n, "class", strings.Join(append(classes, class), " "))
}

// RemoveClass drops class from n's class list, removing the attribute when
// nothing is left.
func RemoveClass(n *html.Node, class string) {
	var keep []string
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c != class {
			keep = append(keep, c)
		}
	}
	if len(keep) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(keep, " "))
}
