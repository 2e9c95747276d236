// Package adf flattens Jira rich-text documents (Atlassian Document
// Format) into plain text. Jira's v3 API returns descriptions and
// comment bodies as a recursive node tree; older server responses may
// return a plain string. Flattening is total: any input shape degrades
// to an empty string rather than erroring.
package adf

import (
	"encoding/json"
	"strings"
)

// DefaultSummaryLimit is the character budget for ticket card summaries.
const DefaultSummaryLimit = 180

// NodeKind discriminates the document node variants.
type NodeKind int

const (
	// KindUnknown covers null, malformed, and unrecognized shapes.
	KindUnknown NodeKind = iota
	// KindText is a node carrying literal text.
	KindText
	// KindContainer is a node holding child nodes.
	KindContainer
)

// Node is one node of a rich-text document, decoded into a tagged
// variant so that flattening is a structural recursion rather than
// runtime type-sniffing.
type Node struct {
	Kind    NodeKind
	Text    string
	Content []Node
}

// UnmarshalJSON decodes any JSON value into a Node. It never returns an
// error: shapes that are neither text nor containers decode as KindUnknown.
func (n *Node) UnmarshalJSON(data []byte) error {
	*n = Node{}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n.Kind = KindText
		n.Text = s
		return nil
	}

	var obj struct {
		Text    string            `json:"text"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}

	// A direct text field wins over nested content, matching how Jira
	// emits leaf nodes.
	if obj.Text != "" {
		n.Kind = KindText
		n.Text = obj.Text
		return nil
	}

	if obj.Content == nil {
		return nil
	}

	n.Kind = KindContainer
	n.Content = make([]Node, len(obj.Content))
	for i, raw := range obj.Content {
		// UnmarshalJSON is total, the error is always nil.
		_ = n.Content[i].UnmarshalJSON(raw)
	}
	return nil
}

// Flatten renders the node as plain text: text nodes contribute their
// text, containers contribute the space-joined flattening of their
// non-empty children, anything else contributes nothing.
func (n Node) Flatten() string {
	switch n.Kind {
	case KindText:
		return n.Text
	case KindContainer:
		var parts []string
		for _, child := range n.Content {
			if text := child.Flatten(); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.TrimSpace(strings.Join(parts, " "))
	default:
		return ""
	}
}

// Flatten converts a raw Jira document value (ADF tree, plain string,
// null, or anything else) into plain text.
func Flatten(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var node Node
	_ = node.UnmarshalJSON(raw)
	return node.Flatten()
}

// Summarize collapses whitespace runs to single spaces, trims, and
// truncates the text to limit characters, appending a single ellipsis
// rune when truncation occurred. A non-positive limit selects
// DefaultSummaryLimit.
func Summarize(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	clean := strings.Join(strings.Fields(text), " ")
	if clean == "" {
		return ""
	}
	runes := []rune(clean)
	if len(runes) <= limit {
		return clean
	}
	return string(runes[:limit-1]) + "…"
}
