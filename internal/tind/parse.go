package tind

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// samlForm is the hand-off form the identity provider returns after a
// successful sign-in. Posting it to its action URL finishes the session.
type samlForm struct {
	Action       string
	SAMLResponse string
	RelayState   string
}

// parseSAMLForm extracts the SAML hand-off form from the identity provider's
// response. The page carries a single form with hidden SAMLResponse and
// RelayState inputs.
func parseSAMLForm(content []byte) (*samlForm, error) {
	doc, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("parse sign-in response: %w", err)
	}

	form := &samlForm{}
	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "form":
				if form.Action == "" {
					form.Action = attrValue(n, "action")
				}
			case "input":
				switch attrValue(n, "name") {
				case "SAMLResponse":
					form.SAMLResponse = attrValue(n, "value")
				case "RelayState":
					form.RelayState = attrValue(n, "value")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	if form.Action == "" {
		return nil, fmt.Errorf("sign-in response has no form action")
	}
	if form.SAMLResponse == "" {
		return nil, fmt.Errorf("sign-in response has no SAMLResponse field")
	}

	return form, nil
}

// holdingRow is one copy scraped from an item's holdings page. The page
// renders copies as rows of the second table; the columns we need sit at
// fixed positions.
type holdingRow struct {
	Barcode    string `json:"barcode"`
	Status     string `json:"status"`
	CallNumber string `json:"call_number"`
	Copy       string `json:"copy"`
	Location   string `json:"location"`
}

// Column positions in the holdings table.
const (
	colCallNumber = 2
	colLocation   = 3
	colCopy       = 4
	colStatus     = 7
	colBarcode    = 9
)

// parseHoldingsTable scrapes the copies of an item from its holdings page.
// The first table on the page is navigation chrome; the second lists one row
// per copy under a heading row.
func parseHoldingsTable(content []byte) ([]holdingRow, error) {
	doc, err := html.Parse(strings.NewReader(string(content)))
	if err != nil {
		return nil, fmt.Errorf("parse holdings page: %w", err)
	}

	tables := findElements(doc, "table")
	if len(tables) < 2 {
		return nil, nil
	}

	var rows []holdingRow
	trs := findElements(tables[1], "tr")
	for i, tr := range trs {
		if i == 0 {
			// Skip the heading row.
			continue
		}
		cells := findElements(tr, "td")
		if len(cells) <= colBarcode {
			continue
		}
		rows = append(rows, holdingRow{
			Barcode:    nodeText(cells[colBarcode]),
			Status:     nodeText(cells[colStatus]),
			CallNumber: nodeText(cells[colCallNumber]),
			Copy:       nodeText(cells[colCopy]),
			Location:   nodeText(cells[colLocation]),
		})
	}

	return rows, nil
}

// findElements returns all descendant elements with the given tag, in
// document order. It does not descend into matched elements, so nested
// tables count once.
func findElements(n *html.Node, tag string) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			found = append(found, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}

	return found
}

// nodeText returns the trimmed text content of a node and its descendants.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)

	return strings.TrimSpace(sb.String())
}

// attrValue returns the value of the named attribute, or "".
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}
