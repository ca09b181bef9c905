package sanitize

import (
	"strings"

	"golang.org/x/net/html"
)

// ContentMetaName is the meta tag a page carries to consent to attestation.
const ContentMetaName = "did:content"

// ContentMarker returns the first non-empty did:content meta value in page.
// The parser follows the HTML5 error recovery rules so broken markup never
// fails the scan.
func ContentMarker(page string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", false
	}
	var found string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, a := range n.Attr {
				switch a.Key {
				case "name":
					name = a.Val
				case "content":
					content = a.Val
				}
			}
			if name == ContentMetaName && content != "" {
				found = content
				return true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	return found, walk(doc)
}

// ValidatePostContent reports whether page carries the did:content marker.
func ValidatePostContent(page string) bool {
	_, ok := ContentMarker(page)
	return ok
}
