package util

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ArchiveLinks returns the href of every <a> under n whose path ends in
// suffix (case-insensitive), resolved against base when base is non-nil.
// Links keep document order; repeats are dropped.
func ArchiveLinks(n *html.Node, base *url.URL, suffix string) []string {
	suffix = strings.ToLower(suffix)
	seen := make(map[string]bool)
	var out []string

	var walk func(*html.Node)
	walk = func(nd *html.Node) {
		if link, ok := archiveLink(nd, base, suffix); ok && !seen[link] {
			seen[link] = true
			out = append(out, link)
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func archiveLink(nd *html.Node, base *url.URL, suffix string) (string, bool) {
	if nd.Type != html.ElementNode || nd.Data != "a" {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(attr(nd, "href")))
	if err != nil || !strings.HasSuffix(strings.ToLower(ref.Path), suffix) {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	return ref.String(), true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
