package fetcher

import (
	"bytes"
	"net/url"

	"golang.org/x/net/html"
)

// extractLinks parses data as HTML, collects every <a href> target, resolves
// each against discoveryURL, and returns the deduplicated set — the Go
// analogue of bs4.BeautifulSoup(...).find_all("a") plus uritools.urijoin.
func extractLinks(data []byte, discoveryURL string) ([]string, error) {
	base, err := url.Parse(discoveryURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(attr.Val)
				if err != nil {
					continue
				}
				resolved := base.ResolveReference(ref).String()
				seen[resolved] = struct{}{}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	out := make([]string, 0, len(seen))
	for link := range seen {
		out = append(out, link)
	}
	return out, nil
}
