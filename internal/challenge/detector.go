// Package challenge classifies whether a fetched page is a bot-verification
// interstitial rather than the content we asked for. The check is a textual
// heuristic: false negatives are expected and must not break the pipeline,
// false positives surface as a distinguishable "blocked" failure.
package challenge

import (
	"strings"

	"golang.org/x/net/html"
)

// Result is the classifier output. Reason names the marker that matched so
// operators can tell which vendor page was served.
type Result struct {
	IsChallenge bool
	Reason      string
}

// contentMarkers are case-insensitive substrings seen on known verification
// pages. Ordered roughly by how unambiguous they are.
var contentMarkers = []string{
	"attention required",
	"checking your browser",
	"just a moment",
	"verify you are human",
	"enable javascript and cookies to continue",
	"cf-browser-verification",
	"cf-chl",
	"ddos protection by",
	"press & hold",
	"challenge-platform",
}

// urlMarkers are network signatures of challenge flows that show up in the
// post-redirect location.
var urlMarkers = []string{
	"/cdn-cgi/",
	"__cf_chl",
	"captcha-delivery.com",
	"geo.captcha",
}

// Classify inspects page content and the current URL for challenge markers.
func Classify(content, currentURL string) Result {
	lowered := strings.ToLower(content)
	for _, marker := range contentMarkers {
		if strings.Contains(lowered, marker) {
			return Result{IsChallenge: true, Reason: "content marker: " + marker}
		}
	}

	loweredURL := strings.ToLower(currentURL)
	for _, marker := range urlMarkers {
		if strings.Contains(loweredURL, marker) {
			return Result{IsChallenge: true, Reason: "url marker: " + marker}
		}
	}

	// Some interstitials only give themselves away in the document title.
	if title := strings.ToLower(Title(content)); title != "" {
		for _, marker := range contentMarkers {
			if strings.Contains(title, marker) {
				return Result{IsChallenge: true, Reason: "title marker: " + marker}
			}
		}
	}

	return Result{}
}

// Title extracts the document <title>, or "" when the content is not parseable
// HTML or has no title.
func Title(content string) string {
	root, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var walk func(n *html.Node) string
	walk = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				return strings.TrimSpace(n.FirstChild.Data)
			}
			return ""
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := walk(c); t != "" {
				return t
			}
		}
		return ""
	}
	return walk(root)
}

// Snippet truncates page content to at most n bytes for failure diagnostics.
func Snippet(content string, n int) string {
	content = strings.TrimSpace(content)
	if len(content) <= n {
		return content
	}
	return content[:n]
}
