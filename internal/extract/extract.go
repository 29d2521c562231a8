// Package extract turns fetched response bodies into plain text. Each
// supported content type has its own extractor; all of them return the
// common Result shape consumed by the crawl pipeline.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Kind tags the content-type branch a response is dispatched to.
type Kind int

const (
	KindUnsupported Kind = iota
	KindHTML
	KindPDF
	KindPlainText
)

// DetectKind maps a Content-Type header value to an extractor branch.
func DetectKind(contentType string) Kind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return KindHTML
	case mediaType == "application/pdf":
		return KindPDF
	case mediaType == "text/plain", mediaType == "text/markdown":
		return KindPlainText
	default:
		return KindUnsupported
	}
}

// Result is the extracted form of one page.
type Result struct {
	Title       *string
	Content     string
	HeadingPath string
	Links       []string
}

// Extract dispatches body to the extractor for kind. KindUnsupported
// returns an error; callers treat that as a skip, not a page failure.
func Extract(kind Kind, body []byte, pageURL string) (*Result, error) {
	switch kind {
	case KindHTML:
		return HTML(body, pageURL)
	case KindPDF:
		return PDF(body)
	case KindPlainText:
		return PlainText(body)
	default:
		return nil, fmt.Errorf("unsupported content type")
	}
}

// HTML extracts the main article text via readability, plus the page
// title and all outbound links resolved against pageURL. When
// readability finds no article, the whole body text is used instead.
func HTML(body []byte, pageURL string) (*Result, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if baseHref := findBaseHref(doc); baseHref != "" {
		if resolved, err := base.Parse(baseHref); err == nil {
			base = resolved
		}
	}

	res := &Result{
		Links:       collectLinks(doc, base),
		HeadingPath: firstHeading(doc),
	}

	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		res.Content = strings.TrimSpace(article.TextContent)
		if t := strings.TrimSpace(article.Title); t != "" {
			res.Title = &t
		}
	} else {
		res.Content = documentText(doc)
	}

	if res.Title == nil {
		if t := documentTitle(doc); t != "" {
			res.Title = &t
		}
	}
	return res, nil
}

// PDF extracts the plain text of a PDF document. PDFs carry no links.
func PDF(data []byte) (*Result, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	text, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	content, err := io.ReadAll(text)
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}
	return &Result{Content: strings.TrimSpace(string(content))}, nil
}

// PlainText passes text and markdown bodies through unchanged.
func PlainText(body []byte) (*Result, error) {
	return &Result{Content: strings.TrimSpace(string(body))}, nil
}

func findBaseHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "base" {
		for _, attr := range n.Attr {
			if attr.Key == "href" {
				return strings.TrimSpace(attr.Val)
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findBaseHref(c); href != "" {
			return href
		}
	}
	return ""
}

func collectLinks(n *html.Node, base *url.URL) []string {
	var links []string
	if n.Type == html.ElementNode && n.Data == "a" {
		for _, attr := range n.Attr {
			if attr.Key != "href" {
				continue
			}
			href := strings.TrimSpace(attr.Val)
			if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
				break
			}
			if resolved := resolveLink(href, base); resolved != "" {
				links = append(links, resolved)
			}
			break
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		links = append(links, collectLinks(c, base)...)
	}
	return links
}

func resolveLink(href string, base *url.URL) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	switch strings.ToLower(abs.Scheme) {
	case "http", "https":
		return abs.String()
	default:
		return ""
	}
}

func documentTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		if n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := documentTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func firstHeading(n *html.Node) string {
	if n.Type == html.ElementNode && (n.Data == "h1" || n.Data == "h2") {
		var sb strings.Builder
		textNodes(n, &sb)
		return strings.Join(strings.Fields(sb.String()), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if h := firstHeading(c); h != "" {
			return h
		}
	}
	return ""
}

func documentText(n *html.Node) string {
	var sb strings.Builder
	textNodes(n, &sb)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func textNodes(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg":
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		textNodes(c, sb)
	}
}
