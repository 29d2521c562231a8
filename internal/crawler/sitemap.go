package crawler

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

type sitemapURLSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// fetchSitemapURLs retrieves /sitemap.xml relative to baseURL and
// returns the listed page URLs. A sitemap index is followed one level
// deep. Any failure returns an error; callers treat it as non-fatal.
func fetchSitemapURLs(ctx context.Context, fetcher PageFetcher, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	sitemapURL := base.Scheme + "://" + base.Host + "/sitemap.xml"

	urls, nested, err := fetchOneSitemap(ctx, fetcher, sitemapURL)
	if err != nil {
		return nil, err
	}

	for _, nestedURL := range nested {
		nestedURLs, _, err := fetchOneSitemap(ctx, fetcher, nestedURL)
		if err != nil {
			// A broken child sitemap doesn't invalidate the rest.
			continue
		}
		urls = append(urls, nestedURLs...)
	}

	return urls, nil
}

// fetchOneSitemap returns the page URLs and, for an index document, the
// child sitemap URLs.
func fetchOneSitemap(ctx context.Context, fetcher PageFetcher, sitemapURL string) ([]string, []string, error) {
	res, err := fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch sitemap: %w", err)
	}

	var urlset sitemapURLSet
	if err := xml.Unmarshal(res.Body, &urlset); err == nil && len(urlset.URLs) > 0 {
		urls := make([]string, 0, len(urlset.URLs))
		for _, u := range urlset.URLs {
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				urls = append(urls, loc)
			}
		}
		return urls, nil, nil
	}

	var index sitemapIndex
	if err := xml.Unmarshal(res.Body, &index); err == nil && len(index.Sitemaps) > 0 {
		nested := make([]string, 0, len(index.Sitemaps))
		for _, sm := range index.Sitemaps {
			if loc := strings.TrimSpace(sm.Loc); loc != "" {
				nested = append(nested, loc)
			}
		}
		return nil, nested, nil
	}

	return nil, nil, fmt.Errorf("sitemap at %s contained no URLs", sitemapURL)
}
