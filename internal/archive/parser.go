// Package archive parses board-meeting archive listings into document links.
package archive

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

// Parse returns every PDF link on the listing page in document order, deduped
// by absolute URL. pageURL is the address the page was served from.
func Parse(body []byte, pageURL string) ([]minutes.DocumentLink, error) {
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("parse archive page url %q: %w", pageURL, minutes.ErrInvalid)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse archive html: %w", err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	seen := make(map[string]struct{})
	var links []minutes.DocumentLink
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		resolved := resolve(base, href)
		if resolved == nil {
			return
		}
		text := collapse(sel.Text())
		titleAttr := collapse(sel.AttrOr("title", ""))
		if !isPDFPath(resolved.Path) && !mentionsPDF(text) && !mentionsPDF(titleAttr) {
			return
		}

		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}

		name := fileName(resolved)
		link := minutes.DocumentLink{
			URL:   abs,
			Title: pickTitle(text, titleAttr, name),
		}
		for _, candidate := range []string{text, titleAttr, name} {
			if date, ok := ParseDate(candidate); ok {
				link.MeetingDate = &date
				break
			}
		}
		links = append(links, link)
	})
	return links, nil
}

func resolve(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	u.Fragment = ""
	return u
}

func isPDFPath(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ".pdf")
}

func mentionsPDF(s string) bool {
	return strings.Contains(strings.ToLower(s), "pdf")
}

func fileName(u *url.URL) string {
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "/" || name == "." {
		return ""
	}
	return strings.TrimSuffix(strings.TrimSuffix(name, ".pdf"), ".PDF")
}

// pickTitle prefers the anchor text unless it is a generic label.
func pickTitle(text, titleAttr, name string) string {
	for _, candidate := range []string{text, titleAttr} {
		if candidate != "" && !isGenericLabel(candidate) {
			return candidate
		}
	}
	if name != "" {
		return name
	}
	return text
}

func isGenericLabel(s string) bool {
	switch strings.Trim(strings.ToLower(s), " ()[]") {
	case "pdf", "download", "view", "minutes", "click here", "here", "link":
		return true
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
