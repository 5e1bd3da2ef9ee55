// Package detector decides when an archive index has to be rendered in
// headless Chrome before its document links can be read.
package detector

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

const (
	defaultMinBodyBytes = 2048
	defaultScriptShare  = 0.25
)

// Heuristic flags client-rendered listing pages.
type Heuristic struct {
	// MinBodyBytes is the size under which a script-heavy page counts as a shell.
	MinBodyBytes int
	// ScriptShare is the fraction of the body inside <script> that marks a shell.
	ScriptShare float64
}

// NewHeuristic creates a detector. A zero threshold selects the default.
func NewHeuristic(minBodyBytes int) *Heuristic {
	if minBodyBytes <= 0 {
		minBodyBytes = defaultMinBodyBytes
	}
	return &Heuristic{MinBodyBytes: minBodyBytes, ScriptShare: defaultScriptShare}
}

var spaMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
	[]byte("ng-app"),
}

// ShouldRender reports whether resp looks like a page whose listing is built
// by JavaScript, and names the rule that matched.
func (h *Heuristic) ShouldRender(resp minutes.FetchResponse) (bool, string) {
	if resp.StatusCode != 0 && resp.StatusCode != 200 {
		return false, ""
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true, "empty body"
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true, "spa marker " + string(marker)
		}
	}
	if len(body) < h.MinBodyBytes && scriptShare(body) >= h.ScriptShare {
		return true, "script heavy"
	}
	return false, ""
}

// scriptShare returns the fraction of body taken by <script> elements.
func scriptShare(body []byte) float64 {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}
	covered := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if html, err := goquery.OuterHtml(s); err == nil {
			covered += len(html)
		}
	})
	if covered == 0 {
		return 0
	}
	return float64(covered) / float64(len(body))
}
