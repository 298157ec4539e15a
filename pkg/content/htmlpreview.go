package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const previewMaxChars = 400

// htmlPreview derives a short plain-text preview from raw HTML: the page
// title, then collapsed body text capped at previewMaxChars. Returns ""
// when nothing readable is found.
func htmlPreview(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript").Remove()
	body := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(body) > previewMaxChars {
		cut := previewMaxChars
		for cut > 0 && body[cut]&0xC0 == 0x80 {
			cut--
		}
		body = body[:cut] + "…"
	}

	switch {
	case title != "" && body != "":
		return title + "\n\n" + body
	case title != "":
		return title
	default:
		return body
	}
}
