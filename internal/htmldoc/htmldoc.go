// Package htmldoc inspects uploaded HTML before it is sent for analysis.
package htmldoc

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/url-guardian/client/pkg/utils"
)

type Document struct {
	Title    string
	Elements int
	TextLen  int
}

// Empty reports whether the parse produced nothing beyond the html/head/body skeleton.
func (d Document) Empty() bool {
	return d.Elements == 0 && d.TextLen == 0
}

func Inspect(html string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	return Document{
		Title:    collapseSpace(title),
		Elements: doc.Find("head *").Length() + doc.Find("body *").Length(),
		TextLen:  len(strings.TrimSpace(doc.Text())),
	}, nil
}

// Subject builds the synthetic identifier recorded for an uploaded document:
// file:<title>#<hash>, with "upload" standing in for a missing title.
func Subject(doc Document, html string) string {
	title := doc.Title
	if title == "" {
		title = "upload"
	}
	if r := []rune(title); len(r) > 60 {
		title = string(r[:60])
	}
	return fmt.Sprintf("file:%s#%s", title, utils.ShortHash(html, 12))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
