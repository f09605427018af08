package siteapi

import (
	"encoding/xml"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nordmedica/siteapi/blog"
)

// RSS and sitemap endpoints for the blog, pointed at the frontend's post
// routes so crawlers index the pages visitors actually see.

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func (a *App) handleRSS(c echo.Context) error {
	posts, err := a.Blog.List()
	if err != nil {
		return err
	}
	items := make([]rssItem, 0, len(posts))
	for _, p := range posts {
		postURL := a.postURL(p)
		items = append(items, rssItem{
			Title:       p.Title,
			Link:        postURL,
			Description: postExcerpt(p),
			PubDate:     rssDate(p),
			GUID:        postURL,
		})
	}
	feed := rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       "Nordmedica Blog",
			Link:        a.Config.FrontendURL + "/blog",
			Description: "News and updates from Nordmedica",
			Items:       items,
		},
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/rss+xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(feed)
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Blog.List()
	if err != nil {
		return err
	}
	urls := []sitemapURL{
		{Loc: a.Config.FrontendURL + "/"},
		{Loc: a.Config.FrontendURL + "/blog"},
	}
	for _, p := range posts {
		urls = append(urls, sitemapURL{
			Loc:     a.postURL(p),
			LastMod: p.Date,
		})
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}

func (a *App) postURL(p blog.Post) string {
	return a.Config.FrontendURL + "/blog/" + strconv.FormatInt(p.ID, 10)
}

// postExcerpt prefers the subtitle, falling back to a body prefix cut at a
// word boundary.
func postExcerpt(p blog.Post) string {
	if p.Subtitle != "" {
		return p.Subtitle
	}
	body := strings.Join(strings.Fields(p.Body), " ")
	const max = 200
	if len(body) <= max {
		return body
	}
	cut := body[:max]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

func rssDate(p blog.Post) string {
	if t, err := time.Parse("2006-01-02", p.Date); err == nil {
		return t.Format(time.RFC1123Z)
	}
	if !p.CreatedAt.IsZero() {
		return p.CreatedAt.Format(time.RFC1123Z)
	}
	return ""
}
