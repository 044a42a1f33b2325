package scihub

import (
	"context"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"

	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/service"
)

// pageRows is the feed page size of the hub
const pageRows = 100

// Client is a minimal client of the scientific data hub: full-text queries
// against the opensearch endpoint, answered as an atom feed.
type Client struct {
	Endpoint string
	Username string
	Password string
}

// HubQuery is the vendor-side query model of the hub
type HubQuery struct {
	ProductType  string
	Dates        [2]string // YYYYMMDD, zero values mean unconstrained
	FootprintWKT string
	CloudCover   *[2]int // (min, max) percentage
}

// expression builds the full-text query expression of the hub
func (q HubQuery) expression() string {
	var clauses []string
	if q.ProductType != "" {
		clauses = append(clauses, "producttype:"+q.ProductType)
	}
	if q.Dates[0] != "" || q.Dates[1] != "" {
		from, to := "*", "*"
		if q.Dates[0] != "" {
			from = hubDate(q.Dates[0])
		}
		if q.Dates[1] != "" {
			to = hubDate(q.Dates[1])
		}
		clauses = append(clauses, fmt.Sprintf("beginposition:[%s TO %s]", from, to))
	}
	if q.FootprintWKT != "" {
		clauses = append(clauses, fmt.Sprintf("footprint:\"Intersects(%s)\"", q.FootprintWKT))
	}
	if q.CloudCover != nil {
		clauses = append(clauses, fmt.Sprintf("cloudcoverpercentage:[%d TO %d]", q.CloudCover[0], q.CloudCover[1]))
	}
	if len(clauses) == 0 {
		return "*"
	}
	return strings.Join(clauses, " AND ")
}

// hubDate turns a YYYYMMDD date into the hub timestamp form
func hubDate(d string) string {
	if len(d) != 8 {
		return d
	}
	return fmt.Sprintf("%s-%s-%sT00:00:00Z", d[:4], d[4:6], d[6:])
}

// Search runs the query and returns one flat attribute map per feed entry.
// The feed is paged; an empty feed means no results, not an error.
func (c *Client) Search(ctx context.Context, query HubQuery) ([]map[string]string, error) {
	expression := query.expression()
	var results []map[string]string
	for start := 0; ; start += pageRows {
		url := fmt.Sprintf("%s?q=%s&rows=%d&start=%d",
			strings.TrimRight(c.Endpoint, "/"), neturl.QueryEscape(expression), pageRows, start)
		entries, err := c.fetchPage(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		results = append(results, entries...)
		if len(entries) < pageRows {
			return results, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, url string) ([]map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
	body, err := service.GetBodyRetryReq(req, 3)
	if err != nil {
		return nil, err
	}
	feed, err := search.ParseXML(body)
	if err != nil {
		return nil, err
	}
	var entries []map[string]string
	for _, node := range feed.Children {
		if node.Name.Local != "entry" {
			continue
		}
		entries = append(entries, flattenEntry(node))
	}
	return entries, nil
}

// flattenEntry turns one feed entry into a flat attribute map: named str/int/
// double/date fields keep their name, the alternative link becomes "link".
func flattenEntry(entry *search.XMLNode) map[string]string {
	attributes := map[string]string{}
	for _, child := range entry.Children {
		text := strings.TrimSpace(child.Text)
		switch child.Name.Local {
		case "title":
			attributes["title"] = text
		case "id":
			attributes["uuid"] = text
		case "link":
			if child.Attr("rel") == "" {
				attributes["link"] = child.Attr("href")
			} else {
				attributes["link_"+child.Attr("rel")] = child.Attr("href")
			}
		case "str", "int", "double", "date", "bool":
			if name := child.Attr("name"); name != "" {
				attributes[name] = text
			}
		}
	}
	return attributes
}
