package csw

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/airbusgeo/eocatalog/auth"
	"github.com/airbusgeo/eocatalog/search"
	"github.com/airbusgeo/eocatalog/service"
)

// DefaultVersion is the catalog protocol version used when the provider does
// not pin one
const DefaultVersion = "2.0.2"

// namespaces of the catalog answers
var responseNamespaces = map[string]string{
	"csw": "http://www.opengis.net/cat/csw/2.0.2",
	"dc":  "http://purl.org/dc/elements/1.1/",
	"dct": "http://purl.org/dc/terms/",
	"ows": "http://www.opengis.net/ows",
	"gml": "http://www.opengis.net/gml",
}

// Client speaks the catalog protocol of one endpoint: a GetCapabilities
// handshake, then POSTed GetRecords requests carrying an ogc filter.
type Client struct {
	Endpoint string
	Version  string
	Authn    auth.Authenticator
}

// Reference is one retrieval link of a record
type Reference struct {
	Scheme string
	URL    string
}

// Record is one catalog record (dublin-core element set)
type Record struct {
	Identifier  string
	Title       string
	Abstract    string
	Date        string
	Subjects    []string
	References  []Reference
	LowerCorner string
	UpperCorner string
}

// GetCapabilities performs the handshake. The catalog is unusable when it fails.
func (c *Client) GetCapabilities(ctx context.Context) error {
	url := fmt.Sprintf("%s?service=CSW&request=GetCapabilities&version=%s", strings.TrimRight(c.Endpoint, "/"), c.version())
	body, err := c.do(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("GetCapabilities: %w", err)
	}
	root, err := search.ParseXML(body)
	if err != nil {
		return fmt.Errorf("GetCapabilities: %w", err)
	}
	if root.Name.Local == "ExceptionReport" {
		return fmt.Errorf("GetCapabilities: %s", exceptionText(root))
	}
	if root.Name.Local != "Capabilities" {
		return fmt.Errorf("GetCapabilities: unexpected answer %s", root.Name.Local)
	}
	return nil
}

// GetRecords runs one filtered records request and returns the parsed records
func (c *Client) GetRecords(ctx context.Context, constraints []string) ([]Record, error) {
	body, err := c.do(ctx, "POST", strings.TrimRight(c.Endpoint, "/"), []byte(c.getRecordsBody(constraints)))
	if err != nil {
		return nil, fmt.Errorf("GetRecords: %w", err)
	}
	root, err := search.ParseXML(body)
	if err != nil {
		return nil, fmt.Errorf("GetRecords: %w", err)
	}
	if root.Name.Local == "ExceptionReport" {
		return nil, fmt.Errorf("GetRecords: %s", exceptionText(root))
	}
	var records []Record
	for _, node := range root.Find("csw:SearchResults/csw:Record", responseNamespaces) {
		records = append(records, parseRecord(node))
	}
	return records, nil
}

func (c *Client) getRecordsBody(constraints []string) string {
	filter := strings.Join(constraints, "")
	if len(constraints) > 1 {
		filter = "<ogc:And>" + filter + "</ogc:And>"
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<csw:GetRecords xmlns:csw="http://www.opengis.net/cat/csw/2.0.2"` +
		` xmlns:ogc="http://www.opengis.net/ogc" xmlns:gml="http://www.opengis.net/gml"` +
		` service="CSW" version="` + c.version() + `" resultType="results"` +
		` outputSchema="http://www.opengis.net/cat/csw/2.0.2">` +
		`<csw:Query typeNames="csw:Record">` +
		`<csw:ElementSetName>full</csw:ElementSetName>` +
		`<csw:Constraint version="1.1.0"><ogc:Filter>` + filter + `</ogc:Filter></csw:Constraint>` +
		`</csw:Query></csw:GetRecords>`
}

func (c *Client) version() string {
	if c.Version != "" {
		return c.Version
	}
	return DefaultVersion
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if method == "POST" {
		req.Header.Set("Content-Type", "application/xml")
	}
	if c.Authn != nil {
		if err := c.Authn.Authenticate(req); err != nil {
			return nil, err
		}
	}
	return service.GetBodyRetryReq(req, 3)
}

// PropertyIsLike builds the ogc constraint matching a property against a
// wildcard pattern (% matches any run of characters)
func PropertyIsLike(name, pattern string) string {
	return `<ogc:PropertyIsLike wildCard="%" singleChar="_" escapeChar="\">` +
		`<ogc:PropertyName>` + name + `</ogc:PropertyName>` +
		`<ogc:Literal>` + pattern + `</ogc:Literal></ogc:PropertyIsLike>`
}

// PropertyIsEqualTo builds the exact-match ogc constraint
func PropertyIsEqualTo(name, value string) string {
	return `<ogc:PropertyIsEqualTo><ogc:PropertyName>` + name + `</ogc:PropertyName>` +
		`<ogc:Literal>` + value + `</ogc:Literal></ogc:PropertyIsEqualTo>`
}

// PropertyIsGreaterOrEqual builds the lower-bound ogc constraint
func PropertyIsGreaterOrEqual(name, value string) string {
	return `<ogc:PropertyIsGreaterThanOrEqualTo><ogc:PropertyName>` + name + `</ogc:PropertyName>` +
		`<ogc:Literal>` + value + `</ogc:Literal></ogc:PropertyIsGreaterThanOrEqualTo>`
}

// PropertyIsLessOrEqual builds the upper-bound ogc constraint
func PropertyIsLessOrEqual(name, value string) string {
	return `<ogc:PropertyIsLessThanOrEqualTo><ogc:PropertyName>` + name + `</ogc:PropertyName>` +
		`<ogc:Literal>` + value + `</ogc:Literal></ogc:PropertyIsLessThanOrEqualTo>`
}

// BBoxConstraint builds the spatial ogc constraint (corners in "lat lon" order)
func BBoxConstraint(latMin, lonMin, latMax, lonMax float64) string {
	return `<ogc:BBOX><ogc:PropertyName>ows:BoundingBox</ogc:PropertyName>` +
		`<gml:Envelope>` +
		fmt.Sprintf(`<gml:lowerCorner>%g %g</gml:lowerCorner>`, latMin, lonMin) +
		fmt.Sprintf(`<gml:upperCorner>%g %g</gml:upperCorner>`, latMax, lonMax) +
		`</gml:Envelope></ogc:BBOX>`
}

func parseRecord(node *search.XMLNode) Record {
	record := Record{}
	for _, child := range node.Children {
		text := strings.TrimSpace(child.Text)
		switch child.Name.Local {
		case "identifier":
			record.Identifier = text
		case "title":
			record.Title = text
		case "abstract":
			record.Abstract = text
		case "date", "modified":
			if record.Date == "" {
				record.Date = text
			}
		case "subject":
			if text != "" {
				record.Subjects = append(record.Subjects, text)
			}
		case "references":
			record.References = append(record.References, Reference{Scheme: child.Attr("scheme"), URL: text})
		case "BoundingBox":
			for _, corner := range child.Children {
				switch corner.Name.Local {
				case "LowerCorner":
					record.LowerCorner = strings.TrimSpace(corner.Text)
				case "UpperCorner":
					record.UpperCorner = strings.TrimSpace(corner.Text)
				}
			}
		}
	}
	return record
}

func exceptionText(root *search.XMLNode) string {
	if nodes := root.Find("ows:Exception/ows:ExceptionText", responseNamespaces); len(nodes) > 0 {
		return strings.TrimSpace(nodes[0].Text)
	}
	return "exception report without text"
}
