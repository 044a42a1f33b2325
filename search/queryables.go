package search

import (
	"fmt"
	neturl "net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/eocatalog/config"
	"github.com/airbusgeo/eocatalog/service/geometry"
	"github.com/araddon/dateparse"
)

// complexQSRegex recognizes compound parameter templates, i.e. templates
// embedding one or more {placeholder} substitutions instead of a plain
// provider parameter name.
var complexQSRegex = regexp.MustCompile(`^(.+=)?([^=]*)(\{.+\})+([^=&]*)$`)

var placeholderRegex = regexp.MustCompile(`\{([^{}#]+)(?:#([a-zA-Z_]\w*))?\}`)

// Queryables returns the queryable map of the provider: canonical criterion
// name to provider parameter template, restricted to the metadata mapping
// entries that declare a search parameter.
func Queryables(cfg *config.Provider) map[string]string {
	queryables := map[string]string{}
	for key, m := range cfg.MetadataMapping {
		if m.Queryable() {
			queryables[key] = m.Query
		}
	}
	return queryables
}

// BuildClauses translates the criteria into provider query clauses, one per
// participating criterion. Criteria absent from the queryable map are silently
// dropped, as are criteria with a nil value. Clauses are ordered by canonical
// criterion name so a given search always builds the same request.
func BuildClauses(cfg *config.Provider, criteria Criteria) ([]string, error) {
	queryables := Queryables(cfg)
	var participants []string
	for _, key := range criteria.sortedKeys() {
		value := criteria[key]
		if value == nil {
			continue
		}
		queryable, ok := queryables[key]
		if !ok {
			continue
		}
		if complexQSRegex.MatchString(queryable) {
			clause, err := FormatTemplate(queryable, criteria)
			if err != nil {
				return nil, fmt.Errorf("BuildClauses[%s]: %w", key, err)
			}
			participants = append(participants, clause)
		} else {
			participants = append(participants, queryable+"="+formatValue(value))
		}
	}
	return participants, nil
}

// BuildQueryString joins the criteria clauses into the provider query string.
// Each clause value is percent-encoded so the query survives values carrying
// spaces, parentheses or commas (WKT footprints); the template punctuation
// around the value stays verbatim. Callers embedding clauses in a non-URL
// expression use BuildClauses directly and escape the whole expression.
func BuildQueryString(cfg *config.Provider, criteria Criteria) (string, error) {
	participants, err := BuildClauses(cfg, criteria)
	if err != nil {
		return "", err
	}
	escaped := make([]string, len(participants))
	for i, clause := range participants {
		escaped[i] = EscapeClause(clause)
	}
	return strings.Join(escaped, "&"), nil
}

// EscapeClause percent-encodes the value part of a key=value clause, keeping
// the provider parameter name verbatim
func EscapeClause(clause string) string {
	key, value, found := strings.Cut(clause, "=")
	if !found {
		return neturl.QueryEscape(clause)
	}
	return key + "=" + neturl.QueryEscape(value)
}

// FormatTemplate resolves the {placeholder} substitutions of a compound
// template against the full criteria set. A placeholder may carry a converter:
// {footprint#to_wkt}, {startDate#to_timestamp_milliseconds},
// {startDate#to_iso_utc_datetime}.
func FormatTemplate(template string, criteria Criteria) (string, error) {
	var ferr error
	out := placeholderRegex.ReplaceAllStringFunc(template, func(ph string) string {
		groups := placeholderRegex.FindStringSubmatch(ph)
		name, converter := groups[1], groups[2]
		value, ok := criteria[name]
		if !ok || value == nil {
			ferr = fmt.Errorf("unresolved template placeholder: %s", name)
			return ""
		}
		s, err := convertValue(value, converter)
		if err != nil {
			ferr = err
			return ""
		}
		return s
	})
	if ferr != nil {
		return "", ferr
	}
	return out, nil
}

func convertValue(value interface{}, converter string) (string, error) {
	switch converter {
	case "":
		return formatValue(value), nil
	case "to_wkt":
		switch v := value.(type) {
		case *geometry.Footprint:
			return v.ToWKT()
		case string:
			return v, nil
		}
		return "", fmt.Errorf("to_wkt: unsupported value %T", value)
	case "to_timestamp_milliseconds":
		t, err := parseDate(value)
		if err != nil {
			return "", fmt.Errorf("to_timestamp_milliseconds: %w", err)
		}
		return strconv.FormatInt(t.UnixMilli(), 10), nil
	case "to_iso_utc_datetime":
		t, err := parseDate(value)
		if err != nil {
			return "", fmt.Errorf("to_iso_utc_datetime: %w", err)
		}
		return t.UTC().Format("2006-01-02T15:04:05Z"), nil
	}
	return "", fmt.Errorf("unknown template converter: %s", converter)
}

func parseDate(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		return dateparse.ParseAny(v)
	}
	return time.Time{}, fmt.Errorf("not a date: %v", value)
}

func formatValue(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case *geometry.Footprint:
		if s, err := v.ToWKT(); err == nil {
			return s
		}
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatFreeTextSearch composes the free-text parameter of the provider: each
// boolean group's operands are formatted with the criteria and joined by the
// group operator, each group is parenthesized, groups are joined with AND and
// the whole is parenthesized once more. Providers without a free-text
// parameter contribute nothing.
func FormatFreeTextSearch(cfg *config.Provider, criteria Criteria) (param, value string, err error) {
	if cfg.FreeTextSearchParam == "" {
		return "", "", nil
	}
	var groups []string
	for _, op := range cfg.FreeTextSearchOperations {
		operands := make([]string, 0, len(op.Operands))
		for _, operand := range op.Operands {
			formatted, err := FormatTemplate(operand, criteria)
			if err != nil {
				return "", "", fmt.Errorf("FormatFreeTextSearch: %w", err)
			}
			operands = append(operands, formatted)
		}
		groups = append(groups, "("+strings.Join(operands, " "+op.Operator+" ")+")")
	}
	if len(groups) == 0 {
		return "", "", nil
	}
	return cfg.FreeTextSearchParam, "(" + strings.Join(groups, " AND ") + ")", nil
}
