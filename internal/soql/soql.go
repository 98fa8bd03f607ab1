// Package soql renders operation descriptors into SOQL query strings.
// Rendering is pure and deterministic: the same descriptor always yields
// byte-identical output.
package soql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/crmchat/crmchat/internal/descriptor"
)

const (
	// DefaultReadLimit caps read queries when the descriptor carries no
	// explicit limit.
	DefaultReadLimit = 100
	// DefaultAggregateLimit caps grouped aggregate queries. Ungrouped
	// aggregates return a single row and carry no LIMIT at all.
	DefaultAggregateLimit = 1000
)

var defaultFields = map[string][]string{
	"Account":     {"Name", "Industry", "AnnualRevenue", "BillingCity", "Phone", "Website"},
	"Opportunity": {"Name", "Amount", "CloseDate", "StageName", "Type"},
	"Contact":     {"FirstName", "LastName", "Email", "Phone", "Title"},
	"Lead":        {"FirstName", "LastName", "Company", "Email", "Status"},
}

// DefaultFields returns the column set used when a read descriptor selects
// no explicit fields. Unknown object types, including custom objects, fall
// back to Id and Name.
func DefaultFields(objectType string) []string {
	if fields, ok := defaultFields[objectType]; ok {
		return append([]string(nil), fields...)
	}
	return []string{"Id", "Name"}
}

// BuildRead renders a read descriptor into a SOQL SELECT. The column list
// is the ordered union of the selected fields (or the object defaults),
// the dotted parent-relationship paths, and each child subquery as a
// parenthesized nested SELECT.
func BuildRead(d descriptor.Descriptor) (string, error) {
	if d.ObjectType == "" {
		return "", fmt.Errorf("objectType is required")
	}

	columns := d.Fields
	if len(columns) == 0 {
		columns = DefaultFields(d.ObjectType)
	}
	selects := make([]string, 0, len(columns)+len(d.RelatedFields)+len(d.Subqueries))
	selects = append(selects, columns...)
	selects = append(selects, d.RelatedFields...)
	for _, sub := range d.Subqueries {
		if sub.RelationshipName == "" || len(sub.Fields) == 0 {
			continue
		}
		selects = append(selects, "(SELECT "+strings.Join(sub.Fields, ", ")+" FROM "+sub.RelationshipName+")")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(d.ObjectType)

	if clause := whereClause(d.Filters); clause != "" {
		sb.WriteString(" ")
		sb.WriteString(clause)
	}
	if orderBy := orderByClause(d.SortBy, d.SortOrder); orderBy != "" {
		sb.WriteString(" ")
		sb.WriteString(orderBy)
	}

	limit := d.Limit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	sb.WriteString(" LIMIT ")
	sb.WriteString(strconv.Itoa(limit))

	return sb.String(), nil
}

// BuildAggregate renders an aggregate descriptor. Group-by columns that are
// not already aggregate inputs come first in the column list, then the
// aggregate expressions. LIMIT is emitted only for grouped queries.
func BuildAggregate(d descriptor.Descriptor) (string, error) {
	if d.ObjectType == "" {
		return "", fmt.Errorf("objectType is required")
	}

	aggregated := make(map[string]struct{}, len(d.AggregateFunctions))
	selects := make([]string, 0, len(d.GroupBy)+len(d.AggregateFunctions))
	for _, agg := range d.AggregateFunctions {
		aggregated[agg.Field] = struct{}{}
	}
	for _, field := range d.GroupBy {
		if _, ok := aggregated[field]; !ok {
			selects = append(selects, field)
		}
	}
	for _, agg := range d.AggregateFunctions {
		selects = append(selects, renderAggregate(agg))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(d.ObjectType)

	if clause := whereClause(d.Filters); clause != "" {
		sb.WriteString(" ")
		sb.WriteString(clause)
	}
	if len(d.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(d.GroupBy, ", "))
	}
	if having := strings.TrimSpace(d.Having); having != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(stripKeywordPrefix(having, "HAVING"))
	}
	if orderBy := orderByClause(d.SortBy, d.SortOrder); orderBy != "" {
		sb.WriteString(" ")
		sb.WriteString(orderBy)
	}
	if len(d.GroupBy) > 0 {
		limit := d.Limit
		if limit <= 0 {
			limit = DefaultAggregateLimit
		}
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(limit))
	}

	return sb.String(), nil
}

func renderAggregate(agg descriptor.AggregateFunction) string {
	function := strings.ToUpper(strings.TrimSpace(agg.Function))
	alias := agg.Alias
	if alias == "" {
		alias = function + "_" + sanitizeAlias(agg.Field)
	}
	return function + "(" + agg.Field + ") " + alias
}

func sanitizeAlias(field string) string {
	var sb strings.Builder
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

// whereClause normalizes both filter shapes into a WHERE clause. A string
// clause that already starts with WHERE keeps its own keyword so the
// rendered query never doubles it; map-form entries become ANDed equality
// conditions with null values skipped entirely.
func whereClause(filters descriptor.Filters) string {
	if len(filters.Fields) > 0 {
		conditions := make([]string, 0, len(filters.Fields))
		for _, field := range filters.SortedFieldNames() {
			condition, ok := renderFieldCondition(field, filters.Fields[field])
			if !ok {
				continue
			}
			conditions = append(conditions, condition)
		}
		if len(conditions) == 0 {
			return ""
		}
		return "WHERE " + strings.Join(conditions, " AND ")
	}

	clause := strings.TrimSpace(filters.Clause)
	if clause == "" {
		return ""
	}
	return "WHERE " + stripKeywordPrefix(clause, "WHERE")
}

func renderFieldCondition(field string, value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return field + " = '" + strings.ReplaceAll(v, "'", `\'`) + "'", true
	case bool:
		return field + " = " + strconv.FormatBool(v), true
	case float64:
		return field + " = " + strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return field + " = " + strconv.Itoa(v), true
	case int64:
		return field + " = " + strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

func stripKeywordPrefix(clause, keyword string) string {
	upper := strings.ToUpper(clause)
	if strings.HasPrefix(upper, keyword+" ") {
		return strings.TrimSpace(clause[len(keyword)+1:])
	}
	return clause
}

func orderByClause(sortBy, sortOrder string) string {
	sortBy = strings.TrimSpace(sortBy)
	if sortBy == "" {
		return ""
	}
	order := strings.ToUpper(strings.TrimSpace(sortOrder))
	if order != "DESC" {
		order = "ASC"
	}
	return "ORDER BY " + sortBy + " " + order
}
