// Package descriptor defines the structured representation of a user's
// intended Salesforce operation. A Descriptor is produced once per utterance
// by the translator, consumed synchronously by the SOQL builder and the
// dispatcher, and never mutated after construction.
package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Operation string

const (
	OperationRead      Operation = "read"
	OperationCreate    Operation = "create"
	OperationUpdate    Operation = "update"
	OperationDelete    Operation = "delete"
	OperationAggregate Operation = "aggregate"
)

var ErrUnknownOperation = errors.New("unknown operation")

func ParseOperation(raw string) (Operation, error) {
	switch Operation(strings.ToLower(strings.TrimSpace(raw))) {
	case OperationRead:
		return OperationRead, nil
	case OperationCreate:
		return OperationCreate, nil
	case OperationUpdate:
		return OperationUpdate, nil
	case OperationDelete:
		return OperationDelete, nil
	case OperationAggregate:
		return OperationAggregate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownOperation, raw)
	}
}

// AggregateFunction is one SELECT expression of an aggregate query. Alias
// must be unique within a descriptor; when empty the builder derives one
// from the function and field names.
type AggregateFunction struct {
	Function string `json:"function"`
	Field    string `json:"field"`
	Alias    string `json:"alias,omitempty"`
}

// Subquery is a child-relationship nested SELECT.
type Subquery struct {
	RelationshipName string   `json:"relationshipName"`
	Fields           []string `json:"fields"`
}

// Filters accepts both shapes the model has historically produced: a
// free-form SOQL predicate string (canonical) and a field-to-value map
// rendered as ANDed equality conditions.
type Filters struct {
	Clause string
	Fields map[string]any
}

func (f *Filters) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*f = Filters{}
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var clause string
		if err := json.Unmarshal(data, &clause); err != nil {
			return err
		}
		*f = Filters{Clause: clause}
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("filters must be a string or an object: %w", err)
	}
	*f = Filters{Fields: fields}
	return nil
}

func (f Filters) MarshalJSON() ([]byte, error) {
	switch {
	case f.Fields != nil:
		return json.Marshal(f.Fields)
	case f.Clause != "":
		return json.Marshal(f.Clause)
	default:
		return []byte("null"), nil
	}
}

func (f Filters) IsZero() bool {
	return f.Clause == "" && len(f.Fields) == 0
}

// SortedFieldNames returns the map-form filter keys in a stable order so
// rendering is deterministic.
func (f Filters) SortedFieldNames() []string {
	names := make([]string, 0, len(f.Fields))
	for name := range f.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptor is the central data object of the pipeline. Only the fields
// relevant to Operation are meaningful; downstream consumers ignore the
// rest even when present.
type Descriptor struct {
	Operation          Operation           `json:"operation"`
	ObjectType         string              `json:"objectType"`
	Fields             []string            `json:"fields,omitempty"`
	RelatedFields      []string            `json:"relatedFields,omitempty"`
	Subqueries         []Subquery          `json:"subqueries,omitempty"`
	Filters            Filters             `json:"filters,omitempty"`
	Limit              int                 `json:"limit,omitempty"`
	SortBy             string              `json:"sortBy,omitempty"`
	SortOrder          string              `json:"sortOrder,omitempty"`
	AggregateFunctions []AggregateFunction `json:"aggregateFunctions,omitempty"`
	GroupBy            []string            `json:"groupBy,omitempty"`
	Having             string              `json:"having,omitempty"`
	Data               map[string]any      `json:"data,omitempty"`
	RecordID           string              `json:"recordId,omitempty"`
}

// Decode parses untrusted model JSON into a Descriptor. The operation tag
// is normalized to lower case and defaults to read when absent; older
// prompt variants omitted it. A present but unrecognized operation is an
// error. Field-level semantic validity (nonexistent columns and so on) is
// not checked here; Salesforce reports that at call time.
func Decode(data []byte) (Descriptor, error) {
	var loose struct {
		Operation          string              `json:"operation"`
		ObjectType         string              `json:"objectType"`
		Fields             []string            `json:"fields"`
		RelatedFields      []string            `json:"relatedFields"`
		Subqueries         []Subquery          `json:"subqueries"`
		Filters            Filters             `json:"filters"`
		Limit              json.Number         `json:"limit"`
		SortBy             string              `json:"sortBy"`
		SortOrder          string              `json:"sortOrder"`
		AggregateFunctions []AggregateFunction `json:"aggregateFunctions"`
		GroupBy            []string            `json:"groupBy"`
		Having             string              `json:"having"`
		Data               map[string]any      `json:"data"`
		RecordID           string              `json:"recordId"`
	}
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.UseNumber()
	if err := decoder.Decode(&loose); err != nil {
		return Descriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}

	op := OperationRead
	if strings.TrimSpace(loose.Operation) != "" {
		parsed, err := ParseOperation(loose.Operation)
		if err != nil {
			return Descriptor{}, err
		}
		op = parsed
	}

	limit := 0
	if loose.Limit != "" {
		// Models occasionally emit limits as floats; truncate rather
		// than reject.
		if n, err := loose.Limit.Int64(); err == nil {
			limit = int(n)
		} else if f, err := loose.Limit.Float64(); err == nil {
			limit = int(f)
		}
	}

	return Descriptor{
		Operation:          op,
		ObjectType:         strings.TrimSpace(loose.ObjectType),
		Fields:             loose.Fields,
		RelatedFields:      loose.RelatedFields,
		Subqueries:         loose.Subqueries,
		Filters:            loose.Filters,
		Limit:              limit,
		SortBy:             strings.TrimSpace(loose.SortBy),
		SortOrder:          strings.ToUpper(strings.TrimSpace(loose.SortOrder)),
		AggregateFunctions: loose.AggregateFunctions,
		GroupBy:            loose.GroupBy,
		Having:             loose.Having,
		Data:               loose.Data,
		RecordID:           strings.TrimSpace(loose.RecordID),
	}, nil
}

// Validate checks the fields the operation requires. It does not reject
// extra fields that belong to other operations; those are ignored
// downstream.
func (d Descriptor) Validate() error {
	if d.ObjectType == "" {
		return errors.New("objectType is required")
	}
	switch d.Operation {
	case OperationRead:
		return nil
	case OperationCreate:
		if len(d.Data) == 0 {
			return errors.New("create requires a data payload")
		}
		return nil
	case OperationUpdate:
		if d.RecordID == "" {
			return errors.New("update requires a recordId")
		}
		if len(d.Data) == 0 {
			return errors.New("update requires a data payload")
		}
		return nil
	case OperationDelete:
		if d.RecordID == "" {
			return errors.New("delete requires a recordId")
		}
		return nil
	case OperationAggregate:
		if len(d.AggregateFunctions) == 0 {
			return errors.New("aggregate requires at least one aggregate function")
		}
		seen := make(map[string]struct{}, len(d.AggregateFunctions))
		for _, agg := range d.AggregateFunctions {
			if !isAggregateFunction(agg.Function) {
				return fmt.Errorf("unsupported aggregate function %q", agg.Function)
			}
			if agg.Field == "" {
				return fmt.Errorf("aggregate function %s requires a field", agg.Function)
			}
			if agg.Alias == "" {
				continue
			}
			if _, dup := seen[agg.Alias]; dup {
				return fmt.Errorf("duplicate aggregate alias %q", agg.Alias)
			}
			seen[agg.Alias] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperation, d.Operation)
	}
}

func isAggregateFunction(name string) bool {
	switch strings.ToUpper(name) {
	case "COUNT", "SUM", "AVG", "MIN", "MAX":
		return true
	default:
		return false
	}
}
