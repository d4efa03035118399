package sorting

import (
	"sort"
	"strings"

	"storefront/exporter/internal/domain"
)

// TokenRelevance is the neutral upstream ordering. Local sorts always
// page with it so the corpus is stable and order-irrelevant before the
// client-side sort runs.
const TokenRelevance = "Relevance"

// delegatedTokens are the orderings the upstream endpoint understands
// natively; they pass through to the pager verbatim.
var delegatedTokens = map[string]struct{}{
	"ReleaseDate+Descending": {},
	"Rating+Descending":      {},
	"Price+Descending":       {},
	"Price+Ascending":        {},
	TokenRelevance:           {},
}

const localPrefix = "Field:"

// Classify parses a requested sort string into a SortSpec. The grammar
// is either a fixed server-native token or "Field:<name>+<Ascending|
// Descending>"; anything else is a ParseError.
func Classify(sortString string) (domain.SortSpec, error) {
	if _, ok := delegatedTokens[sortString]; ok {
		return domain.SortSpec{Mode: domain.SortDelegated, Token: sortString}, nil
	}

	rest, ok := strings.CutPrefix(sortString, localPrefix)
	if !ok {
		return domain.SortSpec{}, &domain.ParseError{Input: sortString, Reason: "unknown sort token"}
	}

	field, direction, ok := strings.Cut(rest, "+")
	if !ok {
		return domain.SortSpec{}, &domain.ParseError{Input: sortString, Reason: "missing sort direction"}
	}

	var descending bool
	switch direction {
	case "Ascending":
		descending = false
	case "Descending":
		descending = true
	default:
		return domain.SortSpec{}, &domain.ParseError{Input: sortString, Reason: "direction must be Ascending or Descending"}
	}

	name := strings.ToLower(strings.TrimSpace(field))
	if _, ok := accessors[name]; !ok {
		return domain.SortSpec{}, &domain.ParseError{Input: sortString, Reason: "unknown sort field " + field}
	}

	return domain.SortSpec{Mode: domain.SortLocalField, Field: name, Descending: descending}, nil
}

// fieldValue is the extracted, comparable form of one record field.
type fieldValue struct {
	null     bool
	isString bool
	num      float64
	str      string
}

// accessors is the tagged lookup table mapping sortable field names to
// typed extractors. Extending local sorting means adding a row here.
var accessors = map[string]func(r *domain.ListingRecord) fieldValue{
	"price": func(r *domain.ListingRecord) fieldValue {
		if r.Price == nil {
			return fieldValue{null: true}
		}
		return fieldValue{num: *r.Price}
	},
	"rating": func(r *domain.ListingRecord) fieldValue {
		if r.Rating == nil {
			return fieldValue{null: true}
		}
		return fieldValue{num: *r.Rating}
	},
	"reviewcount": func(r *domain.ListingRecord) fieldValue {
		if r.ReviewCount == nil {
			return fieldValue{null: true}
		}
		return fieldValue{num: float64(*r.ReviewCount)}
	},
	"releasedate": func(r *domain.ListingRecord) fieldValue {
		if r.ReleaseDate == nil {
			return fieldValue{null: true}
		}
		return fieldValue{num: float64(r.ReleaseDate.UnixMilli())}
	},
	"title": func(r *domain.ListingRecord) fieldValue {
		if r.Title == "" {
			return fieldValue{null: true}
		}
		return fieldValue{isString: true, str: r.Title}
	},
	"brand": func(r *domain.ListingRecord) fieldValue {
		if r.Brand == nil || *r.Brand == "" {
			return fieldValue{null: true}
		}
		return fieldValue{isString: true, str: *r.Brand}
	},
}

// SortLocal returns records ordered by the named field. Missing values
// compare as smallest, before the direction flip, so they lead ascending
// results and trail descending ones. Ties keep their input order.
func SortLocal(records []domain.ListingRecord, field string, descending bool) []domain.ListingRecord {
	extract, ok := accessors[field]
	if !ok {
		return records
	}

	out := make([]domain.ListingRecord, len(records))
	copy(out, records)

	sort.SliceStable(out, func(i, j int) bool {
		c := compare(extract(&out[i]), extract(&out[j]))
		if descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compare(a, b fieldValue) int {
	switch {
	case a.null && b.null:
		return 0
	case a.null:
		return -1
	case b.null:
		return 1
	case a.isString:
		return strings.Compare(strings.ToLower(a.str), strings.ToLower(b.str))
	case a.num < b.num:
		return -1
	case a.num > b.num:
		return 1
	default:
		return 0
	}
}
