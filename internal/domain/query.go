package domain

// SortMode says whether an ordering is applied by the upstream endpoint or
// computed locally after a full corpus fetch.
type SortMode string

const (
	SortDelegated  SortMode = "delegated"
	SortLocalField SortMode = "local_field"
)

// SortSpec is derived once per query from the requested sort string.
type SortSpec struct {
	Mode       SortMode
	Token      string // upstream sort token for delegated sorts
	Field      string // lowercased field name for local sorts
	Descending bool
}

// Query describes one top-level user request.
type Query struct {
	// Path is the display-name category path, "Dept:Cat:SubCat".
	Path string
	// Exclude lists sibling category slugs to leave out when the leaf
	// category is expanded into its children.
	Exclude []string
	Sort    string
	Limit   int
}

// Stage identifies which phase of a query a progress update belongs to.
type Stage string

const (
	StageListing Stage = "listing"
	StageDetail  Stage = "detail"
	StageExport  Stage = "export"
)

// ProgressFunc reports incremental progress, at least once per page or
// item. Total is -1 when unknown (open-ended cursor walks).
type ProgressFunc func(loaded, total int)

// ProgressEvent is the stream form of a progress update.
type ProgressEvent struct {
	Stage  Stage
	Loaded int
	Total  int
}
