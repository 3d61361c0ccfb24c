package models

// Severity of a health issue.
type Severity string

// Severities.
const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Health issue types.
const (
	IssueStalePin             = "stale-pin"
	IssueDanglingLink         = "dangling-link"
	IssueOrphan               = "orphan"
	IssueCircularDependency   = "circular-dependency"
	IssueUncoveredRequirement = "uncovered-requirement"
)

// HealthIssue is one finding rendered in the health panel.
type HealthIssue struct {
	Severity       Severity `json:"severity"`
	Type           string   `json:"type"`
	Message        string   `json:"message"`
	RelatedItemIDs []string `json:"relatedItemIds"`
	RelatedLinkID  string   `json:"relatedLinkId,omitempty"`
	Endpoint       Endpoint `json:"endpoint,omitempty"`
	PinnedVersion  string   `json:"pinnedVersion,omitempty"`
	LiveVersion    string   `json:"liveVersion,omitempty"`
}

// StaleCandidate marks a pinned link that a proposed version change would
// make stale.
type StaleCandidate struct {
	LinkID          string   `json:"linkId"`
	Endpoint        Endpoint `json:"endpoint"`
	PinnedVersion   string   `json:"pinnedVersion"`
	ProposedVersion string   `json:"proposedVersion,omitempty"`
}

// ImpactAnalysis partitions the items reachable from a changed item.
type ImpactAnalysis struct {
	ItemID          string `json:"itemId"`
	ProposedVersion string `json:"proposedVersion,omitempty"`
	LiveVersion     string `json:"liveVersion,omitempty"`
	// NotNewer is set when the proposed version does not order after the
	// live one; item versions never go backwards.
	NotNewer         bool             `json:"notNewer,omitempty"`
	Downstream       []string         `json:"downstream"`
	Upstream         []string         `json:"upstream"`
	WouldBecomeStale []StaleCandidate `json:"wouldBecomeStale"`
}

// Coverage summarises requirement coverage across the model.
type Coverage struct {
	Total     int     `json:"total"`
	Covered   int     `json:"covered"`
	Uncovered int     `json:"uncovered"`
	Percent   float64 `json:"percent"`
}
