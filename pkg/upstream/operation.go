// Package upstream talks to the crawl service's HTTP API: it transcodes
// parameters into the wire format, executes requests with retry/backoff,
// and serves repeated read-mostly calls from a bounded TTL cache.
package upstream

// Operation names one upstream action.
type Operation string

const (
	OpScrape       Operation = "scrape"
	OpCrawl        Operation = "crawl"
	OpMap          Operation = "map"
	OpExtract      Operation = "extract"
	OpCheckStatus  Operation = "checkStatus"
	OpSearch       Operation = "search"
	OpDeepResearch Operation = "deepResearch"
)

// ArgKind describes how an operation's primary argument is supplied.
type ArgKind int

const (
	ArgURL ArgKind = iota
	ArgURLList
	ArgQuery
	ArgJobID
)

type operationInfo struct {
	path string
	// argKey is the wire name of the primary argument.
	argKey string
	kind   ArgKind
	// cacheable marks read-mostly operations whose responses may be served
	// from the TTL cache. Job-starting operations are never cached.
	cacheable bool
}

var operations = map[Operation]operationInfo{
	OpScrape:       {path: "/v1/scrape", argKey: "url", kind: ArgURL, cacheable: true},
	OpCrawl:        {path: "/v1/crawl", argKey: "url", kind: ArgURL},
	OpMap:          {path: "/v1/map", argKey: "url", kind: ArgURL, cacheable: true},
	OpExtract:      {path: "/v1/extract", argKey: "urls", kind: ArgURLList, cacheable: true},
	OpCheckStatus:  {path: "/v1/crawl", argKey: "id", kind: ArgJobID, cacheable: true},
	OpSearch:       {path: "/v1/search", argKey: "query", kind: ArgQuery},
	OpDeepResearch: {path: "/v1/deep-research", argKey: "query", kind: ArgQuery},
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	_, ok := operations[op]
	return ok
}

// Cacheable reports whether responses for op may be cached.
func (op Operation) Cacheable() bool {
	return operations[op].cacheable
}

// ArgKey returns the wire name of the operation's primary argument.
func (op Operation) ArgKey() string {
	return operations[op].argKey
}

// Kind returns how the operation's primary argument is supplied.
func (op Operation) Kind() ArgKind {
	return operations[op].kind
}

func (op Operation) path() string {
	return operations[op].path
}
