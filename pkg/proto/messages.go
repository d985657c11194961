// Package proto defines the message types exchanged over the internal
// JSON-over-TCP RPC layer (see pkg/grpc). Field names follow the HTTP API so
// clients can share decoding code between the two transports.
package proto

// Service method names.
const (
	MethodSearch = "SymbolService.Search"
	MethodLookup = "SymbolService.Lookup"
	MethodStats  = "SymbolService.Stats"
	MethodReload = "SymbolService.Reload"
	MethodHealth = "SymbolService.Health"
)

// ---------- Common ----------

// Target is one documentation location for a symbol.
type Target struct {
	Scope     string `json:"scope"`
	Reference string `json:"reference"`
}

// Symbol is an index entry with its (possibly scope-filtered) targets.
type Symbol struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Targets     []Target `json:"targets"`
}

// HealthCheckResponse mirrors the gRPC health checking protocol.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING
}

// ---------- Search ----------

// SearchRequest is the input to the Search RPC. Mode is "prefix" (default)
// or "substring"; a zero Limit uses the server default.
type SearchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
	Limit int32  `json:"limit"`
}

type SearchResponse struct {
	Query         string   `json:"query"`
	Mode          string   `json:"mode"`
	Scope         string   `json:"scope,omitempty"`
	Generation    uint64   `json:"generation"`
	TotalHits     int32    `json:"total_hits"`
	Results       []Symbol `json:"results"`
	LatencyMicros int64    `json:"latency_us"`
}

type LookupRequest struct {
	Name string `json:"name"`
}

type LookupResponse struct {
	Generation uint64 `json:"generation"`
	Symbol     Symbol `json:"symbol"`
}

// ---------- Index ----------

type StatsRequest struct{}

// StatsResponse describes the active index. LoadedAt is Unix seconds, zero
// before the first load.
type StatsResponse struct {
	Ready      bool   `json:"ready"`
	Generation uint64 `json:"generation"`
	Entries    int64  `json:"entries"`
	Targets    int64  `json:"targets"`
	LoadedAt   int64  `json:"loaded_at,omitempty"`
}

// ReloadRequest carries the admin token when the server requires one.
type ReloadRequest struct {
	Token string `json:"token,omitempty"`
}

// ReloadResponse reports the index published by a successful reload.
type ReloadResponse struct {
	Generation uint64 `json:"generation"`
	Entries    int64  `json:"entries"`
	Targets    int64  `json:"targets"`
}
