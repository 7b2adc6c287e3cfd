package protocol

// Error codes carried by MsgReplyError frames.
const (
	CodeBadRequest  = "bad_request"
	CodeNotFound    = "not_found"
	CodeConflict    = "conflict"
	CodeIOError     = "io_error"
	CodeUnavailable = "unavailable"
	CodeTimeout     = "timeout"
)

// Event kinds carried by MsgEvent frames.
const (
	EventCreated  = "created"
	EventModified = "modified"
	EventDeleted  = "deleted"
)

// NodeInfo describes one document in a listing.
type NodeInfo struct {
	Path    string `json:"path"`
	Version int64  `json:"version"`
}

// ListRequest asks for every document under a prefix. An empty prefix lists
// the whole tree.
type ListRequest struct {
	Key    string `json:"key"`
	Prefix string `json:"prefix"`
}

// ListReply carries the matching documents sorted by path.
type ListReply struct {
	Key   string     `json:"key"`
	Nodes []NodeInfo `json:"nodes"`
}

// ReadRequest fetches one document.
type ReadRequest struct {
	Key  string `json:"key"`
	Path string `json:"path"`
}

// ReadReply carries document content and its current version.
type ReadReply struct {
	Key     string `json:"key"`
	Path    string `json:"path"`
	Content []byte `json:"content"`
	Version int64  `json:"version"`
}

// WriteRequest stores content at path when the expected version matches the
// stored one. ExpectedVersion zero means "create, must not exist yet".
type WriteRequest struct {
	Key             string `json:"key"`
	Path            string `json:"path"`
	Content         []byte `json:"content"`
	ExpectedVersion int64  `json:"expected_version"`
}

// WriteReply reports the version assigned to the accepted write.
type WriteReply struct {
	Key     string `json:"key"`
	Version int64  `json:"version"`
}

// DeleteRequest removes path subject to the same optimistic check as writes.
type DeleteRequest struct {
	Key             string `json:"key"`
	Path            string `json:"path"`
	ExpectedVersion int64  `json:"expected_version"`
}

// DeleteReply confirms a delete.
type DeleteReply struct {
	Key string `json:"key"`
}

// WatchRequest subscribes the session to change events under a prefix.
type WatchRequest struct {
	Key    string `json:"key"`
	Prefix string `json:"prefix"`
}

// WatchReply confirms a watch or unwatch registration.
type WatchReply struct {
	Key string `json:"key"`
}

// Event is pushed to watching sessions after an accepted mutation.
type Event struct {
	Path    string `json:"path"`
	Version int64  `json:"version"`
	Kind    string `json:"kind"`
}

// EngineAddrRequest asks where the key-value/pub-sub engine lives.
type EngineAddrRequest struct {
	Key string `json:"key"`
}

// EngineAddrReply points the client at the settings and data engine
// instances. Local clients receive the unix socket for the settings instance.
type EngineAddrReply struct {
	Key      string `json:"key"`
	Network  string `json:"network"`
	Addr     string `json:"addr"`
	DataAddr string `json:"data_addr"`
}

// LogAddrRequest asks for the log aggregator address.
type LogAddrRequest struct {
	Key string `json:"key"`
}

// LogAddrReply carries the log aggregator host and port.
type LogAddrReply struct {
	Key  string `json:"key"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// StatusRequest asks for supervisor and session status.
type StatusRequest struct {
	Key string `json:"key"`
}

// ServiceStatus mirrors one supervised service descriptor.
type ServiceStatus struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Required bool   `json:"required"`
	Ports    []int  `json:"ports,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StatusReply reports daemon liveness details.
type StatusReply struct {
	Key      string          `json:"key"`
	Services []ServiceStatus `json:"services"`
	Clients  []string        `json:"clients"`
}

// ClientNameRequest sets (MsgSetClientName) or reads (MsgGetClientName) the
// session name.
type ClientNameRequest struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// ClientNameReply echoes the session name currently on record.
type ClientNameReply struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// PingRequest checks connection liveness.
type PingRequest struct {
	Key string `json:"key"`
}

// PongReply answers a ping.
type PongReply struct {
	Key string `json:"key"`
}

// ErrorReply reports a per-request failure. The serving connection stays up.
type ErrorReply struct {
	Key     string `json:"key"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
