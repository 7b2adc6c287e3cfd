package logging

// Standardized structured logging keys shared by all beacon components.
const (
	// FieldComponent identifies the emitting subsystem (discovery, repository,
	// supervisor, logserver, engine).
	FieldComponent = "component"

	// FieldEventType carries a stable machine-readable event identifier.
	FieldEventType = "event_type"

	// FieldService names a supervised child service.
	FieldService = "service"

	// FieldPath names a repository document path.
	FieldPath = "path"

	// FieldSession names a log aggregator session.
	FieldSession = "session"

	// FieldPeer carries the remote address of a network peer.
	FieldPeer = "peer"
)
