package httpapi

// UpdateMessage is pushed to WebSocket clients whenever a watched branch's
// head changes.
type UpdateMessage struct {
	Branch string `json:"branch"`
	Head   string `json:"head"`
}

// EntryJSON is the wire form of an engine.Entry.
type EntryJSON struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
	Kind string `json:"kind"`
}

// StatusEntryJSON is the wire form of an engine.StatusEntry.
type StatusEntryJSON struct {
	Path   string `json:"path"`
	Change string `json:"change"`
}

// CommitJSON is the wire form of an engine.Commit.
type CommitJSON struct {
	ID        string `json:"id"`
	RootHash  string `json:"rootHash"`
	Message   string `json:"message"`
	Author    string `json:"author"`
	Timestamp string `json:"timestamp"`
	Parent    string `json:"parent,omitempty"`
}

// errorResponse is the JSON body written for any failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
