package dto

// DeletionFailure records one physical delete that did not succeed.
type DeletionFailure struct {
	Store  string `json:"store"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// DeletionReport summarises a delete: the relational outcome plus the
// best-effort file cleanup that followed it.
type DeletionReport struct {
	RelationalDeleteOK bool              `json:"relational_delete_ok"`
	FilesAttempted     int               `json:"files_attempted"`
	FilesDeleted       int               `json:"files_deleted"`
	FilesFailed        int               `json:"files_failed"`
	Failures           []DeletionFailure `json:"failures"`
}
