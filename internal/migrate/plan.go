package migrate

// Plan represents the file writes a migration or format run performs
type Plan struct {
	Add       []FileOp
	Update    []FileOp
	Unchanged []FileOp
}

// FileOp represents one rendered file
type FileOp struct {
	Block    string // block the file belongs to
	DestPath string // absolute path below the blocks directory
	Hash     string // SHA256 hash of Content
	Content  []byte
}

// Changes returns the number of files the plan writes.
func (p *Plan) Changes() int {
	return len(p.Add) + len(p.Update)
}
