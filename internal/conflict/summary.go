package conflict

import (
	"slices"
)

// Summary partitions the paths known from the last detection pass, minus
// those resolved since, by status. The three slices are sorted and
// pairwise disjoint.
type Summary struct {
	TotalFiles     int
	ModifiedFiles  []string
	DeletedFiles   []string
	UnchangedFiles []string
}

// HasConflicts reports whether any file is modified or deleted.
func (s *Summary) HasConflicts() bool {
	return s != nil && len(s.ModifiedFiles)+len(s.DeletedFiles) > 0
}

// buildSummary recomputes a summary from path→status bookkeeping.
func buildSummary(known map[string]Status) *Summary {
	s := &Summary{
		ModifiedFiles:  []string{},
		DeletedFiles:   []string{},
		UnchangedFiles: []string{},
	}
	for path, status := range known {
		switch status {
		case StatusModified:
			s.ModifiedFiles = append(s.ModifiedFiles, path)
		case StatusDeleted:
			s.DeletedFiles = append(s.DeletedFiles, path)
		case StatusUnchanged:
			s.UnchangedFiles = append(s.UnchangedFiles, path)
		}
	}
	slices.Sort(s.ModifiedFiles)
	slices.Sort(s.DeletedFiles)
	slices.Sort(s.UnchangedFiles)
	s.TotalFiles = len(s.ModifiedFiles) + len(s.DeletedFiles) + len(s.UnchangedFiles)
	return s
}
