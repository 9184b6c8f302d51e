package survey

// ExtractInterviews projects the root columns into one record per row and
// stamps provenance. It fails with ErrMissingRootColumn if any root column is
// absent from t.
func ExtractInterviews(t *Table, roots RootColumns, src SourceFile) ([]InterviewRecord, error) {
	if err := roots.Validate(t); err != nil {
		return nil, err
	}

	names := roots.Names()
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = t.ColumnIndex(n)
	}

	out := make([]InterviewRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		vals := make([]any, len(idx))
		for i, ci := range idx {
			if ci < len(row) {
				vals[i] = row[ci]
			}
		}
		out = append(out, InterviewRecord{
			Values:       vals,
			SourceFile:   src.Name,
			FileModified: src.Modified,
		})
	}
	return out, nil
}
