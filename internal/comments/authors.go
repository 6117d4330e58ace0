package comments

// AuthorIDs walks a blob in appearance order (explores, then fields, then
// comment list order) and returns each distinct author id once, keeping the
// order of first occurrence. Deleted comments still count: their authors
// must resolve for display.
func AuthorIDs(b *Blob) []string {
	seen := make(map[string]struct{})
	ids := []string{}
	for _, explore := range b.Explores() {
		ec, ok := b.Explore(explore)
		if !ok {
			continue
		}
		for _, field := range ec.Fields() {
			for _, c := range ec.Comments(field) {
				id := string(c.Author)
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// ParseAuthorIDs extracts author ids straight from serialized blob text.
func ParseAuthorIDs(text string) ([]string, error) {
	blob, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return AuthorIDs(blob), nil
}
