// Package forest turns the flat comment list of a campaign into questions with answers.
package forest

import "qanda/pkg/models"

// Build links a flat list of comments into a two-level forest.
//
// A comment is a question if its ParentID is empty or does not name another comment in the
// list. Every other comment is appended, in input order, to the answers of its root ancestor,
// so a reply to an answer lands next to that answer. Nil entries are skipped.
//
// The second return value holds comments that could not be placed: repeated IDs (the first
// occurrence wins) and comments whose parent chain loops back on itself.
func Build(comments []*models.Comment) ([]*models.Question, []models.Comment) {
	var dropped []models.Comment

	index := make(map[string]*models.Comment, len(comments))
	order := make([]*models.Comment, 0, len(comments))
	for _, c := range comments {
		if c == nil {
			continue
		}
		if _, ok := index[c.ID]; ok {
			dropped = append(dropped, *c)
			continue
		}
		index[c.ID] = c
		order = append(order, c)
	}

	// Root ancestor per comment ID, "" for comments on or below a cycle.
	rootOf := make(map[string]string, len(order))
	onPath := make(map[string]bool)
	var path []string
	for _, c := range order {
		path = path[:0]
		clear(onPath)

		root := ""
		cur := c
		for {
			if r, ok := rootOf[cur.ID]; ok {
				root = r
				break
			}
			parent, ok := index[cur.ParentID]
			if cur.ParentID == "" || !ok {
				root = cur.ID
				break
			}
			if onPath[cur.ID] {
				break
			}
			onPath[cur.ID] = true
			path = append(path, cur.ID)
			cur = parent
		}

		rootOf[cur.ID] = root
		for _, id := range path {
			rootOf[id] = root
		}
	}

	questions := make(map[string]*models.Question)
	var roots []*models.Question
	for _, c := range order {
		if rootOf[c.ID] != c.ID {
			continue
		}
		q := &models.Question{Comment: *c, Answers: []models.Comment{}}
		questions[c.ID] = q
		roots = append(roots, q)
	}

	for _, c := range order {
		root := rootOf[c.ID]
		switch {
		case root == c.ID:
		case root == "":
			dropped = append(dropped, *c)
		default:
			q := questions[root]
			q.Answers = append(q.Answers, *c)
		}
	}

	return roots, dropped
}

// Snapshot copies questions into a Forest that shares no slices with them.
func Snapshot(questions []*models.Question) models.Forest {
	f := make(models.Forest, 0, len(questions))
	for _, q := range questions {
		answers := make([]models.Comment, len(q.Answers))
		copy(answers, q.Answers)
		f = append(f, models.Question{Comment: q.Comment, Answers: answers})
	}
	return f
}
