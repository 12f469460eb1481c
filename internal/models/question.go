package models

type Option struct {
	ID        string `bson:"id" json:"id"`
	Text      string `bson:"text" json:"text"`
	IsCorrect bool   `bson:"is_correct" json:"is_correct,omitempty"`
}

type Question struct {
	ID          string   `bson:"_id,omitempty" json:"id"`
	CourseID    string   `bson:"course_id" json:"course_id"`
	UnitID      string   `bson:"unit_id,omitempty" json:"unit_id,omitempty"`
	Prompt      string   `bson:"prompt" json:"prompt"`
	Explanation string   `bson:"explanation" json:"explanation"`
	OrderHint   int      `bson:"order_hint" json:"order_hint"`
	CaseGroupID string   `bson:"case_group_id,omitempty" json:"case_group_id,omitempty"`
	Options     []Option `bson:"options" json:"options"`
}

// CorrectOptionIDs returns the ids of all options flagged correct, in
// declaration order.
func (q *Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Sanitized returns a copy safe to hand to a learner who has not yet
// answered: correctness flags and the explanation are stripped.
func (q Question) Sanitized() Question {
	out := q
	out.Explanation = ""
	out.Options = make([]Option, len(q.Options))
	for i, o := range q.Options {
		o.IsCorrect = false
		out.Options[i] = o
	}
	return out
}
