package models

// CaseGroup is the content-authored cluster of questions sharing a stem.
// Membership is resolved through Question.CaseGroupID, not stored here.
type CaseGroup struct {
	ID          string `bson:"_id,omitempty" json:"id"`
	CourseID    string `bson:"course_id" json:"course_id"`
	UnitID      string `bson:"unit_id,omitempty" json:"unit_id,omitempty"`
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
}

// AnswerableUnit is one block the learner walks through: either a case
// group with its member questions, or a synthetic single-question unit.
type AnswerableUnit struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
	Synthetic   bool       `json:"synthetic"`
}

func (u *AnswerableUnit) QuestionIDs() []string {
	ids := make([]string, len(u.Questions))
	for i := range u.Questions {
		ids[i] = u.Questions[i].ID
	}
	return ids
}
