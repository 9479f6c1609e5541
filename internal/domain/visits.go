package domain

import (
	"time"

	"coach-backend/internal/metadata"
	"coach-backend/internal/schema"
	"coach-backend/internal/transform"
)

// Visit is a scheduled coaching visit. Lists of schools and staff show
// visit counts, so a visit mutation refreshes them too.
type Visit struct {
	ID        string    `json:"id" validate:"required"`
	Date      time.Time `json:"date" validate:"required"`
	SchoolID  string    `json:"schoolId" validate:"required"`
	CoachID   string    `json:"coachId" validate:"required"`
	Purpose   string    `json:"purpose" validate:"required,oneof=initial follow-up observation debrief"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Title string `json:"title,omitempty"`
}

type VisitInput struct {
	Date     time.Time `json:"date" validate:"required"`
	SchoolID string    `json:"schoolId" validate:"required,notblank"`
	CoachID  string    `json:"coachId" validate:"required,notblank"`
	Purpose  string    `json:"purpose" validate:"required,oneof=initial follow-up observation debrief"`
	Notes    string    `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

var (
	visitSchema      = schema.MustNew[Visit]("Visit")
	visitInputSchema = schema.MustNew[VisitInput]("VisitInput")

	visitTitle = transform.MustComputed[Visit](map[string]string{
		"title": `record.purpose + " visit on " + split(record.date, "T")[0]`,
	})
)

func visitEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "visits",
		Table:      "visits",
		PrimaryKey: uuidKey(),
		Fields: append([]metadata.Field{
			idField(),
			{Name: "date", Type: "timestamp", Required: true},
			{Name: "schoolId", Type: "string", Required: true},
			{Name: "coachId", Type: "string", Required: true},
			{Name: "purpose", Type: "string", Required: true, Enum: []string{"initial", "follow-up", "observation", "debrief"}},
			{Name: "notes", Type: "string", Nullable: true},
		}, timestamps()...),
		SortFields:   []string{"date", "createdAt"},
		SearchFields: []string{"notes", "purpose"},
		DefaultSort:  "date",
		Related:      []string{"schools", "staff"},
	}
}
