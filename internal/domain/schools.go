package domain

import (
	"time"

	"coach-backend/internal/metadata"
	"coach-backend/internal/schema"
	"coach-backend/internal/transform"
)

type School struct {
	ID           string    `json:"id" validate:"required"`
	SchoolNumber string    `json:"schoolNumber" validate:"required,notblank"`
	District     string    `json:"district" validate:"required,notblank"`
	SchoolName   string    `json:"schoolName" validate:"required,notblank"`
	Address      string    `json:"address,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	Label string `json:"label,omitempty"`
}

type SchoolInput struct {
	SchoolNumber string `json:"schoolNumber" validate:"required,notblank,max=20"`
	District     string `json:"district" validate:"required,notblank,max=80"`
	SchoolName   string `json:"schoolName" validate:"required,notblank,max=120"`
	Address      string `json:"address,omitempty" validate:"omitempty,max=200"`
}

var (
	schoolSchema      = schema.MustNew[School]("School")
	schoolInputSchema = schema.MustNew[SchoolInput]("SchoolInput")

	schoolLabel = transform.MustComputed[School](map[string]string{
		"label": `record.schoolNumber + " - " + record.schoolName`,
	})
)

func schoolEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "schools",
		Table:      "schools",
		PrimaryKey: uuidKey(),
		Fields: append([]metadata.Field{
			idField(),
			{Name: "schoolNumber", Type: "string", Required: true, Unique: true},
			{Name: "district", Type: "string", Required: true},
			{Name: "schoolName", Type: "string", Required: true},
			{Name: "address", Type: "string", Nullable: true},
		}, timestamps()...),
		SortFields:   []string{"schoolName", "schoolNumber", "district", "createdAt"},
		SearchFields: []string{"schoolName", "schoolNumber", "district"},
		DefaultSort:  "schoolName",
	}
}
