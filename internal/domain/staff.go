package domain

import (
	"time"

	"coach-backend/internal/metadata"
	"coach-backend/internal/schema"
	"coach-backend/internal/transform"
)

type Staff struct {
	ID        string    `json:"id" validate:"required"`
	StaffName string    `json:"staffName" validate:"required,notblank"`
	Email     string    `json:"email" validate:"required,email"`
	SchoolID  string    `json:"schoolId,omitempty"`
	Role      string    `json:"role,omitempty" validate:"omitempty,oneof=teacher coach administrator"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Label string `json:"label,omitempty"`
}

// StaffInput leaves Active nil when the caller did not send it, so the
// column default applies on create.
type StaffInput struct {
	StaffName string `json:"staffName" validate:"required,notblank,max=120"`
	Email     string `json:"email" validate:"required,email"`
	SchoolID  string `json:"schoolId,omitempty"`
	Role      string `json:"role,omitempty" validate:"omitempty,oneof=teacher coach administrator"`
	Active    *bool  `json:"active,omitempty"`
}

var (
	staffSchema      = schema.MustNew[Staff]("Staff")
	staffInputSchema = schema.MustNew[StaffInput]("StaffInput")

	staffLabel = transform.MustComputed[Staff](map[string]string{
		"label": `record.staffName + " <" + record.email + ">"`,
	})
)

func staffEntity() *metadata.Entity {
	return &metadata.Entity{
		Name:       "staff",
		Table:      "staff",
		PrimaryKey: uuidKey(),
		SoftDelete: true,
		Fields: append([]metadata.Field{
			idField(),
			{Name: "staffName", Type: "string", Required: true},
			{Name: "email", Type: "string", Required: true, Unique: true},
			{Name: "schoolId", Type: "string", Nullable: true},
			{Name: "role", Type: "string", Nullable: true, Enum: []string{"teacher", "coach", "administrator"}},
			{Name: "active", Type: "boolean", Default: true},
		}, timestamps()...),
		SortFields:   []string{"staffName", "email", "createdAt"},
		SearchFields: []string{"staffName", "email"},
		DefaultSort:  "staffName",
	}
}
