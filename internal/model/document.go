// Package model contains the records shared across ResumeVault packages.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Status describes the processing lifecycle of a document. Values are stored
// as small integers so they stay stable across releases.
type Status int

const (
	StatusPending Status = iota
	StatusProcessing
	StatusQualified
	StatusRejected
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending:    "pending",
	StatusProcessing: "processing",
	StatusQualified:  "qualified",
	StatusRejected:   "rejected",
	StatusFailed:     "failed",
}

// Valid reports whether s belongs to the closed status vocabulary.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ManualScheme prefixes the file reference of records created by direct data
// entry. Those records never go through extraction or inference.
const ManualScheme = "manual://"

// IsManual reports whether ref points at a manually entered record.
func IsManual(ref string) bool {
	return strings.HasPrefix(ref, ManualScheme)
}

// Profile holds the candidate fields extracted from a resume.
type Profile struct {
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email"`
	Institution    string          `json:"institution"`
	Tier           string          `json:"tier"`
	Degree         string          `json:"degree"`
	Major          string          `json:"major"`
	GraduationYear string          `json:"graduationYear"`
	Skills         []string        `json:"skills"`
	WorkExperience json.RawMessage `json:"workExperience,omitempty"`
	Projects       json.RawMessage `json:"projects,omitempty"`
}

// Document is the central record: one uploaded (or manually entered) resume.
type Document struct {
	ID          int64  `json:"id"`
	FileKey     string `json:"fileKey"`
	FileURL     string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Status      Status `json:"status"`
	Profile
	ParseResult   json.RawMessage `json:"parseResult,omitempty"`
	PortraitURL   string          `json:"portraitUrl,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
	IsDeleted     bool            `json:"isDeleted"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Evaluation is the verdict of one rubric applied to one document. There is
// at most one per (DocumentID, RubricID).
type Evaluation struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"documentId"`
	RubricID    int64     `json:"rubricId"`
	Score       *int      `json:"score"`
	Qualified   bool      `json:"qualified"`
	Reason      string    `json:"reason"`
	IsDeleted   bool      `json:"isDeleted"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

// Rubric is an evaluation prompt. Exactly one non-deleted rubric may be active.
type Rubric struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"isActive"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Correction lists the fields a user may overwrite on a document. Nil means
// unchanged.
type Correction struct {
	Name           *string         `json:"name,omitempty"`
	Phone          *string         `json:"phone,omitempty"`
	Email          *string         `json:"email,omitempty"`
	Institution    *string         `json:"institution,omitempty"`
	Tier           *string         `json:"tier,omitempty"`
	Degree         *string         `json:"degree,omitempty"`
	Major          *string         `json:"major,omitempty"`
	GraduationYear *string         `json:"graduationYear,omitempty"`
	Skills         *[]string       `json:"skills,omitempty"`
	WorkExperience json.RawMessage `json:"workExperience,omitempty"`
	Projects       json.RawMessage `json:"projects,omitempty"`
}

// Empty reports whether the correction would change nothing.
func (c Correction) Empty() bool {
	return c.Name == nil && c.Phone == nil && c.Email == nil && c.Institution == nil &&
		c.Tier == nil && c.Degree == nil && c.Major == nil && c.GraduationYear == nil &&
		c.Skills == nil && c.WorkExperience == nil && c.Projects == nil
}

// Apply copies the set fields of c onto p.
func (c Correction) Apply(p *Profile) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&p.Name, c.Name)
	set(&p.Phone, c.Phone)
	set(&p.Email, c.Email)
	set(&p.Institution, c.Institution)
	set(&p.Tier, c.Tier)
	set(&p.Degree, c.Degree)
	set(&p.Major, c.Major)
	set(&p.GraduationYear, c.GraduationYear)
	if c.Skills != nil {
		p.Skills = append([]string(nil), (*c.Skills)...)
	}
	if c.WorkExperience != nil {
		p.WorkExperience = c.WorkExperience
	}
	if c.Projects != nil {
		p.Projects = c.Projects
	}
}

// DeleteCriteria selects documents for bulk soft deletion by exact match.
// Empty fields are ignored; at least one must be set.
type DeleteCriteria struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Empty reports whether no criterion is set.
func (c DeleteCriteria) Empty() bool {
	return strings.TrimSpace(c.Name) == "" && strings.TrimSpace(c.Email) == "" && strings.TrimSpace(c.Phone) == ""
}
