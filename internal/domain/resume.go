package domain

// ResumeFormat names an export output format.
type ResumeFormat string

const (
	ResumeFormatPDF  ResumeFormat = "pdf"
	ResumeFormatText ResumeFormat = "txt"
)

// Resume is the document a user exports. It is rendered, never stored.
type Resume struct {
	Name       string        `json:"name" validate:"required,max=120"`
	Headline   string        `json:"headline,omitempty" validate:"max=200"`
	Email      string        `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string        `json:"phone,omitempty" validate:"max=40"`
	Location   string        `json:"location,omitempty" validate:"max=120"`
	Summary    string        `json:"summary,omitempty" validate:"max=2000"`
	Experience []ResumeEntry `json:"experience,omitempty" validate:"max=30,dive"`
	Education  []ResumeEntry `json:"education,omitempty" validate:"max=10,dive"`
	Skills     []string      `json:"skills,omitempty" validate:"max=60,dive,max=60"`
}

// ResumeEntry is one position or qualification.
type ResumeEntry struct {
	Title        string   `json:"title" validate:"required,max=200"`
	Organization string   `json:"organization,omitempty" validate:"max=200"`
	Period       string   `json:"period,omitempty" validate:"max=60"`
	Details      []string `json:"details,omitempty" validate:"max=20,dive,max=500"`
}
