package dto

type SmartInputJob struct {
	EmailContent string `json:"emailContent" validate:"required"`
}

type Representative struct {
	Name    string `json:"name"`
	Company string `json:"company"`
	Email   string `json:"email"`
}

// Candidate is a person extracted from an email by the model.
type Candidate struct {
	Name            string           `json:"name" validate:"required"`
	Bio             string           `json:"bio"`
	Credits         []string         `json:"credits"`
	Organizations   []string         `json:"organizations"`
	Associates      []string         `json:"associates"`
	Links           []string         `json:"links" validate:"dive,url"`
	Representatives []Representative `json:"representatives"`
}

type Candidates struct {
	Candidates []Candidate `json:"candidates" validate:"required,dive"`
}

type CandidateAttachment struct {
	CandidateName string `json:"candidateName"`
	Summary       string `json:"summary"`
	StorageKey    string `json:"storageKey"`
	Title         string `json:"title"`
	PageCount     int    `json:"pageCount"`
}

// MergedCandidate is a candidate joined with one matching attachment.
type MergedCandidate struct {
	Candidate
	CandidateAttachment
}

type SmartInputResult struct {
	Candidates []MergedCandidate `json:"writerDataWithAttachments"`
}
