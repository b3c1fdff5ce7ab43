package domain

import "time"

// Theme is a Shopify theme; only the one with role "main" is scanned.
type Theme struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// ThemeAsset is a file belonging to a theme. Value is empty in listings.
type ThemeAsset struct {
	Key         string `json:"key"`
	Value       string `json:"value,omitempty"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// ScannedFile is one downloaded asset kept for AI excerpts.
type ScannedFile struct {
	Key     string
	Content string
}

// ScanResult is the outcome of a theme scan before persistence.
type ScanResult struct {
	Theme         Theme
	ScanType      ScanType
	TotalFiles    int
	FilesAnalyzed []string
	FilesSkipped  []string
	Files         []ScannedFile
	Elements      ElementMapping
}

// ScanJobStatus is the lifecycle state of a background scan.
type ScanJobStatus string

const (
	ScanJobQueued    ScanJobStatus = "queued"
	ScanJobRunning   ScanJobStatus = "running"
	ScanJobCompleted ScanJobStatus = "completed"
	ScanJobFailed    ScanJobStatus = "failed"
	ScanJobCanceled  ScanJobStatus = "canceled"
)

// ScanJob is the pollable status record of a background full scan.
type ScanJob struct {
	ID               string        `json:"id"`
	ShopDomain       string        `json:"shop_domain"`
	Status           ScanJobStatus `json:"status"`
	Trigger          string        `json:"trigger,omitempty"`
	MappingID        string        `json:"complete_mapping_id,omitempty"`
	ElementsDetected int           `json:"elements_detected"`
	FilesAnalyzed    int           `json:"files_analyzed"`
	TotalFiles       int           `json:"total_files"`
	Error            string        `json:"error,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// Active reports whether the job has not reached a terminal state.
func (j *ScanJob) Active() bool {
	return j.Status == ScanJobQueued || j.Status == ScanJobRunning
}
