package models

import "time"

type DocumentSummary struct {
	Brief             string   `json:"brief" bson:"brief"`
	MainPoints        []string `json:"mainPoints" bson:"mainPoints"`
	KeyPhrases        []string `json:"keyPhrases" bson:"keyPhrases"`
	WordCount         int      `json:"wordCount" bson:"wordCount"`
	PageCount         int      `json:"pageCount" bson:"pageCount"`
	EstimatedReadTime int      `json:"estimatedReadTime" bson:"estimatedReadTime"` // minutes
}

// Document is an uploaded PDF and the summary extracted from it.
type Document struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Filename  string          `json:"filename"`
	SizeBytes int64           `json:"fileSize"`
	ObjectKey string          `json:"-"`
	URL       string          `json:"url,omitempty"`
	SourceURL string          `json:"sourceUrl,omitempty"`
	Summary   DocumentSummary `json:"summary"`
	CreatedAt time.Time       `json:"createdAt"`
}
