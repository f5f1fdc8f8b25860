package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxTrends caps the number of trends kept from one run.
const MaxTrends = 5

// TrendResult is the output of one automation run. It is immutable once
// built; use NewTrendResult to construct it.
type TrendResult struct {
	Trends    []string  `json:"trends"`
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
}

// NewTrendResult builds a TrendResult stamped with now and a fresh UUID.
// It rejects an empty trend list and truncates to MaxTrends.
func NewTrendResult(trends []string, now time.Time) (TrendResult, error) {
	if len(trends) == 0 {
		return TrendResult{}, errors.New("trend result requires at least one trend")
	}
	if len(trends) > MaxTrends {
		trends = trends[:MaxTrends]
	}
	out := make([]string, len(trends))
	copy(out, trends)
	return TrendResult{
		Trends:    out,
		Timestamp: now,
		ID:        uuid.NewString(),
	}, nil
}

// RequestMeta describes the HTTP request that triggered a run.
type RequestMeta struct {
	ClientIP        string
	UserAgent       string
	AccessTimestamp time.Time
}

// Record is the persisted document: a TrendResult plus request metadata.
type Record struct {
	Trends          []string  `json:"trends" bson:"trends"`
	Timestamp       time.Time `json:"timestamp" bson:"timestamp"`
	ID              string    `json:"id" bson:"id"`
	ClientIP        string    `json:"clientIP,omitempty" bson:"clientIP,omitempty"`
	UserAgent       string    `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	AccessTimestamp time.Time `json:"accessTimestamp" bson:"accessTimestamp"`
}

// NewRecord merges a result with request metadata without altering the
// result's own fields.
func NewRecord(r TrendResult, meta RequestMeta) Record {
	trends := make([]string, len(r.Trends))
	copy(trends, r.Trends)
	return Record{
		Trends:          trends,
		Timestamp:       r.Timestamp,
		ID:              r.ID,
		ClientIP:        meta.ClientIP,
		UserAgent:       meta.UserAgent,
		AccessTimestamp: meta.AccessTimestamp,
	}
}
