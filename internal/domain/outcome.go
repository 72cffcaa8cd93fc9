package domain

import (
	"sort"
	"time"
)

// Category is a named success dimension, e.g. "primary" or "secondary".
type Category string

const (
	CategoryPrimary   Category = "primary"
	CategorySecondary Category = "secondary"
)

// Status is the literal string persisted per category.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func StatusOf(succeeded bool) Status {
	if succeeded {
		return StatusSuccess
	}
	return StatusFailed
}

// DestinationResult is what a destination reports for one attempt.
// Failure is data, never an error.
type DestinationResult struct {
	Succeeded bool
	Message   string
}

func Success(message string) DestinationResult {
	return DestinationResult{Succeeded: true, Message: message}
}

func Failure(message string) DestinationResult {
	return DestinationResult{Succeeded: false, Message: message}
}

// DestinationReport is one destination's contribution to an outcome.
type DestinationReport struct {
	Destination string
	Category    Category
	Result      DestinationResult
	Duration    time.Duration
}

// CategoryResult is the merged verdict for one category.
type CategoryResult struct {
	Succeeded bool
	Message   string
}

// Outcome is the merged result of one dispatch. Every configured category
// is present, in configuration order.
type Outcome struct {
	categories []Category
	results    map[Category]CategoryResult
	Reports    []DestinationReport
}

// NewOutcome returns an outcome with every category at (false, "").
func NewOutcome(categories []Category) Outcome {
	cats := make([]Category, len(categories))
	copy(cats, categories)
	results := make(map[Category]CategoryResult, len(cats))
	for _, c := range cats {
		results[c] = CategoryResult{}
	}
	return Outcome{categories: cats, results: results}
}

// FaultOutcome marks every category failed with the same message.
func FaultOutcome(categories []Category, message string) Outcome {
	o := NewOutcome(categories)
	for _, c := range o.categories {
		o.results[c] = CategoryResult{Message: message}
	}
	return o
}

// Set overwrites the verdict for a category. Unknown categories are ignored.
func (o *Outcome) Set(c Category, r CategoryResult) {
	if _, ok := o.results[c]; !ok {
		return
	}
	o.results[c] = r
}

func (o Outcome) Categories() []Category {
	out := make([]Category, len(o.categories))
	copy(out, o.categories)
	return out
}

func (o Outcome) Result(c Category) (CategoryResult, bool) {
	r, ok := o.results[c]
	return r, ok
}

func (o Outcome) Succeeded(c Category) bool {
	return o.results[c].Succeeded
}

func (o Outcome) AnySucceeded() bool {
	for _, r := range o.results {
		if r.Succeeded {
			return true
		}
	}
	return false
}

func (o Outcome) Statuses() map[Category]Status {
	out := make(map[Category]Status, len(o.results))
	for c, r := range o.results {
		out[c] = StatusOf(r.Succeeded)
	}
	return out
}

func (o Outcome) Messages() map[Category]string {
	out := make(map[Category]string, len(o.results))
	for c, r := range o.results {
		out[c] = r.Message
	}
	return out
}

// SortedCategories returns map keys in a stable order for logging and storage.
func SortedCategories[V any](m map[Category]V) []Category {
	out := make([]Category, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
