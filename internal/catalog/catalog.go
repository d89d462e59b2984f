// Package catalog holds the static help content: FAQ entries, sample
// resumes and the popular photo-edit commands.
package catalog

import (
	"fmt"
	"slices"

	apperrors "atsbeaters/internal/errors"
)

// FAQEntry is one question on the help screen
type FAQEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Sample is a canned resume used to try the tools without pasting one
type Sample struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Resume string `json:"resume"`
}

var faq = []FAQEntry{
	{
		Question: "What is an ATS score?",
		Answer:   "It's a compliance rating based on how well an automated system can parse your text and match it to specific job requirements.",
	},
	{
		Question: "How many resumes can I analyze?",
		Answer:   "Free users get 1 analysis per month. Pro and Package tiers have unlimited monthly credits.",
	},
	{
		Question: "Can I export my results?",
		Answer:   "Yes! You can export to PDF, JSON, or copy the content directly to your clipboard for use in external editors.",
	},
}

var samples = []Sample{
	{
		Key:   "tech",
		Title: "Software Engineer",
		Resume: "John Doe\nSoftware Engineer\n5 years experience in React, Node.js, and Cloud Infrastructure.\n\n" +
			"Experience:\n- Senior Developer at TechCorp (2020-Present)\n" +
			"- Built scalable APIs using microservices architecture.\n" +
			"- Optimized database queries which improved performance by 30%.\n" +
			"- Led a team of 5 developers.",
	},
	{
		Key:   "sales",
		Title: "Sales Executive",
		Resume: "Jane Smith\nSales Executive\nResults-driven professional with 8 years in B2B SaaS sales.\n\n" +
			"Achievements:\n- Exceeded annual quota by 150% in 2022.\n" +
			"- Managed a portfolio of $2M ARR.\n" +
			"- Negotiated complex contracts with Fortune 500 clients.",
	},
	{
		Key:   "ops",
		Title: "Operations Manager",
		Resume: "Mike Johnson\nOperations Manager\nOperations specialist focused on efficiency and cost reduction.\n\n" +
			"Experience:\n- Operations Lead at LogiStream.\n" +
			"- Reduced warehouse overhead by 15% through automation.\n" +
			"- Implemented new inventory tracking system.",
	},
}

var photoPresets = []string{"Corporate backdrop", "Studio lighting", "Warm aesthetic", "Modern blur"}

// FAQ returns the help-screen questions in display order
func FAQ() []FAQEntry {
	return slices.Clone(faq)
}

// Samples returns every sample resume
func Samples() []Sample {
	return slices.Clone(samples)
}

// SampleKeys lists the keys accepted by LookupSample
func SampleKeys() []string {
	keys := make([]string, len(samples))
	for i, s := range samples {
		keys[i] = s.Key
	}
	return keys
}

// LookupSample finds a sample by key
func LookupSample(key string) (Sample, error) {
	for _, s := range samples {
		if s.Key == key {
			return s, nil
		}
	}
	return Sample{}, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
		fmt.Sprintf("unknown sample %q (choose from %v)", key, SampleKeys()), nil).
		WithContext("sample", key)
}

// PhotoPresets returns the popular photo-edit instructions
func PhotoPresets() []string {
	return slices.Clone(photoPresets)
}
