package eval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brunobiangulo/kgsynth/dataset"
)

const verdictFormat = "Return the result in the following JSON format:\n" +
	`{"Answer": "Yes/No", "Suggestions": "Details", "Confidence": <score>}. ` +
	"Where <score> is a number between 0 and 5 representing your confidence level."

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// KGCPrompt asks the judge about the accuracy and completeness of one
// knowledge graph triplet.
func KGCPrompt(r dataset.KGCRecord) string {
	var b strings.Builder
	b.WriteString("Evaluate the following knowledge graph triplet:\n")
	fmt.Fprintf(&b, "Head Entity: %s\n", orNA(r.HeadEntityName))
	fmt.Fprintf(&b, "Relation: %s\n", orNA(r.Relation))
	fmt.Fprintf(&b, "Tail Entity: %s\n", orNA(r.TailEntityName))
	if r.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", r.Context)
	}
	b.WriteString("\nPlease evaluate its accuracy and completeness. ")
	b.WriteString(verdictFormat)
	return b.String()
}

// RTEPrompt asks the judge about the logical consistency of the triplets
// extracted for one entity.
func RTEPrompt(r dataset.RTERecord) (string, error) {
	triplets := r.Triplet
	if triplets == nil {
		triplets = []dataset.Predicate{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(triplets); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Evaluate the reasoning triplets extracted from the following context:\n")
	fmt.Fprintf(&b, "Entity Name: %s\n", orNA(r.EntityName))
	fmt.Fprintf(&b, "Entity Type: %s\n", orNA(r.EntityType))
	fmt.Fprintf(&b, "Description: %s\n", r.TextDescription)
	fmt.Fprintf(&b, "Triplets: %s\n", strings.TrimSpace(buf.String()))
	b.WriteString("\nPlease evaluate their logical consistency and correctness. ")
	b.WriteString(verdictFormat)
	return b.String(), nil
}
