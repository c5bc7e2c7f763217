// Package dataset turns accepted triples into question/answer pairs and the
// RTE and KGC record shapes written by the output sinks.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brunobiangulo/kgsynth/agent"
	"github.com/brunobiangulo/kgsynth/triple"
)

// DefaultEntityType is the entity type stamped on every record.
const DefaultEntityType = "industry"

const (
	questionPrefix = "Question:"
	answerPrefix   = "Answer:"
)

// ErrQAGeneration is wrapped by every QAGenerationError.
var ErrQAGeneration = errors.New("kgsynth: qa generation failed")

// QAGenerationError reports a triple that could not be turned into a record.
type QAGenerationError struct {
	Triple triple.Triple
	Reason string
	Err    error
}

func (e *QAGenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("qa generation for %s: %s: %v", e.Triple, e.Reason, e.Err)
	}
	return fmt.Sprintf("qa generation for %s: %s", e.Triple, e.Reason)
}

func (e *QAGenerationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrQAGeneration, e.Err}
	}
	return []error{ErrQAGeneration}
}

// QAPair is one generated question and answer, both carrying their prefix.
type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Predicate is one entry of an RTE record's triplet list.
type Predicate struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// RTERecord is the relation-triplet-extraction record shape.
type RTERecord struct {
	EntityName      string      `json:"entity name"`
	EntityType      string      `json:"entity type"`
	TextDescription string      `json:"text description"`
	Triplet         []Predicate `json:"triplet"`
}

// KGCRecord is the knowledge-graph-completion record shape.
type KGCRecord struct {
	HeadEntityName string `json:"head entity name"`
	HeadEntityType string `json:"head entity type"`
	TailEntityName string `json:"tail entity name"`
	TailEntityType string `json:"tail entity type"`
	Relation       string `json:"relation"`
	Context        string `json:"context"`
}

// Record bundles everything built from one accepted triple.
type Record struct {
	Context string
	Triple  triple.Triple
	QA      QAPair
	RTE     RTERecord
	KGC     KGCRecord
}

// Invoker runs a role with caller-supplied messages.
type Invoker interface {
	Invoke(ctx context.Context, role agent.Role, msgs ...agent.Message) (string, error)
}

// Builder generates records with the QAGenerator role.
type Builder struct {
	roles      Invoker
	entityType string
}

// NewBuilder creates a Builder. An empty entityType uses DefaultEntityType.
func NewBuilder(roles Invoker, entityType string) *Builder {
	if entityType == "" {
		entityType = DefaultEntityType
	}
	return &Builder{roles: roles, entityType: entityType}
}

// Build asks for a QA pair about t and assembles its records. Any failure is
// a *QAGenerationError.
func (b *Builder) Build(ctx context.Context, t triple.Triple, text string) (*Record, error) {
	// the triple must survive its own rendering, otherwise subject and
	// object are ambiguous
	if back, err := triple.ParseLine(t.String()); err != nil || back != t {
		return nil, &QAGenerationError{Triple: t, Reason: "malformed triple", Err: err}
	}

	resp, err := b.roles.Invoke(ctx, agent.QAGenerator, agent.User(Prompt(t, text)))
	if err != nil {
		return nil, &QAGenerationError{Triple: t, Reason: "backend", Err: err}
	}

	qa, err := SplitQA(resp)
	if err != nil {
		return nil, &QAGenerationError{Triple: t, Reason: "malformed response", Err: err}
	}

	rec := &Record{
		Context: text,
		Triple:  t,
		QA:      qa,
		RTE: RTERecord{
			EntityName:      t.Subject,
			EntityType:      b.entityType,
			TextDescription: text,
			Triplet:         []Predicate{{Subject: t.Subject, Predicate: t.Relation, Object: t.Object}},
		},
		KGC: KGCRecord{
			HeadEntityName: t.Subject,
			HeadEntityType: b.entityType,
			TailEntityName: t.Object,
			TailEntityType: b.entityType,
			Relation:       t.Relation,
			Context:        text,
		},
	}
	slog.Debug("dataset: record built", "triple", t.String(), "question", qa.Question)
	return rec, nil
}

// Prompt is the single message sent to the QAGenerator role for t.
func Prompt(t triple.Triple, text string) string {
	return fmt.Sprintf("According to the context, generate a question and answer. "+
		"The question should be in the form: 'What is the relationship between %s and %s?' "+
		"The answer should include the relationship between %s and %s and reference the context. "+
		"Here is the context:\n%s",
		t.Subject, t.Object, t.Subject, t.Object, text)
}

// SplitQA treats the first line of resp as the question and the rest as the
// answer, adding either prefix when it is missing.
func SplitQA(resp string) (QAPair, error) {
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return QAPair{}, errors.New("empty response")
	}
	question, answer, _ := strings.Cut(resp, "\n")
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return QAPair{}, errors.New("response has no answer line")
	}
	if !strings.HasPrefix(question, questionPrefix) {
		question = questionPrefix + " " + question
	}
	if !strings.HasPrefix(answer, answerPrefix) {
		answer = answerPrefix + " " + answer
	}
	return QAPair{Question: question, Answer: answer}, nil
}
