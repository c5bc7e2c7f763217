// Package agent defines the named model roles of the pipeline and the single
// dispatcher that invokes any of them against a completion backend.
package agent

// Role is a named instruction template. Roles carry no state; everything a
// role needs beyond its instructions is supplied by the caller per call.
type Role struct {
	Name         string
	Instructions string
}

var (
	EntityExtractor = Role{
		Name: "Entity Extractor",
		Instructions: "You are an industrial information extraction expert. " +
			"Extract every important entity related to industry, production and management from the given text. " +
			"Return the entities as a list, one per line. " +
			"Let's think step by step.",
	}

	RelationExtractor = Role{
		Name: "Relation Extractor",
		Instructions: "You are an industrial relationship analysis expert. " +
			"Extract the relationships between entities related to industry, production and management from the given text. " +
			"Return one relationship per line in the form: Entity1 Relation Entity2. " +
			"For example: 'CompanyA manufactures ProductB'. " +
			"Let's think step by step.",
	}

	TripleSynthesizer = Role{
		Name: "Knowledge Graph Master",
		Instructions: "You are a knowledge graph construction expert. " +
			"Generate knowledge graph triples from the given text. " +
			"Return the triples in the form: (Entity1, Relation, Entity2). " +
			"For example: '(Partial oxidation, facilitates, Oxygen)'. " +
			"Put each triple on its own line. " +
			"Do not add extra spaces or characters around the commas and parentheses. " +
			"Let's think step by step.",
	}

	TripleValidator = Role{
		Name: "Knowledge Graph Verifier",
		Instructions: "You are a knowledge graph validation expert. " +
			"Check that the generated triples are consistent with the original input and logically correct. " +
			"If the validation passes, reply with 'This is a loyal fact.' " +
			"If it fails, list the specific issues and ask for the triples to be regenerated accordingly. " +
			"Let's think step by step.",
	}

	QAGenerator = Role{
		Name: "Knowledge Relation Distiller",
		Instructions: "You are a question-answer generation expert. " +
			"Generate a question and an answer from the given knowledge graph triple and context. " +
			"The question should read: 'According to the context, what is the relationship between Entity1 and Entity2?' " +
			"The answer should state the relationship between Entity1 and Entity2 and reference the context. " +
			"Let's think step by step.",
	}
)

// Roles returns the five pipeline roles in pipeline order.
func Roles() []Role {
	return []Role{EntityExtractor, RelationExtractor, TripleSynthesizer, TripleValidator, QAGenerator}
}
