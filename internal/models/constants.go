package models

const (
	ContextSeparator = "\n"
	ThinkTag         = `(?s)<think>.*?</think>`

	// DefaultLabel is assigned to fragments that match no labelling rule.
	DefaultLabel = "General"

	NoInformationAnswer    = "I couldn't find relevant information to answer your question."
	GenerationFailedAnswer = "[answer unavailable] I apologize, but the answer service could not be reached. " +
		"The retrieved sources are listed below so you can still review them."
)

var (
	SystemPrompt = `You are a knowledgeable banking assistant for Bank of Maharashtra loan products.
Answer strictly from the context you are given. Include specific details such as interest rates, tenure, eligibility criteria, fees, features and benefits whenever the context states them.
If the context does not contain the answer, say so plainly instead of guessing.`

	// AnswerPromptTemplate takes the context block and the question.
	AnswerPromptTemplate = `Based only on the following information about Bank of Maharashtra loan products, answer the question.

Context Information:
%s
Question: %s

Instructions:
- Use only the context above; do not rely on outside knowledge
- Mention concrete figures (interest rates, tenure, eligibility, fees) when the context provides them
- If several loan schemes are relevant, mention each of them
- If the context does not contain the answer, state explicitly that the information is not available

Answer: `

	// SourceHeaderTemplate labels one fragment in the context block by rank.
	SourceHeaderTemplate        = "[Source %d]"
	LabeledSourceHeaderTemplate = "[Source %d - %s]"
)
