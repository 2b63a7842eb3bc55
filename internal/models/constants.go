package models

const (
	ChapterRegex = `(?mi)^CHAPTER\s+([IVXLC\d]+[A-Z]?)\b`
	// SectionRegex matches a section heading at the start of a line,
	// e.g. "379. Punishment for theft." or "Section 154 - Information".
	SectionRegex = `(?mi)^(?:(?:Section|Sec\.)\s*(\d{1,3}[A-Z]?)|(\d{2,3}[A-Z]?)\.)\s*[-:.)]?\s+\S`
	// SectionRefRegex matches a section reference inside a question.
	SectionRefRegex  = `(?i)\b(?:section|sec\.?|ipc|u/s)\s*(\d{1,3}[A-Z]?)\b`
	ContextSeparator = "\n---\n"
	ThinkTag         = `(?s)<think>.*?</think>`
)

// RefusalAnswer is returned verbatim when the documents do not contain the answer.
const RefusalAnswer = "The answer is not available in the provided documents. Please try another question."

var (
	AnswerSystemPrompt = `You are an expert assistant for the Thoothukudi District Police.
Answer the user's question based ONLY on the following context.
If the information is not in the context, respond with:
"` + RefusalAnswer + `"
Do not use any outside knowledge. Be concise and helpful.
If the question is about an IPC section or punishment, look specifically for the section number mentioned.

<context>
%s
</context>`

	AnswerUserPrompt = `Question: %s`

	RerankPromptTemplate = `You are ranking passages for how well they answer a question.
Question: %s

Passages:
%s
Give each passage a relevance score from 0 (irrelevant) to 10 (directly answers the question).
Answer only with a JSON array of numbers, one per passage, in the same order.`

	TranslatePromptTemplate = `Translate the following text to %s. Keep names, numbers and section references unchanged. Answer only with the translation.

%s`
)
