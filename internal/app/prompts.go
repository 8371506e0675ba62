package app

import "strings"

const (
	qaMapPrompt = "Use the following portion of a long document to see if any of the text is relevant to answer the question. \n" +
		"Return any relevant text verbatim.\n" +
		"{context}\n" +
		"Question: {question}\n" +
		"Relevant text, if any:"

	qaCombinePrompt = "Given the following extracted parts of a long document and a question, create a final answer. \n" +
		"If you don't know the answer, just say that you don't know. Don't try to make up an answer.\n\n" +
		"QUESTION: {question}\n" +
		"=========\n" +
		"{summaries}\n" +
		"=========\n" +
		"FINAL ANSWER:"

	condenseQuestionPrompt = "Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question.\n\n" +
		"Chat History:\n" +
		"{chat_history}\n" +
		"Follow Up Input: {question}\n" +
		"Standalone question:"

	conversationalQAPrompt = "Use the following pieces of context to answer the question at the end. " +
		"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n" +
		"{context}\n\n" +
		"Question: {question}\n" +
		"Helpful Answer:"

	summarizeMapPrompt = "Write a concise summary of the following:\n\n\n\"{text}\"\n\n\nCONCISE SUMMARY:"

	summarizeCombinePrompt = "Write a verbose summary of the following text. The summary should cover every " +
		"important event, argument and conclusion so that a reader understands the whole document:\n\n\n" +
		"\"{text}\"\n\n\nVERBOSE SUMMARY:"

	sectionSummaryPrompt = "You will be given a single passage of a book. This section will be enclosed in triple backticks (```)\n" +
		"Your goal is to give a summary of this section so that a reader will have a full understanding of what happened.\n" +
		"Your response should be at least three paragraphs and fully encompass what was said in the passage.\n\n" +
		"```{text}```\n" +
		"FULL SUMMARY:"
)

// fill substitutes {name} placeholders. Unknown placeholders are left as is.
func fill(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
