package models

const (
	ImageNumberRegex = `_img(\d+)`
	ThinkTag         = `(?s)<think>.*?</think>`
	TimestampLayout  = "2006-01-02 15:04:05"

	// sources that never get a citation appended to the answer
	SourceSelectableText = "selectable_text"
	SourceUnknown        = "Unknown"

	WebModelLabel    = "Tavily Web Search"
	WebSourceLabel   = "Web Search"
	LocalSourceLabel = "N/A"

	NoWebResultsAnswer = "No relevant information found from web search."
	WebFailurePrefix   = "Web search failed: "
	LLMFailurePrefix   = "Error generating response: "
)

// NotFoundPhrases mark an answer the model could not ground in the local context.
var NotFoundPhrases = []string{
	"answer is not available",
	"not available in the context",
	"cannot find information",
	"not mentioned in the context",
}

var (
	promptInstructions = `You are an intelligent assistant with access to document content and conversation history.

**Instructions:**
1. First, check the conversation history to see if this topic has been discussed before
2. Then, use the provided document context to answer the question
3. If the answer is available in either the conversation history or document context, provide a comprehensive response
4. If the answer is NOT available in either source, respond with "Answer is not available in the context"
5. Always be accurate and don't make up information
`

	LocalPromptTemplate = promptInstructions + `6. At the end of your response, always mention the page number or image number of the source(s) you used with format "Source:[source-name]"
7. At the end of your response, also list the bounding boxes and source filenames of the image chunks you used, in the format: Source:[File: <filename>, BBox: [x_min, y_min, x_max, y_max]]

**Document Context:**
{{.context}}

**Conversation History & Current Question:**
{{.question}}

**Your Response:**
`

	WebPromptTemplate = promptInstructions + `6. The document context below comes from a web search. At the end of your response, always mention the URL of the source(s) you used with format "Source:[url]"

**Document Context:**
{{.context}}

**Conversation History & Current Question:**
{{.question}}

**Your Response:**
`
)
