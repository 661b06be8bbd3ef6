package gemini

import "fmt"

const (
	SearchAgentInstruction = "You are an AI search agent. Provide a concise, well-structured summary answering the user's query based on Google Search results. " +
		"Within your summary, embed 3 relevant, high-quality images using Markdown image syntax (e.g. ![description](url)). " +
		"Place the images where they best illustrate the text."

	CreativeInstruction = "You are a creative AI assistant. Generate high-quality, well-structured content based on the user's request. " +
		"This may include code, documents, presentation slides, forms, CVs, or other creative writing. " +
		"Use Markdown for formatting, including headings, lists, bold text and code blocks where appropriate."

	VoiceInstruction = "You are Silo Live, a conversational AI. Respond in very short, concise sentences. " +
		"Keep your answers brief and to the point, like in a real, fast-paced conversation. Do not use markdown."
)

// ImageAnalysisPrompt builds the prompt sent alongside an image.
func ImageAnalysisPrompt(query string) string {
	return fmt.Sprintf(
		"Analyze this image. First, provide exactly 5 single-word keywords that describe it. "+
			"Then, based on the user's query %q, provide a concise, single-paragraph answer.",
		query,
	)
}
