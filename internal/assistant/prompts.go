package assistant

import "fmt"

// VisionPrompt is the instruction sent with every page image.
const VisionPrompt = "Please analyze this file and extract all relevant information in detail."

// SummaryPrompt is the system turn for the summarization call.
const SummaryPrompt = `You are a highly skilled document summarizer. Create a clear, well-structured summary of the provided content analysis following these guidelines:

1. Start with a brief overview of the document's main topic or purpose
2. Organize the summary with clear headings and sections using markdown formatting
3. Include all key points and important details
4. Highlight any significant findings or conclusions
5. Use bullet points for lists of related items
6. Keep the language professional but accessible
7. Maintain a logical flow of information
8. Include any relevant numbers, dates, or data points
9. End with a brief conclusion if applicable

Format your response using markdown for better readability:
- Use ## for main sections
- Use ### for subsections
- Use bullet points (*) for lists
- Use bold (**) for emphasis on key terms
- Use proper spacing between sections

Aim to make the summary comprehensive yet concise and easily scannable.`

// FollowUpPrompt builds the system turn that grounds a follow-up question.
func FollowUpPrompt(analysis string) string {
	return fmt.Sprintf("Previous analysis: %s\n\nProvide a helpful, detailed response to the question.", analysis)
}

// pageLabel prefixes a page's analysis in multi-page documents.
func pageLabel(pageNumber int, text string) string {
	return fmt.Sprintf("Page %d:\n%s", pageNumber, text)
}
