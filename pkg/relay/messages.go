package relay

import "fmt"

const startCommand = "/start"

// User-facing texts. The unsupported notice is deliberately a single
// constant shared by every non-image media path.
const (
	typingPlaceholder = "Gemini is typing..."
	imagePlaceholder  = "Analyzing your image..."

	unsupportedNotice = "Sorry, the bot only supports images right now."

	busyText    = "Sorry, I am busy right now. Try again later."
	timeoutText = "Request timeout. Please try again."

	defaultImagePrompt = "Describe the image in detail as prompt."

	fallbackSenderName = "there"
)

func welcomeText(senderName string) string {
	if senderName == "" {
		senderName = fallbackSenderName
	}

	return fmt.Sprintf("Hello %s! I'm your Gemini-powered AI assistant, ready to help with anything from quick answers to deep dives. What's on your mind today?", senderName)
}
