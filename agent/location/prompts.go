package location

import "fmt"

const (
	// GeoScoreThreshold is the minimum geocoding score a search result needs.
	GeoScoreThreshold = 0.7
	// Unknown is the extractor's answer when the transcript has no location.
	Unknown = "LOCATION UNKNOWN"
)

const assistantSystemPrompt = `You are a chatbot that can answer questions about weather at a location provided by the user.
Talk to the user and ask them to provide their geographical location.
Make sure that the user specified country and city. Zip code is optional but useful.
Sometimes state or province is also needed.
To answer the questions, you need to know the user's location first, but
the user has not provided the required information yet. Ask the user to provide missing information.
You can use only what the user has provided in the chat.
`

const extractorPromptTemplate = "Your task is to extract location information from the conversation with the user.\n" +
	"Conversation transcript:\n" +
	"```\n" +
	"%s\n" +
	"```\n" +
	"\n" +
	"You need to know country, city, state or province, street address, and zip code.\n" +
	"The user can ask multiple questions, make sure you extract the latest geographical location of interest.\n" +
	"Analyze the conversation transcript carefully and extract the country, city, state or province,\n" +
	"street address, and zip code values without any explanations.\n" +
	"If it is a well-known city, add its country to the result.\n" +
	"Only list geographical attributes that are present in the conversation. Skip missing geographical attributes.\n" +
	"If there is no geographical information in the history, then print '%s'.\n" +
	"Print the answer on one single line as comma separated values.\n"

// ExtractorPrompt renders the extraction prompt for a flattened transcript.
func ExtractorPrompt(transcript string) string {
	return fmt.Sprintf(extractorPromptTemplate, transcript, Unknown)
}

// AssistantSystemPrompt returns the location assistant's system prompt.
func AssistantSystemPrompt() string {
	return assistantSystemPrompt
}
