package weather

import (
	"fmt"
	"strings"

	"github.com/BaSui01/weatherbot/clients/maps"
)

// UnknownCategory is the extractor's answer when no category applies.
const UnknownCategory = "UNKNOWN"

const extractorPromptTemplate = "Your task is to try and determine what type of question or questions a user is asking about the weather\n" +
	"based on a following conversation transcript and classify it into one of the following\n" +
	"categories: %s. If it's unclear what category to choose\n" +
	"or the user hasn't asked any questions about the weather simply return %s.\n" +
	"Conversation transcript:\n" +
	"```\n" +
	"%s\n" +
	"```"

const assistantPromptTemplate = "You are a helpful assistant talking to a user. Your task is to try and determine what a user wants to know about the weather and\n" +
	"try to answer their questions. Use the following JSON formatted weather data and conversation transcript\n" +
	"to figure out what their questions are and answer them. You do not need to ask for their location.\n" +
	"\n" +
	"If the weather data is None, or they haven't  asked a question yet, ask the user what category of\n" +
	"weather they would like to know about from the following\n" +
	"choices: %s.\n" +
	"Getting this information will help to choose the correct weather data. If you've answered a\n" +
	"question, ask them if they have any more.\n" +
	"\n" +
	"Weather data%s:\n" +
	"```\n" +
	"%s\n" +
	"```\n" +
	"\n" +
	"Conversation transcript:\n" +
	"```\n" +
	"%s\n" +
	"```"

// quotedList renders items as ['a', 'b'].
func quotedList(items []string) string {
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "'" + it + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func categoryNames() []string {
	out := make([]string, len(maps.WeatherTypes))
	for i, w := range maps.WeatherTypes {
		out[i] = string(w)
	}
	return out
}

func categoryLabels() []string {
	out := make([]string, len(maps.WeatherTypes))
	for i, w := range maps.WeatherTypes {
		out[i] = w.Label()
	}
	return out
}

// ExtractorPrompt renders the classification prompt for a transcript.
func ExtractorPrompt(transcript string) string {
	return fmt.Sprintf(extractorPromptTemplate, quotedList(categoryNames()), UnknownCategory, transcript)
}

// AssistantPrompt renders the answering prompt. data is "None" when no
// category is known yet.
func AssistantPrompt(category *maps.WeatherType, data, transcript string) string {
	suffix := ""
	if category != nil {
		suffix = ", " + category.Label()
	}
	if data == "" {
		data = "None"
	}
	return fmt.Sprintf(assistantPromptTemplate, quotedList(categoryLabels()), suffix, data, transcript)
}
