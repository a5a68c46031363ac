// Package openaicompat implements llm.Provider over the OpenAI Chat
// Completions wire format.
//
// Two constructors cover the deployments weatherbot talks to:
//
//	p := openaicompat.NewOpenAI(providers.OpenAIConfig{...}, logger)
//	p := openaicompat.NewAzure(providers.AzureOpenAIConfig{
//	    BaseProviderConfig: providers.BaseProviderConfig{
//	        APIKey:  cfg.APIKey,
//	        BaseURL: "https://my-resource.openai.azure.com",
//	    },
//	    Deployment: "gpt-4o",
//	    APIVersion: "2024-06-01",
//	}, logger)
//
// Azure differs only in URL layout (deployment path plus api-version query)
// and the api-key header; both are expressed through Config.
package openaicompat
