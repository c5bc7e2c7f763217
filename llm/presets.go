package llm

// preset captures what differs between OpenAI-compatible vendors.
type preset struct {
	baseURL      string
	defaultModel string
	// pathPrefix is prepended to /chat/completions and /embeddings.
	pathPrefix string
	// nativeEmbed selects Ollama's /api/embed endpoint for embeddings.
	nativeEmbed bool
}

// presets maps Config.Provider to vendor defaults. "custom" has no default
// base URL and must be configured explicitly.
var presets = map[string]preset{
	"ollama": {
		baseURL:     "http://localhost:11434",
		pathPrefix:  "/v1",
		nativeEmbed: true,
	},
	"lmstudio": {
		baseURL:    "http://localhost:1234",
		pathPrefix: "/v1",
	},
	"openrouter": {
		baseURL:    "https://openrouter.ai/api",
		pathPrefix: "/v1",
	},
	"openai": {
		baseURL:      "https://api.openai.com",
		defaultModel: "gpt-4o-mini",
		pathPrefix:   "/v1",
	},
	"groq": {
		baseURL:      "https://api.groq.com/openai",
		defaultModel: "llama-3.3-70b-versatile",
		pathPrefix:   "/v1",
	},
	"xai": {
		baseURL:    "https://api.x.ai",
		pathPrefix: "/v1",
	},
	// Gemini's OpenAI-compatible endpoint has no /v1 prefix.
	"gemini": {
		baseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
	},
	"custom": {
		pathPrefix: "/v1",
	},
}
