package codex

// Model is one entry of the OpenAI-style model list.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the GET /codex/v1/models response.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

const modelListCreated = 1715367049

// NewModelList builds the vendor-style list for the configured model names.
func NewModelList(names []string) ModelList {
	list := ModelList{Object: "list", Data: make([]Model, 0, len(names))}
	for _, name := range names {
		list.Data = append(list.Data, Model{
			ID:      name,
			Object:  "model",
			Created: modelListCreated,
			OwnedBy: "codex",
		})
	}
	return list
}
