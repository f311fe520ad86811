package domain

type Image struct {
	MediaType MediaType
	Data      []byte
}

// InferenceRequest is one call to the language model. Model is always resolved by the caller.
type InferenceRequest struct {
	Model  string
	System string
	Prompt string
	Images []Image
}
