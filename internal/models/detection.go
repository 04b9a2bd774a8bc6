package models

// DetectionResult is the reshaped answer of the plant health relay
type DetectionResult struct {
	Success     bool   `json:"success"`
	Healthy     bool   `json:"healthy"`
	Message     string `json:"message,omitempty"`
	Disease     string `json:"disease,omitempty"`
	Probability string `json:"probability,omitempty"`
	Description string `json:"description,omitempty"`
	Treatment   string `json:"treatment,omitempty"`
}
