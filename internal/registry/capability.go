// Package registry defines the Capability identifiers shared by its
// subpackages: moduleregistry (one priority-ordered provider list per
// capability) and adapterregistry (framework/format-keyed selection). Both
// generalize the teacher's single-factory-per-name registry into ordered,
// predicate-based selection.
package registry

// Capability identifies one of the modalities the runtime orchestrates.
type Capability string

const (
	CapabilityLLM         Capability = "llm"
	CapabilitySTT         Capability = "stt"
	CapabilityTTS         Capability = "tts"
	CapabilityVAD         Capability = "vad"
	CapabilityDiarization Capability = "diarization"
	CapabilityEmbeddings  Capability = "embeddings"
	CapabilityWakeWord    Capability = "wakeword"
	CapabilityVLM         Capability = "vlm"
)
