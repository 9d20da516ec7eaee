// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

// Built-in model identifiers.
const (
	OLMoEID      = "olmoe-latest"
	TinyLlamaID  = "tinyllama-1.1b-chat"
	Gemma2BID    = "gemma-2b-it"
	SmolVLM2ID   = "smolvlm2-2.2b"
	Qwen2VLID    = "qwen2-vl-2b"
	Qwen25VL3BID = "qwen2.5-vl-3b"
)

// DefaultContextSize is used for descriptors that do not declare one.
const DefaultContextSize = 4096

// builtIns is the closed set of default descriptors, in display order.
var builtIns = []Descriptor{
	{
		ID:              OLMoEID,
		DisplayName:     "OLMoE (Default)",
		Kind:            KindText,
		Source:          SourceBuiltIn,
		PrimaryURL:      "https://huggingface.co/allenai/OLMoE-latest-GGUF/resolve/main/olmoe-latest-Q4_K_M.gguf?download=true",
		PrimaryFilename: "olmoe-latest-Q4_K_M.gguf",
		SupportsOCR:     true,
		DefaultContext:  4096,
		Template:        TemplateOLMoE,
		SizeHintMB:      4300,
	},
	{
		ID:              TinyLlamaID,
		DisplayName:     "TinyLlama 1.1B Chat",
		Kind:            KindText,
		Source:          SourceBuiltIn,
		PrimaryURL:      "https://huggingface.co/TheBloke/TinyLlama-1.1B-Chat-v1.0-GGUF/resolve/main/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf?download=true",
		PrimaryFilename: "tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf",
		SupportsOCR:     true,
		DefaultContext:  2048,
		Template:        TemplateChatML,
		SizeHintMB:      700,
	},
	{
		ID:              Gemma2BID,
		DisplayName:     "Gemma 2B (Instruct)",
		Kind:            KindText,
		Source:          SourceBuiltIn,
		PrimaryURL:      "https://huggingface.co/bartowski/Gemma-2B-it-GGUF/resolve/main/Gemma-2B-it-Q4_K_M.gguf?download=true",
		PrimaryFilename: "Gemma-2B-it-Q4_K_M.gguf",
		SupportsOCR:     true,
		DefaultContext:  4096,
		Template:        TemplateChatML,
		SizeHintMB:      1500,
	},
	{
		ID:                SmolVLM2ID,
		DisplayName:       "SmolVLM2 2.2B (Vision)",
		Kind:              KindVision,
		Source:            SourceBuiltIn,
		PrimaryURL:        "https://huggingface.co/ggml-org/SmolVLM2-2.2B-Instruct-GGUF/resolve/main/SmolVLM2-2.2B-Instruct-Q4_K_M.gguf?download=true",
		PrimaryFilename:   "SmolVLM2-2.2B-Instruct-Q4_K_M.gguf",
		ProjectorURL:      "https://huggingface.co/ggml-org/SmolVLM2-2.2B-Instruct-GGUF/resolve/main/mmproj-SmolVLM2-2.2B-Instruct-f16.gguf?download=true",
		ProjectorFilename: "mmproj-SmolVLM2-2.2B-Instruct-f16.gguf",
		SupportsVision:    true,
		SupportsOCR:       true,
		DefaultContext:    8192,
		Template:          TemplateChatML,
		SizeHintMB:        2400,
	},
	{
		ID:                Qwen2VLID,
		DisplayName:       "Qwen2-VL 2B (Vision)",
		Kind:              KindVision,
		Source:            SourceBuiltIn,
		PrimaryURL:        "https://huggingface.co/ggml-org/Qwen2-VL-2B-Instruct-GGUF/resolve/main/Qwen2-VL-2B-Instruct-Q4_K_M.gguf?download=true",
		PrimaryFilename:   "Qwen2-VL-2B-Instruct-Q4_K_M.gguf",
		ProjectorURL:      "https://huggingface.co/ggml-org/Qwen2-VL-2B-Instruct-GGUF/resolve/main/mmproj-Qwen2-VL-2B-Instruct-f16.gguf?download=true",
		ProjectorFilename: "mmproj-Qwen2-VL-2B-Instruct-f16.gguf",
		SupportsVision:    true,
		SupportsOCR:       true,
		DefaultContext:    8192,
		Template:          TemplateChatML,
		SizeHintMB:        2200,
	},
	{
		ID:                Qwen25VL3BID,
		DisplayName:       "Qwen2.5-VL 3B (Vision)",
		Kind:              KindVision,
		Source:            SourceBuiltIn,
		PrimaryURL:        "https://huggingface.co/ggml-org/Qwen2.5-VL-3B-Instruct-GGUF/resolve/main/Qwen2.5-VL-3B-Instruct-Q4_K_M.gguf?download=true",
		PrimaryFilename:   "Qwen2.5-VL-3B-Instruct-Q4_K_M.gguf",
		ProjectorURL:      "https://huggingface.co/ggml-org/Qwen2.5-VL-3B-Instruct-GGUF/resolve/main/mmproj-Qwen2.5-VL-3B-Instruct-f16.gguf?download=true",
		ProjectorFilename: "mmproj-Qwen2.5-VL-3B-Instruct-f16.gguf",
		SupportsVision:    true,
		SupportsOCR:       true,
		DefaultContext:    8192,
		Template:          TemplateChatML,
		SizeHintMB:        3300,
	},
}

// BuiltIns returns a fresh copy of the built-in descriptors in display order.
func BuiltIns() []Descriptor {
	out := make([]Descriptor, len(builtIns))
	copy(out, builtIns)
	return out
}

// BuiltIn returns the built-in descriptor with the given id.
func BuiltIn(id string) (Descriptor, bool) {
	for _, d := range builtIns {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// IsBuiltIn reports whether id belongs to the built-in set.
func IsBuiltIn(id string) bool {
	_, ok := BuiltIn(id)
	return ok
}

// BuiltInVisionIDs returns the ids of built-ins that support vision.
func BuiltInVisionIDs() []string {
	var ids []string
	for _, d := range builtIns {
		if d.SupportsVision {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
