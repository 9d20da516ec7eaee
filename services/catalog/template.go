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

import (
	"fmt"
	"strings"
)

// Template selects the prompt format a model was trained on.
type Template string

const (
	TemplateOLMoE  Template = "olmoe"
	TemplateChatML Template = "chatml"
	TemplateGemma  Template = "gemma"
)

// UnmarshalText accepts "chatML" as an alias for chatml.
func (t *Template) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "olmoe":
		*t = TemplateOLMoE
	case "chatml", "":
		*t = TemplateChatML
	case "gemma":
		*t = TemplateGemma
	default:
		return fmt.Errorf("unknown template %q", string(b))
	}
	return nil
}

// Format renders a single-turn prompt ending where the model should answer.
//
// Gemma has no system role; the system text is prepended to the user turn.
func (t Template) Format(system, user string) string {
	var b strings.Builder
	switch t {
	case TemplateOLMoE:
		if system != "" {
			b.WriteString("<|system|>\n")
			b.WriteString(system)
			b.WriteString("\n")
		}
		b.WriteString("<|user|>\n")
		b.WriteString(user)
		b.WriteString("\n<|assistant|>\n")
	case TemplateGemma:
		b.WriteString("<start_of_turn>user\n")
		if system != "" {
			b.WriteString(system)
			b.WriteString("\n\n")
		}
		b.WriteString(user)
		b.WriteString("<end_of_turn>\n<start_of_turn>model\n")
	default:
		if system != "" {
			b.WriteString("<|im_start|>system\n")
			b.WriteString(system)
			b.WriteString("<|im_end|>\n")
		}
		b.WriteString("<|im_start|>user\n")
		b.WriteString(user)
		b.WriteString("<|im_end|>\n<|im_start|>assistant\n")
	}
	return b.String()
}

// StopSequences returns the strings that end a model turn.
func (t Template) StopSequences() []string {
	switch t {
	case TemplateOLMoE:
		return []string{"<|user|>", "<|endoftext|>"}
	case TemplateGemma:
		return []string{"<end_of_turn>"}
	default:
		return []string{"<|im_end|>"}
	}
}
