package catalog

import (
	"fmt"
	"strings"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

// InstructionTemplate is the category-specific system instruction for an analysis.
type InstructionTemplate struct {
	Category   domain.CategoryCode
	Role       string
	Focus      []string
	Sections   []string
	Formatting string
}

// Render produces the instruction text: role, focus list, ordered sections, formatting contract.
func (t InstructionTemplate) Render() string {
	var b strings.Builder
	b.WriteString(t.Role)
	b.WriteString("\n\nConcentrate on:\n")
	for _, item := range t.Focus {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteByte('\n')
	}

	b.WriteString("\nStructure the answer with exactly these sections, in this order:\n")
	for i, section := range t.Sections {
		fmt.Fprintf(&b, "%d. ## %s\n", i+1, section)
	}

	b.WriteString("\nFormatting rules:\n")
	b.WriteString(t.Formatting)
	return b.String()
}

// ClassificationInstruction asks the model for exactly one category code.
func (c *Catalog) ClassificationInstruction() string {
	var b strings.Builder
	b.WriteString("Classify the medical document into exactly one of the following categories.\n\n")
	for _, code := range c.order {
		d := c.descriptors[code]
		fmt.Fprintf(&b, "- %s: %s\n", code, d.Description)
	}
	b.WriteString("\nAnswer with the category code only, for example: prescription")
	return b.String()
}
