package outputparser

import (
	"context"

	"github.com/skosovsky/promptchain"
)

// Parser converts model text into T.
type Parser[T any] interface {
	// Parse converts raw model text. Structural failures match promptchain.ErrOutputParse;
	// constraint failures match promptchain.ErrSchemaValidation.
	Parse(ctx context.Context, text string) (T, error)
	// Invoke parses the text of a model response, so parsers can be chain stages.
	Invoke(ctx context.Context, resp *promptchain.ModelResponse) (T, error)
	// FormatInstructions describes the expected output format for the model.
	FormatInstructions() string
}

func responseText(resp *promptchain.ModelResponse) string {
	if resp == nil {
		return ""
	}
	return resp.Text
}
