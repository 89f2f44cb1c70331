package gemini

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/phrazzld/kbase-api/internal/domain"
)

const systemInstruction = `You are a customer support assistant for a business.
Answer only from the knowledge passages you are given.
If the passages do not contain the answer, say that you do not know and suggest contacting support.
Keep answers short and cite passage numbers like [1] when you use them.`

var promptTemplate = template.Must(template.New("chat").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`{{if .Context}}Conversation context:
{{.Context}}

{{end}}Knowledge passages:
{{range $i, $p := .Passages}}[{{inc $i}}] {{$p.Label}}
{{$p.Content}}

{{else}}(none)

{{end}}Customer question:
{{.Message}}
`))

type promptData struct {
	Message  string
	Context  string
	Passages []domain.KnowledgeChunk
}

func renderPrompt(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
