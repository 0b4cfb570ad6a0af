// Package main generates the HTTP API reference from the operation definitions
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	"github.com/BUNny0021/PDF-Ofice/internal/operations"
	"github.com/BUNny0021/PDF-Ofice/internal/pipeline"
)

type endpointDoc struct {
	Name        string
	Path        string
	Description string
	Upload      string
	Required    []string
	Failure     string
}

const apiTemplate = `# PDF Office HTTP API

Generated on {{.Generated}} from the operation definitions. Do not edit by hand.

All conversion endpoints accept ` + "`multipart/form-data`" + ` and answer with the produced file as an attachment.
Failures are answered with a JSON body ` + "`{\"message\": ..., \"error\": ..., \"request_id\": ...}`" + `.

| Endpoint | Upload | Required fields |
|----------|--------|-----------------|
{{- range .Endpoints}}
| ` + "`POST {{.Path}}`" + ` | {{.Upload}} | {{if .Required}}{{join .Required}}{{else}}-{{end}} |
{{- end}}
{{range .Endpoints}}
## {{.Name}}

{{.Description}}

- Upload: {{.Upload}}
{{- if .Required}}
- Required fields: {{join .Required}}
{{- end}}
- Failure message: "{{.Failure}}"
{{end}}`

func main() {
	output := flag.String("output", "docs/API.md", "File to write the API reference to")
	stdout := flag.Bool("stdout", false, "Print to stdout instead of writing a file")
	flag.Parse()

	docs := collect()

	tmpl := template.Must(template.New("api").Funcs(template.FuncMap{
		"join": func(fields []string) string {
			var buf bytes.Buffer
			for i, f := range fields {
				if i > 0 {
					buf.WriteString(", ")
				}
				fmt.Fprintf(&buf, "`%s`", f)
			}
			return buf.String()
		},
	}).Parse(apiTemplate))

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, map[string]any{
		"Generated": time.Now().UTC().Format("2006-01-02"),
		"Endpoints": docs,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering API docs: %v\n", err)
		os.Exit(1)
	}

	if *stdout {
		fmt.Print(buf.String())
		return
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, buf.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d endpoints to %s\n", len(docs), *output)
}

// collect reads the definitions; they do not touch the dependencies so zero values suffice
func collect() []endpointDoc {
	var docs []endpointDoc
	for _, op := range operations.All(operations.Deps{}) {
		def := op.Definition()

		upload := "one file in `file`"
		if def.Input == pipeline.InputMultiple {
			upload = "one or more files in `files`"
		}

		required := make([]string, 0, len(def.Required))
		for _, f := range def.Required {
			required = append(required, f.Name)
		}

		docs = append(docs, endpointDoc{
			Name:        def.Name,
			Path:        def.Path,
			Description: def.Description,
			Upload:      upload,
			Required:    required,
			Failure:     def.FailureMessage,
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs
}
