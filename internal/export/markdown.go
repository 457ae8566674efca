package export

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// BuildMarkdown renders a Bundle as a Markdown document, matching
// export_markdown's section order: header, metadata, overview stats,
// endpoint overview table, per-endpoint detail, probe-run history,
// footer.
func BuildMarkdown(b *Bundle) string {
	var s strings.Builder

	fmt.Fprintf(&s, "# %s\n\n", b.Service.Name)
	fmt.Fprintf(&s, "- **Base URL:** %s\n", b.Service.BaseURL)
	if b.Service.ServerHeader != "" {
		fmt.Fprintf(&s, "- **Server:** %s\n", b.Service.ServerHeader)
	}
	if b.Service.Description != "" {
		fmt.Fprintf(&s, "- **Description:** %s\n", b.Service.Description)
	}
	fmt.Fprintf(&s, "- **Discovered:** %s\n", formatTime(b.Service.DiscoveredAt))
	fmt.Fprintf(&s, "- **Last probed:** %s\n\n", formatTime(b.Service.LastProbed))

	if len(b.Service.Metadata) > 0 {
		s.WriteString("## Metadata\n\n")
		keys := sortedKeys(b.Service.Metadata)
		for _, k := range keys {
			fmt.Fprintf(&s, "- **%s:** %v\n", k, b.Service.Metadata[k])
		}
		s.WriteString("\n")
	}

	s.WriteString("## Overview\n\n")
	fmt.Fprintf(&s, "| Endpoints | Responses | Parameters |\n|---|---|---|\n| %d | %d | %d |\n\n",
		b.Stats.EndpointCount, b.Stats.ResponseCount, b.Stats.ParameterCount)

	s.WriteString("## Endpoints\n\n")
	s.WriteString("| Path | Methods | Auth | Discovered by |\n|---|---|---|---|\n")
	for _, ep := range b.Endpoints {
		auth := "no"
		if ep.AuthRequired {
			auth = "yes"
		}
		fmt.Fprintf(&s, "| `%s` | %s | %s | %s |\n", ep.Path, strings.Join(ep.Methods, ", "), auth, ep.DiscoveredBy)
	}
	s.WriteString("\n")

	for _, ep := range b.Endpoints {
		fmt.Fprintf(&s, "### `%s`\n\n", ep.Path)
		fmt.Fprintf(&s, "- **Methods:** %s\n", strings.Join(ep.Methods, ", "))
		fmt.Fprintf(&s, "- **Status codes seen:** %s\n", joinInts(ep.StatusCodes))
		fmt.Fprintf(&s, "- **Content types:** %s\n", strings.Join(ep.ContentTypes, ", "))
		if ep.AuthRequired {
			fmt.Fprintf(&s, "- **Auth required:** yes (%s)\n", ep.AuthTypeHint)
		} else {
			s.WriteString("- **Auth required:** no\n")
		}

		params := b.Parameters[ep.ID]
		if len(params) > 0 {
			s.WriteString("\n**Parameters**\n\n")
			s.WriteString("| Name | Type | Location | Required | Example |\n|---|---|---|---|---|\n")
			for _, p := range params {
				fmt.Fprintf(&s, "| %s | %s | %s | %v | %s |\n", p.Name, p.ParamType, p.Location, p.Required, p.ExampleValue)
			}
		}

		responses := b.Responses[ep.ID]
		if len(responses) > 0 {
			s.WriteString("\n**Responses**\n\n")
			for _, r := range responses {
				fmt.Fprintf(&s, "- `%s` → %d (%s, %dms)\n", r.Method, r.StatusCode, r.ContentType, r.ElapsedMS)
				if len(r.BodySchema) > 0 {
					schemaJSON, _ := json.MarshalIndent(r.BodySchema, "", "  ")
					fmt.Fprintf(&s, "\n```json\n%s\n```\n", schemaJSON)
				}
			}
		}
		s.WriteString("\n")
	}

	if len(b.ProbeRuns) > 0 {
		s.WriteString("## Probe runs\n\n")
		s.WriteString("| Started | Status | Requests | Endpoints found |\n|---|---|---|---|\n")
		for _, run := range b.ProbeRuns {
			fmt.Fprintf(&s, "| %s | %s | %d | %d |\n", formatTime(run.StartedAt), run.Status, run.TotalRequests, run.EndpointsFound)
		}
		s.WriteString("\n")
	}

	fmt.Fprintf(&s, "---\n\n_Generated by apiprober %s at %s._\n", Version, formatTime(b.ExportedAt))
	return s.String()
}

// WriteMarkdown renders and writes a Bundle's Markdown report.
func WriteMarkdown(b *Bundle, outputPath string) error {
	return os.WriteFile(outputPath, []byte(BuildMarkdown(b)), 0644)
}

// WritePDFStub renders the Markdown report and writes it alongside the
// requested PDF path, since actual PDF rendering is outside this
// collaborator's boundary (matching export/markdown.py's "pdf" branch,
// which prints a note pointing at an external conversion tool rather than
// rendering one itself). Returns the path of the markdown file actually
// written.
func WritePDFStub(b *Bundle, requestedPath string) (string, error) {
	mdPath := strings.TrimSuffix(requestedPath, ".pdf") + ".md"
	if err := WriteMarkdown(b, mdPath); err != nil {
		return "", err
	}
	return mdPath, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinInts(ints []int) string {
	parts := make([]string, len(ints))
	for i, n := range ints {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
