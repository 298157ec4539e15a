package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// listPreviewLimit caps how many URLs or errors a status listing shows
// before truncating with an "…and N more" suffix.
const listPreviewLimit = 5

// formatter renders one recognized payload shape; it returns nil when the
// payload does not match its shape.
type formatter func(payload any) []Block

// chain is evaluated in order; the first non-empty result wins. The final
// pretty-JSON fallback in Normalize guarantees total coverage.
var chain = []formatter{
	formatBlockSlice,
	formatPrimitive,
	formatResearch,
	formatURLList,
	formatSearchResults,
	formatStatus,
	formatMultiFormat,
	formatFlat,
}

// Normalize converts an arbitrary upstream payload into at least one
// block. It never fails: unrecognized shapes fall back to pretty-printed
// JSON.
func Normalize(payload any) []Block {
	for _, format := range chain {
		if blocks := format(payload); len(blocks) > 0 {
			return blocks
		}
	}
	return []Block{prettyJSON(payload)}
}

// formatBlockSlice passes through a payload that is already a sequence of
// typed blocks.
func formatBlockSlice(payload any) []Block {
	if blocks, ok := payload.([]Block); ok {
		return blocks
	}
	items, ok := payload.([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	blocks := make([]Block, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		blockType, typeOK := m["type"].(string)
		text, textOK := m["text"].(string)
		if !typeOK || !textOK {
			return nil
		}
		blocks = append(blocks, Block{Type: BlockType(blockType), Text: text})
	}
	return blocks
}

func formatPrimitive(payload any) []Block {
	switch typed := payload.(type) {
	case nil:
		return []Block{TextBlock("No content returned.")}
	case string:
		if typed == "" {
			return []Block{TextBlock("No content returned.")}
		}
		return []Block{TextBlock(typed)}
	case map[string]any, []any:
		return nil
	default:
		return []Block{TextBlock(fmt.Sprint(typed))}
	}
}

// formatResearch handles research-style payloads: a results string, or a
// results object with a summary and optional sources.
func formatResearch(payload any) []Block {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	switch results := m["results"].(type) {
	case string:
		if results == "" {
			return nil
		}
		return []Block{TextBlock(results)}
	case map[string]any:
		summary, _ := results["summary"].(string)
		if summary == "" {
			return nil
		}
		blocks := []Block{TextBlock(summary)}
		if sources, ok := results["sources"].([]any); ok && len(sources) > 0 {
			var lines []string
			for _, source := range sources {
				sm, ok := source.(map[string]any)
				if !ok {
					continue
				}
				sourceURL, _ := sm["url"].(string)
				title, _ := sm["title"].(string)
				lines = append(lines, fmt.Sprintf("- %s: %s", sourceURL, title))
			}
			if len(lines) > 0 {
				blocks = append(blocks, TextBlock("Sources:\n"+strings.Join(lines, "\n")))
			}
		}
		return blocks
	default:
		return nil
	}
}

func formatURLList(payload any) []Block {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	items, ok := m["urls"].([]any)
	if !ok {
		return nil
	}
	urls := make([]string, 0, len(items))
	for _, item := range items {
		u, ok := item.(string)
		if !ok {
			return nil
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return []Block{TextBlock("No URLs discovered.")}
	}
	return []Block{TextBlock(fmt.Sprintf("%d URLs discovered:\n%s", len(urls), strings.Join(urls, "\n")))}
}

func formatSearchResults(payload any) []Block {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	items, ok := m["results"].([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	var lines []string
	for i, item := range items {
		result, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		resultURL, _ := result["url"].(string)
		title, _ := result["title"].(string)
		snippet, _ := result["snippet"].(string)
		if snippet == "" {
			snippet, _ = result["description"].(string)
		}
		if resultURL == "" && title == "" {
			return nil
		}
		if title == "" {
			title = resultURL
		}
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, title))
		if resultURL != "" {
			lines = append(lines, "   "+resultURL)
		}
		if snippet != "" {
			lines = append(lines, "   "+snippet)
		}
	}
	return []Block{TextBlock(strings.Join(lines, "\n"))}
}

// formatStatus handles job status payloads carrying both id and status.
func formatStatus(payload any) []Block {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	status, statusOK := m["status"].(string)
	jobID, idOK := m["id"].(string)
	if !idOK {
		if numeric, numericOK := m["id"].(float64); numericOK {
			jobID = fmt.Sprintf("%.0f", numeric)
			idOK = true
		}
	}
	if !statusOK || !idOK {
		return nil
	}

	summary := fmt.Sprintf("Job %s: %s", jobID, status)
	if completed, ok := m["completed"].(float64); ok {
		if total, ok := m["total"].(float64); ok {
			summary += fmt.Sprintf(" (%.0f/%.0f pages)", completed, total)
		}
	}
	blocks := []Block{TextBlock(summary)}

	if data, ok := m["data"].([]any); ok && len(data) > 0 {
		var urls []string
		for _, item := range data {
			page, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if pageURL, ok := page["url"].(string); ok && pageURL != "" {
				urls = append(urls, pageURL)
			}
		}
		if listing := previewListing("Processed URLs:", urls); listing != "" {
			blocks = append(blocks, TextBlock(listing))
		}
	}

	if errorItems, ok := m["errors"].([]any); ok && len(errorItems) > 0 {
		var lines []string
		for _, item := range errorItems {
			switch typed := item.(type) {
			case string:
				lines = append(lines, typed)
			case map[string]any:
				message, _ := typed["error"].(string)
				if message == "" {
					message, _ = typed["message"].(string)
				}
				if itemURL, ok := typed["url"].(string); ok && itemURL != "" && message != "" {
					message = itemURL + ": " + message
				}
				if message != "" {
					lines = append(lines, message)
				}
			}
		}
		if listing := previewListing("Errors:", lines); listing != "" {
			blocks = append(blocks, TextBlock(listing))
		}
	}
	return blocks
}

func previewListing(header string, items []string) string {
	if len(items) == 0 {
		return ""
	}
	shown := items
	var suffix string
	if len(items) > listPreviewLimit {
		shown = items[:listPreviewLimit]
		suffix = fmt.Sprintf("\n…and %d more", len(items)-listPreviewLimit)
	}
	var b strings.Builder
	b.WriteString(header)
	for _, item := range shown {
		b.WriteString("\n- ")
		b.WriteString(item)
	}
	b.WriteString(suffix)
	return b.String()
}

// formatMultiFormat handles scrape payloads with a formats sub-object:
// markdown wins over rendered HTML, which wins over raw HTML. A raw-HTML
// answer additionally gets a plain-text preview so callers that cannot
// render HTML still see something readable.
func formatMultiFormat(payload any) []Block {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	formats, ok := m["formats"].(map[string]any)
	if !ok {
		return nil
	}

	var blocks []Block
	if markdown, ok := formats["markdown"].(string); ok && markdown != "" {
		blocks = append(blocks, TextBlock(markdown))
	} else if html, ok := formats["html"].(string); ok && html != "" {
		blocks = append(blocks, Block{Type: TypeHTML, Text: html})
	} else if raw := firstString(formats, "rawHtml", "raw_html"); raw != "" {
		blocks = append(blocks, Block{Type: TypeHTML, Text: raw})
		if preview := htmlPreview(raw); preview != "" {
			blocks = append(blocks, TextBlock(preview))
		}
	}

	screenshot := firstString(formats, "screenshot")
	if screenshot == "" {
		screenshot = firstString(m, "screenshot")
	}
	if screenshot != "" {
		blocks = append(blocks, Block{Type: TypeImage, Text: screenshot})
	}

	links, ok := formats["links"].([]any)
	if !ok {
		links, _ = m["links"].([]any)
	}
	if len(links) > 0 {
		var lines []string
		for _, link := range links {
			if linkURL, ok := link.(string); ok && linkURL != "" {
				lines = append(lines, linkURL)
			}
		}
		if len(lines) > 0 {
			blocks = append(blocks, TextBlock("Links:\n"+strings.Join(lines, "\n")))
		}
	}
	return blocks
}

// formatFlat handles payloads carrying content properties at the top
// level instead of under a formats sub-object.
func formatFlat(payload any) []Block {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	var blocks []Block
	if markdown, ok := m["markdown"].(string); ok && markdown != "" {
		blocks = append(blocks, TextBlock(markdown))
	}
	if html, ok := m["html"].(string); ok && html != "" {
		blocks = append(blocks, Block{Type: TypeHTML, Text: html})
	}
	if text, ok := m["text"].(string); ok && text != "" {
		blocks = append(blocks, TextBlock(text))
	}
	if extracted, present := m["extracted"]; present && extracted != nil {
		if s, ok := extracted.(string); ok {
			if s != "" {
				blocks = append(blocks, TextBlock(s))
			}
		} else {
			blocks = append(blocks, prettyJSON(extracted))
		}
	}
	return blocks
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := m[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

func prettyJSON(payload any) Block {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return TextBlock(fmt.Sprint(payload))
	}
	return Block{Type: TypeJSON, Text: string(encoded)}
}
