package gemini

import (
	"regexp"
	"strings"

	"google.golang.org/genai"
)

var markdownImagePattern = regexp.MustCompile(`!\[.*?\]\((.*?)\)`)

// ExtractImages collects the targets of inline markdown images in order of appearance,
// one entry per image even when the target is empty, and returns the text with that
// markup removed.
func ExtractImages(text string) (string, []string) {
	images := []string{}
	for _, match := range markdownImagePattern.FindAllStringSubmatch(text, -1) {
		images = append(images, match[1])
	}
	clean := text
	// removing one image can join its neighbours into a new match
	for markdownImagePattern.MatchString(clean) {
		clean = markdownImagePattern.ReplaceAllString(clean, "")
	}
	return strings.TrimSpace(clean), images
}

// CollectSources returns the cited web sources, first occurrence wins.
// Chunks without a URI are dropped.
func CollectSources(chunks []*genai.GroundingChunk) []Source {
	sources := []Source{}
	seen := make(map[string]struct{})
	for _, chunk := range chunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		if _, ok := seen[chunk.Web.URI]; ok {
			continue
		}
		seen[chunk.Web.URI] = struct{}{}

		title := chunk.Web.Title
		if title == "" {
			title = "Untitled"
		}
		sources = append(sources, Source{URI: chunk.Web.URI, Title: title})
	}
	return sources
}
