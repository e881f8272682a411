package core

import (
	"fmt"
	"strings"

	"github.com/contextflow/contextflow/internal/store"
	"github.com/contextflow/contextflow/internal/utils"
)

const (
	MaxTotalChars = 400000 // roughly 100k tokens, well inside the model window
	MaxFileChars  = 100000

	HistorySummaryTurns = 5
	HistorySnippetChars = 100

	// A globally truncated file keeps this much headroom for its closing lines,
	// and is dropped entirely unless more than minGlobalSnippet characters fit.
	globalTruncationReserve = 50
	minGlobalSnippet        = 100

	NoFilesSentinel      = "No private files currently uploaded.\n"
	FileTruncatedMarker  = "\n[... Content truncated due to size ...]"
	GlobalLimitMarker    = "\n[... Global context limit reached, file truncated ...]"
	fileEntryTerminator  = "\n--- END FILE ---\n"
	historySummaryJoiner = " -> "
)

// BuildContext renders the profile, a summary of the latest messages and the
// uploaded files into the grounding text sent with every model request.
// Output is a pure function of its inputs.
//
// Files are taken in order. Each is capped at MaxFileChars; once a file would
// push the total past MaxTotalChars it is cut to the remaining space (or
// dropped when too little is left) and every later file is skipped.
func BuildContext(profile store.UserProfile, messages []store.Message, files []store.UploadedFile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "--- USER IDENTITY ---\nName: %s\nRole: %s\nInstruction: %s\n\n", profile.Name, profile.Role, profile.Preferences)
	fmt.Fprintf(&b, "--- CONVERSATION STATE ---\nHistory Summary: %s\n\n", summarizeHistory(messages))
	b.WriteString("--- PRIVATE KNOWLEDGE BASE ---\n")

	if len(files) == 0 {
		b.WriteString(NoFilesSentinel)
		return b.String()
	}

	used := utils.CharLen(b.String())
	terminatorLen := utils.CharLen(fileEntryTerminator)

	for i, file := range files {
		if used >= MaxTotalChars {
			continue
		}

		label := fmt.Sprintf("\nFILE [%d]: %s\nTYPE: %s\nCONTENT:\n", i+1, file.Name, file.Type)
		labelLen := utils.CharLen(label)

		content := file.Content
		if utils.CharLen(content) > MaxFileChars {
			content = utils.TruncateChars(content, MaxFileChars) + FileTruncatedMarker
		}

		entryLen := labelLen + utils.CharLen(content) + terminatorLen
		if used+entryLen < MaxTotalChars {
			b.WriteString(label)
			b.WriteString(content)
			b.WriteString(fileEntryTerminator)
			used += entryLen
			continue
		}

		remaining := MaxTotalChars - used - labelLen - globalTruncationReserve
		if remaining > minGlobalSnippet {
			b.WriteString(label)
			b.WriteString(utils.TruncateChars(content, remaining))
			b.WriteString(GlobalLimitMarker)
			b.WriteString(fileEntryTerminator)
			used = MaxTotalChars
		}
	}

	return b.String()
}

func summarizeHistory(messages []store.Message) string {
	if len(messages) > HistorySummaryTurns {
		messages = messages[len(messages)-HistorySummaryTurns:]
	}
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, fmt.Sprintf("[%s: %s...]", m.Role, utils.TruncateChars(m.Content, HistorySnippetChars)))
	}
	return strings.Join(parts, historySummaryJoiner)
}
