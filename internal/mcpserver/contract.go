package mcpserver

// NoteFormatContract describes the note shape LLM consumers should follow
// when creating notes through the tools.
const NoteFormatContract = `# relaynote Note Contract

Notes are structured records, not files. The create_note tool takes the
fields below directly.

## Fields

| Field   | Required | Notes |
|---------|----------|-------|
| title   | yes      | Short human-readable title, used in search and lists. |
| content | no       | Body text. Markdown or simple HTML; content synced from other devices is sanitized. |
| tags    | no       | Comma separated. Case-insensitive; duplicates are dropped. |
| status  | no       | ` + "`draft`" + ` (default), ` + "`published`" + ` or ` + "`private`" + `. |

## Rules

1. **Private notes never leave the device.** Use ` + "`private`" + ` for anything
   that must not be published to relays.
2. **Tags follow the ontology.** Prefer existing ontology labels; a tag
   matches its ancestors and descendants in search and discovery, so
   ` + "`NLP`" + ` is found by a search for ` + "`AI`" + ` when NLP sits under AI.
3. **Edits win by time.** The most recently updated copy of a note is kept
   when devices disagree; there is no merge.
4. **Matches are read-only.** find_matches lists notes of other authors
   related to a local note; they are discovered during sync.

## Example

` + "```" + `json
{
  "title": "Weekly standup 2025-01-20",
  "content": "Attendees: Alice, Bob.\n\n## Action items\n- review the design doc",
  "tags": "meeting-notes, project-x",
  "status": "draft"
}
` + "```" + `
`
