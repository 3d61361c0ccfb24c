package mcpserver

// ItemFormatContract describes the Markdown item document format that LLM
// consumers should follow when writing model documents.
const ItemFormatContract = `# Tracelight Item Document Format

Each item on the systems canvas is one Markdown document in the model
directory.

## Structure

` + "```" + `markdown
---
id: R1                       # REQUIRED unless the file stem is the id
type: requirement            # REQUIRED: system, subsystem, function, requirement,
                             #   testcase, parameter, hardware, usecase, actor
version: "1.0"               # OPTIONAL, defaults to 1.0; quote it to keep it a string
label: Braking distance      # OPTIONAL display name
req_id: SYS-12               # OPTIONAL external requirement id
edges:                       # OPTIONAL structural edges leaving this item
  - target: F3
    relation: contains       # contains (default), provides, flow, related
---

Body text in standard Markdown. [[wikilinks]] to other item ids become
related edges.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory** and must open the file.
2. **Ids are unique** across the model. A second document declaring the same
   id replaces the first.
3. **Versions** are dotted numbers or semver (` + "`" + `1.2` + "`" + `, ` + "`" + `v2.0.1` + "`" + `); a leading
   ` + "`" + `v` + "`" + ` is dropped.
4. **Edges** describe the hierarchy and flows drawn on the canvas. They are
   not traceability links: create those with the ` + "`" + `add_link` + "`" + ` tool.
5. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes. Hidden files and
   directories are ignored.

## Traceability links

Links are typed (satisfies, verifies, derives, refines, conflicts) and move
through proposed → agreed → implemented → verified. Pinning a link records
the versions of both endpoints; when either item's version moves on, the
link shows as broken until it is re-pinned or unpinned.
`
