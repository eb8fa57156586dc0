package mcpserver

import "strings"

// rootDescription explains how tool paths map onto the Girder tree under root.
func rootDescription(root string) string {
	return strings.ReplaceAll(pathContract, "{root}", root)
}

const pathContract = `# nbgirder contents root

All tool paths are relative to the Girder resource path ` + "`" + `/{root}` + "`" + `.
The empty path is the root itself.

## Mapping

- **Directories** are Girder folders (or the user or collection at the root).
- **Files** are Girder items holding exactly one file of the same name.
  An item with several files shows up as a read-only directory of those files.
- **Notebooks** are files ending in ` + "`" + `.ipynb` + "`" + ` whose bytes are nbformat 4 JSON.

## Rules

1. Paths use forward slashes. Leading and trailing slashes are ignored.
2. Names starting with ` + "`" + `.` + "`" + ` are hidden: they are left out of listings.
3. A user's or collection's top level may only contain folders. Write files inside a folder.
4. ` + "`" + `rename_path` + "`" + ` only renames within the same directory; it cannot move.
5. Text is stored as UTF-8. Send binary content with ` + "`" + `format: base64` + "`" + `.
6. Deleting a non-empty directory removes everything inside it, unless the server refuses non-empty deletes.
`
