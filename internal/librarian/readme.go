package librarian

// readmeTemplate is fixed content, written once and refreshed only when
// the schema version changes. %s is the schema version.
const readmeTemplate = `# AI Librarian

This directory contains the AI Librarian index: a structured, on-disk
description of this project the daemon maintains for an AI coding
assistant. It is regenerated automatically by the watcher and on demand
by the generate_librarian tool; treat it as a build artifact.

## Components

1. script_index.json - index of every tracked file: its classes,
   functions, and the mini-librarian file that holds the full detail.
2. component_registry.json - reverse index from a component's name to
   the file and line span where it's defined; the first definition of a
   name wins, later ones are recorded under "shadowed".
3. scripts/ - one mini-librarian JSON per source file.
4. diagnostics/ - reserved for parse-error dumps and last-run stats.

## Usage

This directory is maintained automatically; there is nothing to run by
hand. If a project's source changes outside the watcher's polling
window, call generate_librarian to force an immediate re-index.

Schema version: %s
`
