// Package parser extracts page-structured text from uploaded documents.
//
// Supported formats are plain text, Markdown, HTML, DOCX, PDF and EPUB.
// Plain text and Markdown split pages on form feeds; DOCX splits on explicit
// page breaks; PDF and EPUB use the page layout reported by MuPDF. Formats
// without page information yield a single logical page.
package parser
