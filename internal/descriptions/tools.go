package descriptions

// Tool descriptions with practical examples and use cases

const (
	PDFLoadFileDescription = `Load a PDF from the configured directory into the document slot.

**When to use:** Before any other slot tool, or to replace the document currently held.

**Why it's useful:** The slot holds exactly one document in memory. Every later download, field listing, validation or export works on it until the next load replaces it.

**Examples:**
• Load a form: "Load forms/application.pdf so its fields can be listed"
• Replace the document: "Load invoice-2024-002.pdf instead of the current one"

**Common workflows:**
1. Form review: pdf_load_file → pdf_list_fields → pdf_export variant=flattened
2. Archival check: pdf_load_file → pdf_validate_pdfa

**Best practices:** Paths are resolved relative to the configured directory and may not leave it. Content is stored as is; a file that is not a PDF is accepted but derived outputs will fail.`

	PDFSlotInfoDescription = `Describe the document currently held in the slot.

**When to use:** To check what is loaded: name, size, revision, upload time, number of form fields and a short text summary.

**Why it's useful:** Every load increments the revision, so two calls show whether the slot changed in between.

**Examples:**
• "What document is loaded right now?"
• "How many pages and form fields does the current document have?"

**Best practices:** Field and text details are best effort and omitted when the content cannot be parsed as a PDF.`

	PDFListFieldsDescription = `List the AcroForm fields of the document in the slot.

**When to use:** To discover field names, kinds, current values and allowed options before filling or flattening.

**Why it's useful:** Each line shows the fully qualified name, the field kind (text, checkbox, radio, combo, list, button, signature), the current value and, for choice and button fields, the available options.

**Examples:**
• "Which fields does the loaded form have?"
• "Is the Land checkbox checked?"

**Best practices:** A document without a form returns an empty list, not an error.`

	PDFValidatePDFADescription = `Check the document in the slot against a PDF/A archival profile.

**When to use:** Before archiving a document or handing it to a system that requires PDF/A.

**Why it's useful:** Reports every violation found with a stable code, a description and the object or page it was found on, e.g. missing XMP identification, missing output intent, unembedded fonts, forbidden actions or hidden annotations.

**Parameters:** level is one of PDF/A-1b, PDF/A-2b (default), PDF/A-2u, PDF/A-3b.

**Examples:**
• "Is the loaded document PDF/A-2b compliant?"
• "List the PDF/A-1b violations of the current document"

**Best practices:** The check covers the document structure that can be decided without rendering. A compliant result is necessary, not sufficient, for certification.`

	PDFExportDescription = `Write a variant of the slot document to a file in the configured directory.

**When to use:** To save the raw document, the prefilled template or a flattened copy where forms are merged into the page content.

**Parameters:**
• variant: raw (stored bytes unchanged), prefilled (bundled template with default values, independent of the slot) or flattened (slot document without interactive fields)
• path: target file relative to the configured directory
• overwrite: replace an existing file (default false)

**Examples:**
• "Export the flattened form to out/flattened.pdf"
• "Save the prefilled template to prefilled.pdf"

**Best practices:** Flattening fails for content that is not a parseable PDF unless the server runs with lossy flattening, which writes an empty file instead.`
)
