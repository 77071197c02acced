package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	FormClassifyDescription = `Identify which taught form layout a scanned document matches.

**When to use:** A scan or PDF of an application form arrived and you need to know whether it is a CA Form, SIP Form, Multiple SIP Form, CTF Form or something else.

**How it works:** Every template's sections are measured on the document (ruled lines and text-like marks inside each section box). The template with the highest mean score wins when it exceeds the acceptance threshold; otherwise the form type is Unknown.

**Examples:**
• Route incoming mail: "Classify scans/inward-0412.pdf before sending it to the right desk"
• Check a batch: "Which of these scans are SIP registrations?"

**Response:** form_type, template, confidence, per-template scores, runner-up alternatives and, for a match, the per-section evidence.

**Best practices:** Run form_templates first to see which form types are taught. A low confidence with close alternatives usually means a poor scan or a missing template.`

	FormValidateDescription = `Check which sections of a scanned form were filled in.

**When to use:** You need to know whether the transaction choice is ticked, the SIP details and schemes are written, the bank mandate carries an account number, IFSC and signature, and so on.

**Parameters:**
• path: the document to check (PDF, PNG, JPEG, TIFF, BMP or WebP)
• form_type (optional): skip classification and validate against this form type's template

**Response:** a FormReport with status (SUCCESS, WARNING, ERROR), per-section filled flags and details, sip_details_filled and otm_details_filled.

**Examples:**
• Completeness check: "Is the OTM mandate on scans/sip-0007.pdf filled?"
• Known form: "Validate scans/ca-1123.png as a CA Form"

**Best practices:** Without form_type the form is classified first; an Unknown classification yields a WARNING report with no sections. A section with error "invalid coordinates" points at a template box outside the page, not at the document.`

	FormTemplatesDescription = `List the taught form templates.

**When to use:** Discover which form types can be recognised and which sections each template checks.

**Response:** each template's name, form type, pages and sections with their type and page.`

	FormServerInfoDescription = `Get server information, configuration and health.

**When to use:** Troubleshooting, or checking what the server can do before sending documents.

**Response:** server name and version, document and template directories, supported file extensions, template inventory, acceptance threshold, and stability health (recovered panics and memory samples).`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"form_classify":    FormClassifyDescription,
	"form_validate":    FormValidateDescription,
	"form_templates":   FormTemplatesDescription,
	"form_server_info": FormServerInfoDescription,
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns every tool name in sorted order
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
