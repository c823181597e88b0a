package extraction

import "fmt"

const schemaDescription = `{
  "personalInfo": {"name": string, "email": string, "phone": string, "location": string, "summary": string, "aboutMe": string},
  "experience": [{"title": string, "company": string, "location": string, "startDate": string, "endDate": string, "description": string, "achievements": [string]}],
  "skills": {"technical": [string], "soft": [string], "languages": [string]},
  "education": [{"degree": string, "institution": string, "location": string, "graduationDate": string, "gpa": string, "achievements": [string]}],
  "projects": [{"name": string, "description": string, "technologies": [string], "url": string}],
  "certifications": [{"name": string, "issuer": string, "date": string, "url": string}]
}`

// BuildPrompt builds the single-pass extraction prompt for résumé text.
func BuildPrompt(resumeText string) string {
	return fmt.Sprintf(
		"Extract the following résumé into a single JSON object matching this exact shape, with all six top-level keys always present:\n\n%s\n\n"+
			"Rules:\n"+
			"- Output JSON only, no markdown fences, no commentary.\n"+
			"- Every string field must be present, using an empty string if unknown.\n"+
			"- Every array field must be present, using an empty array if there are no entries.\n"+
			"- Dates should be copied as written in the résumé; do not normalize or invent a format.\n\n"+
			"Résumé text:\n%s",
		schemaDescription, resumeText,
	)
}

// BuildRepairPrompt is used for the single bounded retry after a
// malformed first response: it shows the model its own broken output and
// the parse error, and asks for a corrected JSON document only.
func BuildRepairPrompt(resumeText, badResponse string, parseErr error) string {
	return fmt.Sprintf(
		"Your previous response could not be parsed as JSON matching this shape:\n\n%s\n\n"+
			"Parse error: %s\n\n"+
			"Your previous response was:\n%s\n\n"+
			"Respond again with a single corrected JSON object only, no markdown fences, no commentary, "+
			"extracted from the original résumé text below.\n\nRésumé text:\n%s",
		schemaDescription, parseErr, badResponse, resumeText,
	)
}
