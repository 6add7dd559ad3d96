package llm

import (
	"strings"

	"github.com/dharsanguruparan/ResumeVault/internal/tier"
)

const systemPrompt = `You are a recruiting assistant. Parse the resume and evaluate it against the hiring criteria.

Output rules:
1. Return a single JSON object only. No Markdown, no commentary.
2. Use null for missing scalar fields and [] for missing lists.
3. Never invent information that is not in the resume.

JSON structure:
{
  "is_qualified": true,
  "name": "Zhang San",
  "phone": "13800138000",
  "email": "zhangsan@example.com",
  "university": "Tsinghua University",
  "school_tier": "%TIERS%",
  "degree": "bachelor",
  "major": "Computer Science",
  "graduation_year": "2024",
  "skills": ["python", "java", "mysql"],
  "work_experience": ["..."],
  "projects": ["..."],
  "score": 85,
  "reason": "short justification"
}

Notes:
- skills is an array of single lower-case skill names without proficiency words.
- graduation_year is a four digit year.
- score is an integer from 0 to 100.
- school_tier is one of the listed labels, or null when unsure.`

// BuildPrompts renders the fixed system prompt and the per-document user
// prompt combining the rubric text with the resume text.
func BuildPrompts(criteria, resumeText string) (system, user string) {
	labels := []string{string(tier.TierA), string(tier.TierB), string(tier.Ordinary), string(tier.Associate)}
	system = strings.Replace(systemPrompt, "%TIERS%", strings.Join(labels, " | "), 1)

	var b strings.Builder
	b.WriteString("[Hiring criteria]\n")
	b.WriteString(strings.TrimSpace(criteria))
	b.WriteString("\n\n-------------------\n\n[Candidate resume]\n")
	b.WriteString(strings.TrimSpace(resumeText))
	return system, b.String()
}
