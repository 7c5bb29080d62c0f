package service

import (
	"fmt"
	"strings"

	"github.com/jobhive/cv-insight/internal/model"
)

// PromptInput carries everything the prompt needs. BuildAnalysisPrompt is a
// pure function of this struct so it can be unit-tested without a live model.
type PromptInput struct {
	Text            string
	ExperienceLevel string
	Major           string
	TargetJobs      []model.TargetJob
}

var levelDescriptions = map[string]string{
	model.LevelEntry:     "an entry-level candidate starting their career",
	model.LevelMid:       "a mid-level professional with several years of experience",
	model.LevelSenior:    "a senior professional expected to show leadership and depth",
	model.LevelExecutive: "an executive-level candidate evaluated on strategic impact",
}

// BuildAnalysisPrompt composes the full instruction sent to the model: a role
// preamble calibrated to the candidate, the job-context block, the literal
// resume text, and the required JSON output schema with the scoring rubric.
func BuildAnalysisPrompt(in PromptInput) string {
	var b strings.Builder

	levelDesc, ok := levelDescriptions[in.ExperienceLevel]
	if !ok {
		levelDesc = "a professional candidate"
	}

	fmt.Fprintf(&b, `You are an expert resume reviewer and career advisor specializing in %s.
You are evaluating the resume of %s.

`, in.Major, levelDesc)

	b.WriteString(jobContextBlock(in))

	fmt.Fprintf(&b, `
RESUME TEXT:
---
%s
---

Analyze the resume and return your answer STRICTLY as a single JSON object with this schema:
{
  "overall_score": <integer 0-100>,
  "summary": "<2-4 sentences covering key strengths and areas of improvement>",
  "sections": {
    "ats_compatibility": {"score": <integer 0-100>, "feedback": "<string>", "suggestions": ["<string>"]},
    "skills_alignment": {"score": <integer 0-100>, "feedback": "<string>", "suggestions": ["<string>"]},
    "experience_relevance": {"score": <integer 0-100>, "feedback": "<string>", "suggestions": ["<string>"]},
    "achievement_quantification": {"score": <integer 0-100>, "feedback": "<string>", "suggestions": ["<string>"]},
    "market_positioning": {"score": <integer 0-100>, "feedback": "<string>", "suggestions": ["<string>"]}
  },
  "recommendations": [
    {"priority": "<low|medium|high|critical>", "category": "<string>", "suggestion": "<string>", "impact": "<string>"}
  ],
  "job_match": {
    "overall_match": <integer 0-100>,
    "skills_match": <integer 0-100>,
    "experience_match": <integer 0-100>,
    "education_match": <integer 0-100>,
    "missing_skills": ["<string>"]
  },
  "market_insights": {
    "salary_range": "<string>",
    "demand_level": "<low|moderate|high>",
    "competitiveness": "<string>",
    "trends": ["<string>"]
  }
}

Scoring rubric for overall_score and every section score:
- 90-100: exceptional, ready for top-tier applications
- 80-89: strong, minor polish needed
- 70-79: good, a few substantive gaps
- 60-69: fair, needs focused improvement
- below 60: poor, requires significant rework

Return only the JSON object, no surrounding text.`, in.Text)

	return b.String()
}

// jobContextBlock renders the target-job context: a list of postings when
// given, otherwise a generic field-and-level framing.
func jobContextBlock(in PromptInput) string {
	if len(in.TargetJobs) == 0 {
		return fmt.Sprintf("Evaluate the resume for the general %s job market at the %s level.\n", in.Major, in.ExperienceLevel)
	}

	var b strings.Builder
	if len(in.TargetJobs) == 1 {
		b.WriteString("Evaluate the resume against this target position:\n")
	} else {
		b.WriteString("Evaluate the resume against these target positions:\n")
	}
	for i, job := range in.TargetJobs {
		fmt.Fprintf(&b, "\nJob %d: %s", i+1, job.Title)
		if job.Company != "" {
			fmt.Fprintf(&b, " at %s", job.Company)
		}
		b.WriteString("\n")
		if job.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", job.Description)
		}
		if job.Requirements != "" {
			fmt.Fprintf(&b, "Requirements: %s\n", job.Requirements)
		}
	}
	return b.String()
}
