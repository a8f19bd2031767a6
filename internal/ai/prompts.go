package ai

import (
	"fmt"
	"strings"
)

const jsonOnly = "Respond with JSON only. Do not wrap it in markdown."

// SystemPrompt returns the instructions for a task.
func SystemPrompt(t Task) string {
	switch t {
	case TaskQuizQuestions:
		return `You write coding interview practice questions. Each question must be answerable in a few paragraphs or a short function.
Return {"questions":[{"prompt":"...","hint":"..."}]}. ` + jsonOnly
	case TaskQuestionBank:
		return `You prepare candidates for technical interviews. Write realistic questions an interviewer would ask about the topic, from fundamentals to trade-offs.
Return {"questions":[{"prompt":"...","hint":"..."}]}. ` + jsonOnly
	case TaskStudyNotes:
		return `You write concise study notes for software engineering interview preparation. Use short sections with headings, key definitions, complexity notes and one worked example.`
	case TaskResumeEnhancement:
		return `You improve résumés for software engineers. Rewrite the input with strong action verbs and measurable impact. Keep every claim truthful to the input; never invent employers, dates or numbers.`
	case TaskQuizGrading:
		return `You grade coding quiz answers. Score from 0 to 100 overall, give two or three sentences of feedback, and one short comment per question in order.
Return {"score":0,"feedback":"...","per_question":["..."]}. ` + jsonOnly
	case TaskInterviewAnalysis:
		return `You review mock interview transcripts. Score the candidate from 0 to 100, summarize strengths and gaps, and give one comment per answered question in order.
Return {"score":0,"feedback":"...","per_question":["..."]}. ` + jsonOnly
	case TaskInterviewPrompt:
		return `You are a technical interviewer. Given the role and seniority, write an opening briefing for a mock interview: the format, the areas you will cover, and the first question.`
	default:
		return ""
	}
}

// UserPrompt renders the task inputs.
func UserPrompt(req Request) string {
	var b strings.Builder
	switch req.Task {
	case TaskQuizQuestions, TaskQuestionBank:
		fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
		if req.Difficulty != "" {
			fmt.Fprintf(&b, "Difficulty: %s\n", req.Difficulty)
		}
		fmt.Fprintf(&b, "Number of questions: %d\n", req.Count)
	case TaskStudyNotes:
		fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
		if req.Difficulty != "" {
			fmt.Fprintf(&b, "Level: %s\n", req.Difficulty)
		}
	case TaskQuizGrading:
		fmt.Fprintf(&b, "Topic: %s\nDifficulty: %s\n\n", req.Topic, req.Difficulty)
		for i, q := range req.Questions {
			answer := ""
			if i < len(req.Answers) {
				answer = req.Answers[i]
			}
			if strings.TrimSpace(answer) == "" {
				answer = "(no answer)"
			}
			fmt.Fprintf(&b, "Question %d: %s\nAnswer %d: %s\n\n", i+1, q.Prompt, i+1, answer)
		}
	default:
		if req.Topic != "" {
			fmt.Fprintf(&b, "Role: %s\n", req.Topic)
		}
		if req.Difficulty != "" {
			fmt.Fprintf(&b, "Level: %s\n", req.Difficulty)
		}
		b.WriteString(req.Text)
	}
	return b.String()
}
