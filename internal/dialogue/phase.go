// Package dialogue derives the auditor dialogue phase from the
// questions_asked counter and builds the prompt for the next turn.
// It is pure: no store, no cache, no clock.
package dialogue

import (
	"fmt"
	"strings"

	"github.com/aegislabs/aegis/internal/models"
)

type Phase int

const (
	PhaseIntake Phase = iota
	PhaseSynthesis
	PhaseOpenQA
)

func (p Phase) String() string {
	switch p {
	case PhaseIntake:
		return "intake"
	case PhaseSynthesis:
		return "synthesis"
	default:
		return "open_qa"
	}
}

// IntakeQuestionTarget is the number of intake questions asked before
// the auditor synthesizes its recommendations.
const IntakeQuestionTarget = 5

// PhaseFor derives the dialogue phase. The counter freezes at the
// intake target, so on its own it cannot tell the synthesis turn from
// the open Q&A turns that follow; completedTurns (assistant replies,
// greeting excluded) breaks the tie: synthesis runs on the first turn
// at the target and never again.
func PhaseFor(questionsAsked, completedTurns int) Phase {
	switch {
	case questionsAsked < IntakeQuestionTarget:
		return PhaseIntake
	case questionsAsked == IntakeQuestionTarget && completedTurns <= IntakeQuestionTarget:
		return PhaseSynthesis
	default:
		return PhaseOpenQA
	}
}

// TurnPlan describes one generation turn: which phase it runs in, the
// system prompt to use, and the counter value to persist after the turn
// completes. The counter advances only while in intake; once synthesis
// has run the dialogue stays in open Q&A indefinitely.
type TurnPlan struct {
	Phase              Phase
	SystemPrompt       string
	NextQuestionsAsked int
}

// Plan decides the next turn from the counter and the messages recorded
// so far (the current user input excluded). A turn that recorded its
// user message but produced no reply leaves completedTurns unchanged,
// so a failed synthesis turn is replanned as synthesis.
func Plan(questionsAsked int, msgs []models.Message) TurnPlan {
	if questionsAsked < 0 {
		questionsAsked = 0
	}

	replies := 0
	for _, m := range msgs {
		if m.Role == models.RoleAssistant {
			replies++
		}
	}
	// the greeting is assistant-authored but precedes the first turn
	if replies > 0 {
		replies--
	}

	phase := PhaseFor(questionsAsked, replies)
	next := questionsAsked
	if phase == PhaseIntake {
		next = questionsAsked + 1
	}

	history := FormatHistory(msgs)

	var prompt string
	switch phase {
	case PhaseIntake:
		prompt = fmt.Sprintf(intakePrompt, questionsAsked+1, history, questionsAsked+1)
	case PhaseSynthesis:
		prompt = fmt.Sprintf(synthesisPrompt, history)
	default:
		prompt = fmt.Sprintf(openQAPrompt, history)
	}

	return TurnPlan{Phase: phase, SystemPrompt: prompt, NextQuestionsAsked: next}
}

// FormatHistory renders messages the way the auditor prompts expect.
func FormatHistory(msgs []models.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == models.RoleUser {
			lines = append(lines, "User: "+m.Content)
		} else {
			lines = append(lines, "Assistant: "+m.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// BuildPrompt combines the plan's system prompt with retrieved context
// and the current user input into the final generation prompt.
func BuildPrompt(plan TurnPlan, contextText, userInput string) string {
	var b strings.Builder
	b.WriteString(plan.SystemPrompt)
	b.WriteString("\n\nContext: ")
	b.WriteString(contextText)
	if plan.Phase == PhaseOpenQA {
		b.WriteString("\n\nUser Query: ")
	} else {
		b.WriteString("\n\nUser Input: ")
	}
	b.WriteString(userInput)
	return b.String()
}

// Greeting opens every new conversation and carries the first intake
// question; it counts as an assistant message but not as a completed
// turn, so questions_asked stays 0 until the user replies.
const Greeting = "Hello! I'm Aegis, an AI Cybersecurity Auditor and an expert on " +
	"ISO27001 and ISO27002 documentation. I can help you design a " +
	"cybersecurity framework for your company. Please answer the questions " +
	"that follow.\n\nQuestion 1: Can you describe your company's primary " +
	"business activities and industries?"

const intakePrompt = `You are an AI assistant acting as an auditor to help a cybersecurity implementation engineer design the cybersecurity framework for their company using the ISO 27001 and ISO27002 standards.
You have asked %d questions so far.

Conversation history:
%s

Ask the next most appropriate question to understand the company better. Do not repeat any previous questions.
The questions should be concise, restricted to one line and should cover only one topic.
Format your questions as:
Question %d: [Your question here]`

const synthesisPrompt = `You are an AI assistant acting as an auditor to help a cybersecurity implementation engineer design the cybersecurity framework for their company using the ISO 27001 and ISO27002 standards.

Conversation history:
%s

Based on the information provided, here are the key guidelines from ISO27001/ISO27002 for your company's cybersecurity framework:
[Your comprehensive guidelines here, mention 10 most relevant guidelines] (While answering the guidelines, you should mention which parts/subsections/annex of which document(ISO27001 or ISO27002) you are referencing, be as descriptive as possible)
Support your answer about each guideline by mentioning how you narrowed your search to that guideline using the information about the company (answers from the user).`

const openQAPrompt = `You are an AI assistant acting as an auditor to answer questions about ISO27001 and ISO27002 implementation.

Conversation history:
%s

The user's question is the last item in the conversation.
Please answer the user's query based on the information provided in the conversation history, the context, and your knowledge of ISO27001 and ISO27002 standards. Be specific and provide references to the relevant sections of the standards when appropriate.`
