// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"strconv"

	"github.com/jeranaias/rigrun-agent/internal/config"
	"github.com/jeranaias/rigrun-agent/internal/conversation"
)

// AdvisorSystemPrompt frames the advisor conversation.
const AdvisorSystemPrompt = "You are a helpful and friendly AI career advisor assisting engineering students. " +
	"If the user shares their background, interests, or goals, remember and build upon it in follow-up answers. " +
	"Give actionable and detailed advice, especially in machine learning and compiler design if those topics come up."

// AdvisorQuestions are asked in order; later questions rely on earlier
// answers being remembered.
var AdvisorQuestions = []string{
	"My name is Shivam and I am an engineering student interested in compiler design and ML. What are some good career options?",
	"What are some relevant textbooks that align with my interests?",
	"What companies should I target for internships or research roles?",
}

// RunAdvisor runs the career advisor conversation over a default sliding
// window of 20 turns with truncation, stopping at the first failed question.
func RunAdvisor(opts GlobalOptions) int {
	window := conversation.DefaultWindowConfig()
	profile := Profile{
		Program:      "advisor",
		Manager:      config.ManagerSlidingWindow,
		Window:       &window,
		SystemPrompt: AdvisorSystemPrompt,
	}
	return runProgram(opts, profile, func(ctx context.Context, rt *Runtime) error {
		return askAll(ctx, rt, AdvisorQuestions)
	})
}

// askAll asks each question in turn, separating the replies.
func askAll(ctx context.Context, rt *Runtime, questions []string) error {
	for i, question := range questions {
		if i > 0 {
			rt.Printer.Separator()
		}
		rt.Printer.Question(i+1, len(questions), question)
		if _, err := rt.Ask(ctx, question); err != nil {
			return NewCommandError("advisor", "answer question "+strconv.Itoa(i+1), err)
		}
	}
	return nil
}
